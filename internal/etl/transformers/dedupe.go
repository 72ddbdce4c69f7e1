package transformers

import (
	"context"

	"github.com/zeebo/xxh3"

	"github.com/frankawp/data-pipeline-builder/internal/etl"
)

// Dedupe drops records whose key tuple was already seen. Without keys the
// whole record is the key. Values compare by their text form.
type Dedupe struct{ etl.BaseTransformer }

func (Dedupe) Type() string        { return "dedupe" }
func (Dedupe) DisplayName() string { return "Deduplicate" }
func (Dedupe) Description() string { return "Drop repeated records, keeping the first occurrence" }

func (Dedupe) ConfigSchema() etl.ConfigSchema {
	return etl.ConfigSchema{Fields: []etl.ConfigField{
		{Name: "keys", Label: "Key Fields", Type: etl.FieldMultiSelect,
			Description: "Fields that identify a duplicate; empty compares every field"},
	}}
}

func (d Dedupe) Validate(cfg etl.Config) error {
	return d.ConfigSchema().Validate(d.Type(), cfg)
}

func (Dedupe) OutputSchema(in *etl.Schema, _ etl.Config) (*etl.Schema, error) {
	return in, nil
}

func (Dedupe) Transform(_ context.Context, in etl.Iterator, cfg etl.Config) (etl.Iterator, error) {
	keys := cfg.StringSlice("keys")
	seen := make(map[xxh3.Uint128]struct{})
	var buf []byte
	return etl.FilterIterator(in, func(rec *etl.Record) bool {
		buf = appendKey(buf[:0], rec, keys)
		h := xxh3.Hash128(buf)
		if _, dup := seen[h]; dup {
			return false
		}
		seen[h] = struct{}{}
		return true
	}), nil
}

// appendKey serialises the key fields with unit separators between them.
func appendKey(buf []byte, rec *etl.Record, keys []string) []byte {
	if len(keys) == 0 {
		rec.Each(func(name string, v any) {
			buf = append(buf, name...)
			buf = append(buf, 0x1e)
			buf = append(buf, etl.Stringify(v)...)
			buf = append(buf, 0x1f)
		})
		return buf
	}
	for _, k := range keys {
		if v, ok := rec.Get(k); ok && v != nil {
			buf = append(buf, 0x01)
			buf = append(buf, etl.Stringify(v)...)
		}
		buf = append(buf, 0x1f)
	}
	return buf
}
