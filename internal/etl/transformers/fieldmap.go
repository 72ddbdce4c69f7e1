package transformers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr/vm"

	"github.com/frankawp/data-pipeline-builder/internal/etl"
)

// FieldMap renames, copies and computes fields.
type FieldMap struct{ etl.BaseTransformer }

func (FieldMap) Type() string        { return "map" }
func (FieldMap) DisplayName() string { return "Map / Transform" }
func (FieldMap) Description() string { return "Map, rename, or compute new fields" }

func (FieldMap) ConfigSchema() etl.ConfigSchema {
	return etl.ConfigSchema{Fields: []etl.ConfigField{
		{Name: "mappings", Label: "Field Mappings", Type: etl.FieldColumnMapping, Required: true,
			Description: `Output fields: [{"source": "a", "target": "b", "expression": "a * 2"}]`},
		{Name: "keepUnmapped", Label: "Keep Unmapped Fields", Type: etl.FieldBoolean, DefaultValue: false},
	}}
}

type mapping struct {
	source     string
	target     string
	expression string
	program    *vm.Program
}

func parseMappings(cfg etl.Config) ([]mapping, error) {
	raw, err := cfg.Maps("mappings")
	if err != nil {
		return nil, err
	}
	out := make([]mapping, 0, len(raw))
	for i, m := range raw {
		mp := mapping{
			source:     etl.Config(m).String("source", ""),
			expression: etl.Config(m).String("expression", ""),
		}
		mp.target = etl.Config(m).String("target", mp.source)
		if mp.target == "" {
			return nil, fmt.Errorf("mappings[%d]: source or target is required", i)
		}
		if mp.expression != "" {
			if mp.program, err = compile(mp.expression); err != nil {
				return nil, fmt.Errorf("mappings[%d] expression: %w", i, err)
			}
		}
		out = append(out, mp)
	}
	return out, nil
}

func (m FieldMap) Validate(cfg etl.Config) error {
	if err := m.ConfigSchema().Validate(m.Type(), cfg); err != nil {
		return err
	}
	if _, err := parseMappings(cfg); err != nil {
		return etl.ConfigErrorf(m.Type(), "%v", err)
	}
	return nil
}

// OutputSchema lists mapped targets first, typed from their source when it
// is known, then the passthrough fields.
func (m FieldMap) OutputSchema(in *etl.Schema, cfg etl.Config) (*etl.Schema, error) {
	mappings, err := parseMappings(cfg)
	if err != nil {
		return nil, etl.ConfigErrorf(m.Type(), "%v", err)
	}
	out := &etl.Schema{}
	seen := make(map[string]bool)
	sources := make(map[string]bool)
	for _, mp := range mappings {
		sources[mp.source] = true
		if seen[mp.target] {
			continue
		}
		seen[mp.target] = true
		typ := etl.TypeString
		if f, ok := in.Field(mp.source); ok && mp.source != "" {
			typ = f.Type
		}
		out.Fields = append(out.Fields, etl.Field{Name: mp.target, Type: typ, Nullable: true})
	}
	if cfg.Bool("keepUnmapped", false) && in != nil {
		for _, f := range in.Fields {
			if !sources[f.Name] && !seen[f.Name] {
				out.Fields = append(out.Fields, f)
			}
		}
	}
	return out, nil
}

func (m FieldMap) Transform(ctx context.Context, in etl.Iterator, cfg etl.Config) (etl.Iterator, error) {
	mappings, err := parseMappings(cfg)
	if err != nil {
		return nil, etl.ConfigErrorf(m.Type(), "%v", err)
	}
	keep := cfg.Bool("keepUnmapped", false)
	vars := etl.VariablesFrom(ctx)
	sources := make(map[string]bool, len(mappings))
	for _, mp := range mappings {
		sources[mp.source] = true
	}

	return etl.MapIterator(in, func(rec *etl.Record) (*etl.Record, error) {
		out := etl.NewRecord()
		for _, mp := range mappings {
			var v any
			switch {
			case mp.program != nil:
				res, err := evaluate(mp.program, rec, vars)
				if err != nil {
					slog.Warn("mapping expression failed", "target", mp.target, "error", err)
				} else {
					v = res
				}
			case mp.source != "":
				v = rec.Value(mp.source)
			}
			out.Set(mp.target, v)
		}
		if keep {
			rec.Each(func(name string, v any) {
				if !sources[name] && !out.Has(name) {
					out.Set(name, v)
				}
			})
		}
		return out, nil
	}), nil
}
