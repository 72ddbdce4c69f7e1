package transformers

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/frankawp/data-pipeline-builder/internal/etl"
)

// Union concatenates every input, ordered by upstream node id.
type Union struct{}

func (Union) Type() string                 { return "union" }
func (Union) DisplayName() string          { return "Union" }
func (Union) Description() string          { return "Concatenate the records of several inputs" }
func (Union) SupportsMultipleInputs() bool { return true }

func (Union) ConfigSchema() etl.ConfigSchema {
	return etl.ConfigSchema{Fields: []etl.ConfigField{
		{Name: "distinct", Label: "Distinct", Type: etl.FieldBoolean, DefaultValue: false,
			Description: "Drop records identical to an earlier one"},
	}}
}

func (u Union) Validate(cfg etl.Config) error {
	return u.ConfigSchema().Validate(u.Type(), cfg)
}

func (Union) OutputSchema(in *etl.Schema, _ etl.Config) (*etl.Schema, error) {
	return in, nil
}

func (u Union) Transform(ctx context.Context, in etl.Iterator, cfg etl.Config) (etl.Iterator, error) {
	if cfg.Bool("distinct", false) {
		return Dedupe{}.Transform(ctx, in, etl.Config{})
	}
	return in, nil
}

func (u Union) TransformMulti(ctx context.Context, inputs map[string]etl.Iterator, cfg etl.Config) (etl.Iterator, error) {
	ids := slices.Sorted(maps.Keys(inputs))
	its := make([]etl.Iterator, len(ids))
	for i, id := range ids {
		its[i] = inputs[id]
	}
	return u.Transform(ctx, concat(its), cfg)
}

// concat chains iterators, closing each once it is exhausted.
func concat(its []etl.Iterator) etl.Iterator {
	i := 0
	return etl.FuncIterator(func(ctx context.Context) (*etl.Record, bool, error) {
		for i < len(its) {
			cur := its[i]
			if cur.Next(ctx) {
				return cur.Record(), true, nil
			}
			if err := cur.Err(); err != nil {
				return nil, false, err
			}
			cur.Close()
			i++
		}
		return nil, false, nil
	}, func() error {
		var errs []error
		for ; i < len(its); i++ {
			errs = append(errs, its[i].Close())
		}
		return errors.Join(errs...)
	})
}
