package transformers

import (
	"context"
	"log/slog"

	"github.com/frankawp/data-pipeline-builder/internal/etl"
)

// Filter keeps the records for which a boolean condition holds.
type Filter struct{ etl.BaseTransformer }

func (Filter) Type() string        { return "filter" }
func (Filter) DisplayName() string { return "Filter" }
func (Filter) Description() string { return "Keep records matching a condition" }

func (Filter) ConfigSchema() etl.ConfigSchema {
	return etl.ConfigSchema{Fields: []etl.ConfigField{
		{Name: "condition", Label: "Condition", Type: etl.FieldTextarea, Required: true,
			Description: `Boolean expression over the record fields, e.g. amount > 100 && status == "active"`},
	}}
}

func (f Filter) Validate(cfg etl.Config) error {
	if err := f.ConfigSchema().Validate(f.Type(), cfg); err != nil {
		return err
	}
	if _, err := compile(cfg.String("condition", "")); err != nil {
		return etl.ConfigErrorf(f.Type(), "invalid condition: %v", err)
	}
	return nil
}

func (Filter) OutputSchema(in *etl.Schema, _ etl.Config) (*etl.Schema, error) {
	return in, nil
}

// Transform drops records whose condition fails to evaluate or yields
// anything but true.
func (f Filter) Transform(ctx context.Context, in etl.Iterator, cfg etl.Config) (etl.Iterator, error) {
	prog, err := compile(cfg.String("condition", ""))
	if err != nil {
		return nil, etl.ConfigErrorf(f.Type(), "invalid condition: %v", err)
	}
	vars := etl.VariablesFrom(ctx)
	return etl.FilterIterator(in, func(rec *etl.Record) bool {
		out, err := evaluate(prog, rec, vars)
		if err != nil {
			slog.Debug("filter condition failed", "error", err)
			return false
		}
		keep, ok := out.(bool)
		return ok && keep
	}), nil
}
