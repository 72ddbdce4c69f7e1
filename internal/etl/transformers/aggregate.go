package transformers

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/frankawp/data-pipeline-builder/internal/etl"
)

// ── Aggregate ──────────────────────────────────────────────
// Groups records on the joined group-by values and folds each group with
// SUM, AVG, MIN, MAX or COUNT. Groups come out in first-seen order.

const groupKeySep = "|"

var aggFunctions = []string{"SUM", "AVG", "MIN", "MAX", "COUNT"}

// Aggregate is the group-by transformer.
type Aggregate struct{ etl.BaseTransformer }

func (Aggregate) Type() string        { return "aggregate" }
func (Aggregate) DisplayName() string { return "Aggregate" }
func (Aggregate) Description() string {
	return "Group by fields and apply aggregate functions (SUM, COUNT, AVG, MIN, MAX)"
}

func (Aggregate) ConfigSchema() etl.ConfigSchema {
	return etl.ConfigSchema{Fields: []etl.ConfigField{
		{Name: "groupBy", Label: "Group By", Type: etl.FieldMultiSelect,
			Description: "Fields to group by; empty aggregates the whole input"},
		{Name: "aggregations", Label: "Aggregations", Type: etl.FieldJSON, Required: true,
			Description: `[{"field": "amount", "function": "SUM", "alias": "total_amount"}]`},
	}}
}

type aggregation struct {
	field    string
	function string
	alias    string
}

func parseAggregations(cfg etl.Config) ([]aggregation, error) {
	raw, err := cfg.Maps("aggregations")
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one aggregation is required")
	}
	out := make([]aggregation, len(raw))
	for i, m := range raw {
		c := etl.Config(m)
		a := aggregation{
			field:    c.String("field", ""),
			function: strings.ToUpper(c.String("function", "")),
		}
		if !slices.Contains(aggFunctions, a.function) {
			return nil, fmt.Errorf("aggregations[%d]: unknown function %q", i, a.function)
		}
		if a.field == "" && a.function != "COUNT" {
			return nil, fmt.Errorf("aggregations[%d]: field is required", i)
		}
		a.alias = c.String("alias", a.field+"_"+strings.ToLower(a.function))
		out[i] = a
	}
	return out, nil
}

func (a Aggregate) Validate(cfg etl.Config) error {
	if err := a.ConfigSchema().Validate(a.Type(), cfg); err != nil {
		return err
	}
	if _, err := parseAggregations(cfg); err != nil {
		return etl.ConfigErrorf(a.Type(), "%v", err)
	}
	return nil
}

func (a Aggregate) OutputSchema(in *etl.Schema, cfg etl.Config) (*etl.Schema, error) {
	aggs, err := parseAggregations(cfg)
	if err != nil {
		return nil, etl.ConfigErrorf(a.Type(), "%v", err)
	}
	out := &etl.Schema{}
	for _, name := range cfg.StringSlice("groupBy") {
		if f, ok := in.Field(name); ok {
			out.Fields = append(out.Fields, f)
		} else {
			out.Fields = append(out.Fields, etl.Field{Name: name, Type: etl.TypeString, Nullable: true})
		}
	}
	for _, agg := range aggs {
		out.Fields = append(out.Fields, etl.Field{Name: agg.alias, Type: etl.TypeDouble, Nullable: agg.function != "COUNT"})
	}
	return out, nil
}

type group struct {
	values  []any
	records []*etl.Record
}

// Transform consumes the whole input before producing any group.
func (a Aggregate) Transform(ctx context.Context, in etl.Iterator, cfg etl.Config) (etl.Iterator, error) {
	aggs, err := parseAggregations(cfg)
	if err != nil {
		return nil, etl.ConfigErrorf(a.Type(), "%v", err)
	}
	groupBy := cfg.StringSlice("groupBy")

	records, err := etl.Drain(ctx, in)
	if err != nil {
		return nil, err
	}

	var order []string
	groups := make(map[string]*group)
	for _, rec := range records {
		key, values := groupKey(rec, groupBy)
		g, ok := groups[key]
		if !ok {
			g = &group{values: values}
			groups[key] = g
			order = append(order, key)
		}
		g.records = append(g.records, rec)
	}
	if len(groupBy) == 0 && len(order) == 0 {
		order = append(order, "")
		groups[""] = &group{}
	}

	out := make([]*etl.Record, 0, len(order))
	for _, key := range order {
		g := groups[key]
		rec := etl.NewRecord()
		for i, name := range groupBy {
			rec.Set(name, g.values[i])
		}
		for _, agg := range aggs {
			rec.Set(agg.alias, apply(agg, g.records))
		}
		out = append(out, rec)
	}
	return etl.SliceIterator(out), nil
}

func groupKey(rec *etl.Record, groupBy []string) (string, []any) {
	values := make([]any, len(groupBy))
	parts := make([]string, len(groupBy))
	for i, name := range groupBy {
		values[i] = rec.Value(name)
		parts[i] = fmt.Sprint(values[i])
	}
	return strings.Join(parts, groupKeySep), values
}

// apply folds one aggregation over a group. Non-numeric and absent values
// are skipped; COUNT over nothing is 0, the others nil. COUNT without a
// field counts records.
func apply(agg aggregation, records []*etl.Record) any {
	if agg.function == "COUNT" && (agg.field == "" || agg.field == "*") {
		return float64(len(records))
	}
	nums := make([]float64, 0, len(records))
	for _, rec := range records {
		v := rec.Value(agg.field)
		if v == nil {
			continue
		}
		if f, ok := etl.ToFloat(v); ok && !math.IsNaN(f) {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		if agg.function == "COUNT" {
			return float64(0)
		}
		return nil
	}
	switch agg.function {
	case "SUM":
		return sum(nums)
	case "AVG":
		return sum(nums) / float64(len(nums))
	case "MIN":
		return slices.Min(nums)
	case "MAX":
		return slices.Max(nums)
	default:
		return float64(len(nums))
	}
}

func sum(nums []float64) float64 {
	var s float64
	for _, n := range nums {
		s += n
	}
	return s
}
