// Package transformers holds the built-in record transformers.
package transformers

import "github.com/frankawp/data-pipeline-builder/internal/etl"

// All returns every built-in transformer.
func All() []etl.Transformer {
	return []etl.Transformer{
		Filter{},
		FieldMap{},
		Aggregate{},
		Dedupe{},
		Union{},
	}
}
