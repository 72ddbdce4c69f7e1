// Package connectors holds the built-in source and target connectors.
package connectors

import "github.com/frankawp/data-pipeline-builder/internal/etl"

// All returns every built-in connector.
func All() []etl.Connector {
	return []etl.Connector{
		CSV{},
		JSON{},
		Database{},
		Mongo{},
		HTTP{},
	}
}
