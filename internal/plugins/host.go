package plugins

import (
	"github.com/frankawp/data-pipeline-builder/internal/etl"
	"github.com/frankawp/data-pipeline-builder/internal/etl/connectors"
	"github.com/frankawp/data-pipeline-builder/internal/etl/transformers"
)

// ─────────────────────────────────────────────────────────────
// Plugin host: the built-in connectors and transformers
// ─────────────────────────────────────────────────────────────

// Host owns the registries every command and service resolves plugins from.
type Host struct {
	Connectors   *etl.ConnectorRegistry
	Transformers *etl.TransformerRegistry
}

// NewHost returns a host with every built-in plugin registered. Extra
// plugins are registered after the built-ins, so one with a built-in type
// replaces it.
func NewHost(extraConnectors []etl.Connector, extraTransformers []etl.Transformer) *Host {
	h := &Host{
		Connectors:   etl.NewConnectorRegistry(),
		Transformers: etl.NewTransformerRegistry(),
	}
	h.Connectors.RegisterAll(connectors.All())
	h.Transformers.RegisterAll(transformers.All())
	h.Connectors.RegisterAll(extraConnectors)
	h.Transformers.RegisterAll(extraTransformers)
	return h
}

// Executor returns an executor bound to the host's registries.
func (h *Host) Executor(opts ...etl.ExecutorOption) *etl.Executor {
	return etl.NewExecutor(h.Connectors, h.Transformers, opts...)
}
