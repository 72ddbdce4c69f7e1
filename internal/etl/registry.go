package etl

import (
	"sort"
	"sync"
)

// ── Registries ─────────────────────────────────────────────
// Lookup tables from plugin type to implementation. Built once at startup by
// the plugin host and passed to whoever needs them. Registering a type twice
// replaces the earlier entry.

// ConnectorRegistry maps connector types to connectors.
type ConnectorRegistry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewConnectorRegistry returns an empty registry.
func NewConnectorRegistry() *ConnectorRegistry {
	return &ConnectorRegistry{connectors: make(map[string]Connector)}
}

// Register adds c under c.Type(), replacing any previous entry.
func (r *ConnectorRegistry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.Type()] = c
}

// RegisterAll registers every connector in order.
func (r *ConnectorRegistry) RegisterAll(cs []Connector) {
	for _, c := range cs {
		r.Register(c)
	}
}

// Get returns the connector registered for typ.
func (r *ConnectorRegistry) Get(typ string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[typ]
	return c, ok
}

// List returns descriptors of all connectors sorted by type.
func (r *ConnectorRegistry) List() []ConnectorInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]ConnectorInfo, 0, len(r.connectors))
	for _, c := range r.connectors {
		infos = append(infos, DescribeConnector(c))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Type < infos[j].Type })
	return infos
}

// TransformerRegistry maps transformer types to transformers.
type TransformerRegistry struct {
	mu           sync.RWMutex
	transformers map[string]Transformer
}

// NewTransformerRegistry returns an empty registry.
func NewTransformerRegistry() *TransformerRegistry {
	return &TransformerRegistry{transformers: make(map[string]Transformer)}
}

// Register adds t under t.Type(), replacing any previous entry.
func (r *TransformerRegistry) Register(t Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transformers[t.Type()] = t
}

// RegisterAll registers every transformer in order.
func (r *TransformerRegistry) RegisterAll(ts []Transformer) {
	for _, t := range ts {
		r.Register(t)
	}
}

// Get returns the transformer registered for typ.
func (r *TransformerRegistry) Get(typ string) (Transformer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transformers[typ]
	return t, ok
}

// List returns descriptors of all transformers sorted by type.
func (r *TransformerRegistry) List() []TransformerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]TransformerInfo, 0, len(r.transformers))
	for _, t := range r.transformers {
		infos = append(infos, DescribeTransformer(t))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Type < infos[j].Type })
	return infos
}
