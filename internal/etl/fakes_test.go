package etl_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/frankawp/data-pipeline-builder/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// In-memory plugins used by the executor tests
// ─────────────────────────────────────────────────────────────

// memoryConnector reads named datasets and writes into named sinks.
type memoryConnector struct {
	mu       sync.Mutex
	datasets map[string][]*etl.Record
	sinks    map[string]*memorySink
	opened   int
}

type memorySink struct {
	records    []*etl.Record
	schema     *etl.Schema
	committed  bool
	rolledBack bool
	closed     bool
}

func newMemoryConnector() *memoryConnector {
	return &memoryConnector{
		datasets: make(map[string][]*etl.Record),
		sinks:    make(map[string]*memorySink),
	}
}

func (m *memoryConnector) sink(name string) *memorySink {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sinks[name]
	if !ok {
		s = &memorySink{}
		m.sinks[name] = s
	}
	return s
}

func (m *memoryConnector) Type() string        { return "memory" }
func (m *memoryConnector) DisplayName() string { return "Memory" }
func (m *memoryConnector) Description() string { return "in-memory datasets" }

func (m *memoryConnector) ConfigSchema() etl.ConfigSchema {
	return etl.ConfigSchema{Fields: []etl.ConfigField{
		{Name: "dataset", Type: etl.FieldString, Required: true},
		{Name: "failAfter", Type: etl.FieldInteger, DefaultValue: -1},
		{Name: "panicOnWrite", Type: etl.FieldBoolean, DefaultValue: false},
	}}
}

func (m *memoryConnector) Validate(cfg etl.Config) error {
	return m.ConfigSchema().Validate(m.Type(), cfg)
}

func (m *memoryConnector) TestConnection(context.Context, etl.Config) error { return nil }
func (m *memoryConnector) SupportsRead() bool                             { return true }
func (m *memoryConnector) SupportsWrite() bool                            { return true }

func (m *memoryConnector) CreateReader(cfg etl.Config) (etl.Reader, error) {
	return &memoryReader{conn: m, name: cfg.String("dataset", "")}, nil
}

func (m *memoryConnector) CreateWriter(cfg etl.Config) (etl.Writer, error) {
	return &memoryWriter{
		sink:      m.sink(cfg.String("dataset", "")),
		failAfter: cfg.Int("failAfter", -1),
		panics:    cfg.Bool("panicOnWrite", false),
	}, nil
}

type memoryReader struct {
	conn *memoryConnector
	name string
}

func (r *memoryReader) Open(context.Context) error {
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()
	r.conn.opened++
	if _, ok := r.conn.datasets[r.name]; !ok {
		return etl.ConnectionError("open", fmt.Errorf("dataset %q not found", r.name))
	}
	return nil
}

func (r *memoryReader) Schema(context.Context) (*etl.Schema, error) {
	recs := r.conn.datasets[r.name]
	if len(recs) == 0 {
		return &etl.Schema{}, nil
	}
	return etl.SchemaFromRecord(recs[0]), nil
}

func (r *memoryReader) Read(context.Context) (etl.Iterator, error) {
	return etl.SliceIterator(r.conn.datasets[r.name]), nil
}

func (r *memoryReader) EstimateCount(context.Context) int64 {
	return int64(len(r.conn.datasets[r.name]))
}

func (r *memoryReader) Close() error { return nil }

type memoryWriter struct {
	sink      *memorySink
	failAfter int
	panics    bool
	pending   []*etl.Record
	written   int64
}

func (w *memoryWriter) SetSchema(s *etl.Schema)    { w.sink.schema = s }
func (w *memoryWriter) Open(context.Context) error { return nil }

func (w *memoryWriter) Write(_ context.Context, rec *etl.Record) error {
	if w.panics {
		panic("writer exploded")
	}
	if w.failAfter >= 0 && len(w.pending) >= w.failAfter {
		return etl.ConnectionError("write", errors.New("disk full"))
	}
	w.pending = append(w.pending, rec)
	return nil
}

func (w *memoryWriter) WriteAll(ctx context.Context, it etl.Iterator) error {
	return etl.WriteEach(ctx, w, it)
}

func (w *memoryWriter) Commit(context.Context) error {
	w.sink.records = append(w.sink.records, w.pending...)
	w.written += int64(len(w.pending))
	w.pending = nil
	w.sink.committed = true
	return nil
}

func (w *memoryWriter) Rollback(context.Context) error {
	w.pending = nil
	w.sink.rolledBack = true
	return nil
}

func (w *memoryWriter) Close() error {
	w.sink.closed = true
	return nil
}

func (w *memoryWriter) WrittenCount() int64 { return w.written }

// tagTransformer sets field "tag" to its configured value on every record.
// It mutates records in place, which is what makes fan-out copies matter.
type tagTransformer struct{ etl.BaseTransformer }

func (tagTransformer) Type() string        { return "tag" }
func (tagTransformer) DisplayName() string { return "Tag" }
func (tagTransformer) Description() string { return "sets a tag field" }

func (tagTransformer) ConfigSchema() etl.ConfigSchema {
	return etl.ConfigSchema{Fields: []etl.ConfigField{
		{Name: "value", Type: etl.FieldString, Required: true},
	}}
}

func (t tagTransformer) Validate(cfg etl.Config) error {
	return t.ConfigSchema().Validate(t.Type(), cfg)
}

func (tagTransformer) OutputSchema(in *etl.Schema, _ etl.Config) (*etl.Schema, error) {
	out := in.Clone()
	if out == nil {
		out = &etl.Schema{}
	}
	if _, ok := out.Field("tag"); !ok {
		out.Fields = append(out.Fields, etl.Field{Name: "tag", Type: etl.TypeString})
	}
	return out, nil
}

func (tagTransformer) Transform(_ context.Context, in etl.Iterator, cfg etl.Config) (etl.Iterator, error) {
	value := cfg.String("value", "")
	return etl.MapIterator(in, func(r *etl.Record) (*etl.Record, error) {
		r.Set("tag", value)
		return r, nil
	}), nil
}

// concatTransformer concatenates its inputs in source-id order.
type concatTransformer struct{ tagTransformer }

func (concatTransformer) Type() string                   { return "concat" }
func (concatTransformer) SupportsMultipleInputs() bool   { return true }
func (concatTransformer) ConfigSchema() etl.ConfigSchema { return etl.ConfigSchema{} }
func (concatTransformer) Validate(etl.Config) error      { return nil }

func (concatTransformer) OutputSchema(in *etl.Schema, _ etl.Config) (*etl.Schema, error) {
	return in, nil
}

func (concatTransformer) TransformMulti(ctx context.Context, inputs map[string]etl.Iterator, _ etl.Config) (etl.Iterator, error) {
	var all []*etl.Record
	for _, id := range []string{"a", "b", "c"} {
		in, ok := inputs[id]
		if !ok {
			continue
		}
		recs, err := etl.Drain(ctx, in)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	return etl.SliceIterator(all), nil
}

func newRegistries(conn *memoryConnector) (*etl.ConnectorRegistry, *etl.TransformerRegistry) {
	cr := etl.NewConnectorRegistry()
	cr.Register(conn)
	tr := etl.NewTransformerRegistry()
	tr.RegisterAll([]etl.Transformer{tagTransformer{}, concatTransformer{}})
	return cr, tr
}

func rows(n int) []*etl.Record {
	out := make([]*etl.Record, n)
	for i := range out {
		out[i] = etl.RecordFromPairs("id", i+1, "name", fmt.Sprintf("row-%d", i+1))
	}
	return out
}

func src(id, dataset string) etl.Node {
	return etl.Node{ID: id, Type: etl.NodeSource, PluginType: "memory", Config: etl.Config{"dataset": dataset}}
}

func tgt(id, dataset string) etl.Node {
	return etl.Node{ID: id, Type: etl.NodeTarget, PluginType: "memory", Config: etl.Config{"dataset": dataset}}
}

func tag(id, value string) etl.Node {
	return etl.Node{ID: id, Type: etl.NodeTransformer, PluginType: "tag", Config: etl.Config{"value": value}}
}

func edge(from, to string) etl.Edge {
	return etl.Edge{ID: from + "->" + to, SourceNodeID: from, TargetNodeID: to}
}
