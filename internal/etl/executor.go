package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/frankawp/data-pipeline-builder/internal/metrics"
)

// ── Executor ───────────────────────────────────────────────
// Runs a pipeline graph end to end:
//
//	plan (validate, order, resolve plugins, validate config)
//	  → SOURCE: open reader, materialise records
//	  → TRANSFORMER: fresh copy of each input, materialise output
//	  → TARGET: stream upstream records into a writer, commit
//
// Every non-TARGET output is buffered in memory and handed to each consumer
// as a new sequence, so fan-out works regardless of consumer type or order.

// Executor runs pipelines against a pair of registries. It is safe for
// concurrent use; all per-run state lives in the run.
type Executor struct {
	connectors   *ConnectorRegistry
	transformers *TransformerRegistry
	logger       *slog.Logger
	onNode       func(NodeResult)
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithNodeHook registers fn to be called after every node finishes,
// successfully or not.
func WithNodeHook(fn func(NodeResult)) ExecutorOption {
	return func(e *Executor) { e.onNode = fn }
}

// NewExecutor creates an executor bound to the given registries.
func NewExecutor(connectors *ConnectorRegistry, transformers *TransformerRegistry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		connectors:   connectors,
		transformers: transformers,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "executor")
	return e
}

// step is a node with its plugin resolved and its config finalised.
type step struct {
	node        *Node
	cfg         Config
	connector   Connector
	transformer Transformer
	inputs      []string // upstream node ids, edge order
}

// Check runs every pre-flight check Execute performs without opening any
// reader or writer. vars override the pipeline's own variables.
func (e *Executor) Check(p *Pipeline, vars map[string]any) error {
	_, err := e.plan(p, mergeVars(p.Variables, vars))
	return err
}

func mergeVars(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	maps.Copy(out, base)
	maps.Copy(out, override)
	return out
}

func (e *Executor) plan(p *Pipeline, vars map[string]any) ([]step, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	order, err := p.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	steps := make([]step, 0, len(order))
	for _, n := range order {
		s := step{node: n}
		for _, edge := range p.IncomingEdges(n.ID) {
			s.inputs = append(s.inputs, edge.SourceNodeID)
		}

		var schema ConfigSchema
		switch n.Type {
		case NodeSource, NodeTarget:
			c, ok := e.connectors.Get(n.PluginType)
			if !ok {
				return nil, StructuralErrorf(ErrUnknownPlugin, "node %q uses connector %q", n.ID, n.PluginType)
			}
			if n.Type == NodeSource && !c.SupportsRead() {
				return nil, ConfigErrorf(c.Type(), "connector cannot be used as a source (node %q)", n.ID)
			}
			if n.Type == NodeTarget {
				if !c.SupportsWrite() {
					return nil, ConfigErrorf(c.Type(), "connector cannot be used as a target (node %q)", n.ID)
				}
				if len(s.inputs) != 1 {
					return nil, StructuralErrorf(nil, "target node %q needs exactly one input, has %d", n.ID, len(s.inputs))
				}
				if out := p.OutgoingEdges(n.ID); len(out) > 0 {
					return nil, StructuralErrorf(nil, "target node %q cannot feed node %q: targets produce no output", n.ID, out[0].TargetNodeID)
				}
			}
			s.connector, schema = c, c.ConfigSchema()
		case NodeTransformer:
			t, ok := e.transformers.Get(n.PluginType)
			if !ok {
				return nil, StructuralErrorf(ErrUnknownPlugin, "node %q uses transformer %q", n.ID, n.PluginType)
			}
			if len(s.inputs) == 0 {
				return nil, StructuralErrorf(nil, "transformer node %q has no input", n.ID)
			}
			s.transformer, schema = t, t.ConfigSchema()
		}

		s.cfg = schema.ApplyDefaults(n.Config.Interpolate(vars))
		if s.connector != nil {
			err = s.connector.Validate(s.cfg)
		} else {
			err = s.transformer.Validate(s.cfg)
		}
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}

// Execute runs p and always returns a complete result; failures are reported
// in it rather than returned. ec may be nil, in which case a fresh context is
// created. Variables on ec override the pipeline's own.
func (e *Executor) Execute(ctx context.Context, p *Pipeline, ec *ExecutionContext) *ExecutionResult {
	if ec == nil {
		ec = NewExecutionContext(p.ID, nil)
	}
	if ec.NodeStats == nil {
		ec.NodeStats = make(map[string]*NodeResult)
	}
	ec.StartTime = time.Now()
	ec.Status = StatusRunning

	vars := mergeVars(p.Variables, ec.Variables)

	r := &run{
		e:         e,
		p:         p,
		ec:        ec,
		vars:      vars,
		log:       e.logger.With("pipeline", p.ID, "execution", ec.ExecutionID),
		outputs:   make(map[string][]*Record),
		schemas:   make(map[string]*Schema),
		consumers: make(map[string]int),
	}
	err := r.execute(WithVariables(ctx, vars))
	return r.finish(err)
}

// ── Run state ──────────────────────────────────────────────

type run struct {
	e    *Executor
	p    *Pipeline
	ec   *ExecutionContext
	vars map[string]any
	log  *slog.Logger

	outputs   map[string][]*Record // buffered non-TARGET output
	schemas   map[string]*Schema
	fanout    map[string]int // out-degree per node
	consumers map[string]int // consumers still to read each output

	results   []NodeResult
	buffered  int64
	delivered int64
	targets   int
}

func (r *run) execute(ctx context.Context) error {
	steps, err := r.e.plan(r.p, r.vars)
	if err != nil {
		return err
	}

	r.fanout = make(map[string]int, len(steps))
	for _, s := range steps {
		if s.node.Type == NodeTarget {
			r.targets++
		}
		for _, in := range s.inputs {
			r.fanout[in]++
			r.consumers[in]++
		}
	}

	r.log.Info("executing pipeline", "nodes", len(steps), "edges", len(r.p.Edges))
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runStep(ctx, s); err != nil {
			return ExecutionError(s.node.ID, err)
		}
	}
	return nil
}

func (r *run) runStep(ctx context.Context, s step) (err error) {
	n := s.node
	nr := NodeResult{NodeID: n.ID, NodeName: n.label(), Status: StatusRunning}
	r.ec.NodeStats[n.ID] = &nr
	start := time.Now()
	r.log.Debug("node started", "node", n.ID, "type", n.Type, "plugin", n.PluginType)

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		d := time.Since(start)
		nr.DurationMs = d.Milliseconds()
		if err != nil {
			nr.Status = StatusFailed
			nr.ErrorMessage = err.Error()
			r.log.Error("node failed", "node", n.ID, "error", err, "duration", d)
		} else {
			nr.Status = StatusCompleted
			r.log.Info("node completed", "node", n.ID,
				"read", nr.RecordsRead, "written", nr.RecordsWritten, "duration", d)
		}
		r.results = append(r.results, nr)
		metrics.RecordNode(r.p.ID, string(n.Type), n.PluginType, err, d)
		if r.e.onNode != nil {
			r.e.onNode(nr)
		}
	}()

	switch n.Type {
	case NodeSource:
		err = r.runSource(ctx, s, &nr)
	case NodeTransformer:
		err = r.runTransformer(ctx, s, &nr)
	case NodeTarget:
		err = r.runTarget(ctx, s, &nr)
	}
	return err
}

// input returns a fresh sequence over the buffered output of id. Consumers
// of a node with several downstream edges get their own record copies.
func (r *run) input(id string) (Iterator, int64) {
	records := r.outputs[id]
	n := int64(len(records))
	if r.fanout[id] > 1 {
		copies := make([]*Record, len(records))
		for i, rec := range records {
			copies[i] = rec.Clone()
		}
		records = copies
	}
	r.consumers[id]--
	if r.consumers[id] <= 0 {
		delete(r.outputs, id)
	}
	return SliceIterator(records), n
}

func (r *run) store(id string, records []*Record, schema *Schema) {
	r.outputs[id] = records
	if schema == nil || schema.Len() == 0 {
		schema = deriveSchemaFromRecords(records, schema)
	}
	r.schemas[id] = schema
	r.buffered += int64(len(records))
	metrics.RecordRows(r.p.ID, "buffered", int64(len(records)))
}

func (r *run) runSource(ctx context.Context, s step, nr *NodeResult) error {
	reader, err := s.connector.CreateReader(s.cfg)
	if err != nil {
		return err
	}
	defer reader.Close()

	if err := reader.Open(ctx); err != nil {
		return err
	}
	schema, err := reader.Schema(ctx)
	if err != nil {
		return err
	}
	it, err := reader.Read(ctx)
	if err != nil {
		return err
	}
	records, err := Drain(ctx, it)
	if err != nil {
		return err
	}

	nr.RecordsRead = int64(len(records))
	nr.RecordsWritten = nr.RecordsRead
	metrics.RecordRows(r.p.ID, "read", nr.RecordsRead)
	r.store(s.node.ID, records, schema)
	return nil
}

func (r *run) runTransformer(ctx context.Context, s step, nr *NodeResult) error {
	var (
		out    Iterator
		schema *Schema
		err    error
	)
	if len(s.inputs) == 1 {
		in, n := r.input(s.inputs[0])
		nr.RecordsRead = n
		schema, err = s.transformer.OutputSchema(r.schemas[s.inputs[0]], s.cfg)
		if err != nil {
			in.Close()
			return err
		}
		out, err = s.transformer.Transform(ctx, in, s.cfg)
		if err != nil {
			in.Close()
			return err
		}
	} else {
		multi, ok := s.transformer.(MultiInputTransformer)
		if !ok || !s.transformer.SupportsMultipleInputs() {
			return &Error{Kind: ErrExecution, Op: s.transformer.Type(),
				Msg: fmt.Sprintf("%d inputs given but transformer accepts one", len(s.inputs)), Err: ErrUnsupported}
		}
		inputs := make(map[string]Iterator, len(s.inputs))
		var merged *Schema
		for _, id := range s.inputs {
			in, n := r.input(id)
			nr.RecordsRead += n
			inputs[id] = in
			if merged == nil {
				merged = r.schemas[id].Clone()
			}
		}
		schema, err = s.transformer.OutputSchema(merged, s.cfg)
		if err == nil {
			out, err = multi.TransformMulti(ctx, inputs, s.cfg)
		}
		if err != nil {
			for _, in := range inputs {
				in.Close()
			}
			return err
		}
	}

	records, err := Drain(ctx, out)
	if err != nil {
		return err
	}
	nr.RecordsWritten = int64(len(records))
	r.store(s.node.ID, records, schema)
	return nil
}

func (r *run) runTarget(ctx context.Context, s step, nr *NodeResult) (err error) {
	upstream := s.inputs[0]
	schema := r.schemas[upstream]
	in, n := r.input(upstream)
	nr.RecordsRead = n

	writer, err := s.connector.CreateWriter(s.cfg)
	if err != nil {
		in.Close()
		return err
	}
	defer func() {
		if cerr := writer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		if err != nil {
			if rbErr := writer.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
				r.log.Warn("rollback failed", "node", s.node.ID, "error", rbErr)
			}
		}
	}()

	writer.SetSchema(schema)
	if err = writer.Open(ctx); err != nil {
		in.Close()
		return err
	}
	if err = writer.WriteAll(ctx, in); err != nil {
		return err
	}
	if err = writer.Commit(ctx); err != nil {
		return err
	}

	nr.RecordsWritten = writer.WrittenCount()
	r.delivered += nr.RecordsWritten
	metrics.RecordRows(r.p.ID, "written", nr.RecordsWritten)
	return nil
}

// finish freezes the run into an ExecutionResult and updates the context.
func (r *run) finish(err error) *ExecutionResult {
	ec := r.ec
	ec.EndTime = time.Now()
	switch {
	case err == nil:
		ec.Status = StatusCompleted
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		ec.Status = StatusCancelled
		ec.ErrorMessage = err.Error()
	default:
		ec.Status = StatusFailed
		ec.ErrorMessage = err.Error()
	}

	total := r.delivered
	if r.targets == 0 {
		total = r.buffered
	}
	res := &ExecutionResult{
		ExecutionID:           ec.ExecutionID,
		PipelineID:            ec.PipelineID,
		Status:                ec.Status,
		StartTime:             ec.StartTime,
		EndTime:               ec.EndTime,
		TotalRecordsProcessed: total,
		TotalRecordsBuffered:  r.buffered,
		NodeResults:           r.results,
		ErrorMessage:          ec.ErrorMessage,
	}
	if res.NodeResults == nil {
		res.NodeResults = []NodeResult{}
	}

	d := res.Duration()
	metrics.RecordRun(r.p.ID, string(res.Status), d)
	if err != nil {
		r.log.Error("pipeline finished", "status", res.Status, "error", err, "duration", d)
	} else {
		r.log.Info("pipeline finished", "status", res.Status,
			"records", res.TotalRecordsProcessed, "duration", d)
	}
	return res
}
