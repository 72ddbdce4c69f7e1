package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/frankawp/data-pipeline-builder/internal/domain"
	"github.com/frankawp/data-pipeline-builder/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// Pipeline Service: stored pipelines, runs, history and triggers
// ─────────────────────────────────────────────────────────────

// ErrAlreadyRunning is returned when a run of the same pipeline is in progress.
var ErrAlreadyRunning = errors.New("pipeline is already running")

const (
	defaultRunTimeout = 30 * time.Minute
	watchDebounce     = 500 * time.Millisecond
	checkTimeout      = 15 * time.Second
)

// PipelineService runs pipeline documents and manages stored definitions.
// The stores may be nil, in which case documents still run but nothing is
// persisted.
type PipelineService struct {
	pipelines    domain.PipelineStore
	executions   domain.ExecutionStore
	connectors   *etl.ConnectorRegistry
	transformers *etl.TransformerRegistry
	executor     *etl.Executor
	emitter      EventEmitter
	logger       *slog.Logger
	running      runningGuard
	runTimeout   time.Duration

	// watcher / cron lifecycle
	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// Option configures a PipelineService.
type Option func(*PipelineService)

// WithRunTimeout bounds every run. Zero disables the bound.
func WithRunTimeout(d time.Duration) Option {
	return func(s *PipelineService) { s.runTimeout = d }
}

// WithLogger sets the service logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *PipelineService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewPipelineService creates a PipelineService and the executor it runs with.
func NewPipelineService(
	pipelines domain.PipelineStore,
	executions domain.ExecutionStore,
	connectors *etl.ConnectorRegistry,
	transformers *etl.TransformerRegistry,
	emitter EventEmitter,
	opts ...Option,
) *PipelineService {
	s := &PipelineService{
		pipelines:    pipelines,
		executions:   executions,
		connectors:   connectors,
		transformers: transformers,
		emitter:      emitter,
		logger:       slog.Default(),
		runTimeout:   defaultRunTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.emitter == nil {
		s.emitter = SlogEmitter{Logger: s.logger}
	}
	s.executor = etl.NewExecutor(connectors, transformers,
		etl.WithLogger(s.logger),
		etl.WithNodeHook(func(nr etl.NodeResult) {
			s.emitter.Emit(context.Background(), EventNodeFinished, nr)
		}),
	)
	return s
}

// ── Definitions ────────────────────────────────────────────

// SavePipeline checks def's document and trigger, stores it and rebuilds the
// triggers.
func (s *PipelineService) SavePipeline(ctx context.Context, def *domain.PipelineDefinition) error {
	if s.pipelines == nil {
		return errors.New("no pipeline store configured")
	}
	if def.Pipeline == nil {
		return errors.New("pipeline document is required")
	}
	if err := s.executor.Check(def.Pipeline, nil); err != nil {
		return err
	}
	if err := validateTrigger(def.TriggerType, def.TriggerConfig); err != nil {
		return err
	}
	if err := s.pipelines.SavePipeline(def); err != nil {
		return fmt.Errorf("save pipeline: %w", err)
	}
	s.RestartTriggers(ctx)
	return nil
}

func validateTrigger(typ domain.TriggerType, cfg string) error {
	switch typ {
	case "", domain.TriggerManual:
		return nil
	case domain.TriggerSchedule:
		if _, err := cron.ParseStandard(cfg); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", cfg, err)
		}
		return nil
	case domain.TriggerFileWatch:
		if cfg == "" {
			return errors.New("file_watch trigger requires a path")
		}
		return nil
	default:
		return fmt.Errorf("unknown trigger type %q", typ)
	}
}

func (s *PipelineService) GetPipeline(id string) (*domain.PipelineDefinition, error) {
	if s.pipelines == nil {
		return nil, errors.New("no pipeline store configured")
	}
	return s.pipelines.GetPipeline(id)
}

func (s *PipelineService) ListPipelines() ([]domain.PipelineDefinition, error) {
	if s.pipelines == nil {
		return nil, nil
	}
	return s.pipelines.ListPipelines()
}

func (s *PipelineService) DeletePipeline(ctx context.Context, id string) error {
	if s.pipelines == nil {
		return errors.New("no pipeline store configured")
	}
	err := s.pipelines.DeletePipeline(id)
	if err == nil {
		s.RestartTriggers(ctx)
	}
	return err
}

// ── Run ────────────────────────────────────────────────────

// Run executes the stored pipeline id.
func (s *PipelineService) Run(ctx context.Context, id string, vars map[string]any) (*etl.ExecutionResult, error) {
	def, err := s.GetPipeline(id)
	if err != nil {
		return nil, err
	}
	return s.RunDocument(ctx, def.Pipeline, vars)
}

// RunDocument executes p synchronously and records the run in history. The
// returned error is only set when the run could not start; pipeline failures
// are reported in the result.
func (s *PipelineService) RunDocument(ctx context.Context, p *etl.Pipeline, vars map[string]any) (*etl.ExecutionResult, error) {
	if p == nil {
		return nil, errors.New("pipeline document is required")
	}
	key := p.ID
	if key == "" {
		key = p.Name
	}
	ec := etl.NewExecutionContext(p.ID, vars)
	release, holder, ok := s.running.Acquire(key, ec.ExecutionID)
	if !ok {
		return nil, fmt.Errorf("%s: execution %s started %s: %w", key, holder.ExecutionID,
			holder.Started.Format(time.TimeOnly), ErrAlreadyRunning)
	}
	defer release()

	if s.executions != nil {
		stub := &domain.Execution{
			ID:         ec.ExecutionID,
			PipelineID: p.ID,
			Status:     etl.StatusRunning,
			StartTime:  time.Now(),
		}
		if err := s.executions.CreateExecution(stub); err != nil {
			s.logger.Warn("record execution start", "pipeline", p.ID, "err", err)
		}
	}
	s.emitter.Emit(ctx, EventRunStarted, map[string]string{
		"pipelineId":  p.ID,
		"executionId": ec.ExecutionID,
	})

	runCtx := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	result := s.executor.Execute(runCtx, p, ec)

	if s.executions != nil {
		if err := s.executions.FinishExecution(result.ExecutionID, result); err != nil {
			s.logger.Warn("record execution result", "pipeline", p.ID, "err", err)
		}
	}
	s.emitter.Emit(ctx, EventRunFinished, result)
	return result, nil
}

// ── Introspection ──────────────────────────────────────────

func (s *PipelineService) ListConnectors() []etl.ConnectorInfo {
	return s.connectors.List()
}

func (s *PipelineService) ListTransformers() []etl.TransformerInfo {
	return s.transformers.List()
}

// ListExecutions returns up to limit runs of pipelineID, newest first.
func (s *PipelineService) ListExecutions(pipelineID string, limit int) ([]domain.Execution, error) {
	if s.executions == nil {
		return nil, nil
	}
	return s.executions.ListExecutions(pipelineID, limit)
}

// TestConnection tests cfg against the connector registered for typ.
func (s *PipelineService) TestConnection(ctx context.Context, typ string, cfg etl.Config) etl.ConnectionStatus {
	c, ok := s.connectors.Get(typ)
	if !ok {
		return etl.ConnectionStatus{Message: fmt.Sprintf("unknown connector type %q", typ)}
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return etl.CheckConnection(ctx, c, cfg)
}

// NodeCheck is the connection test outcome of one SOURCE or TARGET node.
type NodeCheck struct {
	NodeID string               `json:"nodeId"`
	Status etl.ConnectionStatus `json:"status"`
}

// CheckPipeline runs the executor's pre-flight checks on p and then tests
// every connector node concurrently. A structural or config problem is
// returned as an error; connection failures are reported per node.
func (s *PipelineService) CheckPipeline(ctx context.Context, p *etl.Pipeline, vars map[string]any) ([]NodeCheck, error) {
	if err := s.executor.Check(p, vars); err != nil {
		return nil, err
	}

	var nodes []*etl.Node
	for i := range p.Nodes {
		if p.Nodes[i].Type != etl.NodeTransformer {
			nodes = append(nodes, &p.Nodes[i])
		}
	}
	checks := make([]NodeCheck, len(nodes))
	merged := maps.Clone(p.Variables)
	if merged == nil {
		merged = make(map[string]any, len(vars))
	}
	maps.Copy(merged, vars)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, n := range nodes {
		g.Go(func() error {
			cfg := n.Config.Interpolate(merged)
			checks[i] = NodeCheck{NodeID: n.ID, Status: s.TestConnection(gctx, n.PluginType, cfg)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return checks, nil
}

// ── Triggers (cron + file_watch) ──────────────────────────

// RestartTriggers tears down the current watcher/cron and rebuilds them from
// the enabled stored pipelines.
func (s *PipelineService) RestartTriggers(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTriggers()

	if s.pipelines == nil {
		return
	}
	defs, err := s.pipelines.ListTriggeredPipelines()
	if err != nil {
		s.logger.Error("trigger: list pipelines", "err", err)
		return
	}

	runCtx := context.WithoutCancel(ctx)
	trigger := func(id, reason string) {
		s.emitter.Emit(runCtx, EventTriggered, map[string]string{"pipelineId": id, "reason": reason})
		res, err := s.Run(runCtx, id, nil)
		if err != nil {
			s.logger.Warn("trigger: run not started", "pipeline", id, "err", err)
			return
		}
		s.logger.Info("trigger: run finished", "pipeline", id, "status", res.Status)
	}

	// ── Cron schedules ──
	var c *cron.Cron
	for _, d := range defs {
		if d.TriggerType != domain.TriggerSchedule || d.TriggerConfig == "" {
			continue
		}
		if c == nil {
			c = cron.New()
		}
		id := d.ID
		if _, err := c.AddFunc(d.TriggerConfig, func() { trigger(id, "schedule") }); err != nil {
			s.logger.Error("trigger: invalid schedule", "pipeline", id, "expr", d.TriggerConfig, "err", err)
		}
	}
	if c != nil {
		c.Start()
		s.cronSched = c
		s.logger.Info("trigger: cron started", "entries", len(c.Entries()))
	}

	// ── File watchers ──
	pathToPipeline := make(map[string]string)
	for _, d := range defs {
		if d.TriggerType != domain.TriggerFileWatch || d.TriggerConfig == "" {
			continue
		}
		abs, err := filepath.Abs(d.TriggerConfig)
		if err != nil {
			s.logger.Error("trigger: bad watch path", "pipeline", d.ID, "path", d.TriggerConfig, "err", err)
			continue
		}
		pathToPipeline[abs] = d.ID
	}
	if len(pathToPipeline) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Error("trigger: create watcher", "err", err)
		return
	}
	s.watcher = watcher

	// Watch parent directories so editors that replace files are seen.
	watchedDirs := make(map[string]bool)
	for abs := range pathToPipeline {
		dir := filepath.Dir(abs)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			s.logger.Error("trigger: watch dir", "dir", dir, "err", err)
			continue
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel

	go func() {
		timers := make(map[string]*time.Timer)
		defer func() {
			for _, t := range timers {
				t.Stop()
			}
		}()
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				abs, _ := filepath.Abs(event.Name)
				id, ok := pathToPipeline[abs]
				if !ok {
					continue
				}
				if t, exists := timers[id]; exists {
					t.Stop()
				}
				timers[id] = time.AfterFunc(watchDebounce, func() { trigger(id, "file_watch") })
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("trigger: watcher error", "err", err)
			}
		}
	}()

	s.logger.Info("trigger: watching files", "count", len(pathToPipeline))
}

// ActiveRuns lists the executions in flight, one per pipeline.
func (s *PipelineService) ActiveRuns() []ActiveRun {
	return s.running.Active()
}

// WaitRunning blocks until all running pipelines finish. It returns ctx.Err()
// if ctx ends first.
func (s *PipelineService) WaitRunning(ctx context.Context) error {
	return s.running.Wait(ctx)
}

// Stop tears down all watchers and schedulers. It is safe to call twice.
func (s *PipelineService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTriggers()
}

func (s *PipelineService) stopTriggers() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
