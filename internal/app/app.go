// Package app wires storage, plugins, services and metrics into a running
// process. Commands in main open an App, use its services and close it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/frankawp/data-pipeline-builder/internal/mcp"
	"github.com/frankawp/data-pipeline-builder/internal/metrics"
	"github.com/frankawp/data-pipeline-builder/internal/metrics/datadog"
	"github.com/frankawp/data-pipeline-builder/internal/metrics/prompush"
	"github.com/frankawp/data-pipeline-builder/internal/plugins"
	"github.com/frankawp/data-pipeline-builder/internal/service"
	"github.com/frankawp/data-pipeline-builder/internal/storage"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// App holds the long-lived components of the process.
type App struct {
	Config    Config
	Logger    *slog.Logger
	Host      *plugins.Host
	Pipelines *service.PipelineService

	db      *storage.DB
	closers []func() error
}

// Open opens the history database, installs the configured metrics backends
// and builds the pipeline service.
func Open(cfg Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Host: plugins.NewHost(nil, nil)}

	db, err := storage.New(cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	a.db = db

	if err := a.setupMetrics(); err != nil {
		db.Close()
		return nil, err
	}

	a.Pipelines = service.NewPipelineService(
		storage.NewPipelineStore(db),
		storage.NewExecutionStore(db),
		a.Host.Connectors,
		a.Host.Transformers,
		service.SlogEmitter{Logger: logger.With("component", "events")},
		service.WithLogger(logger),
		service.WithRunTimeout(cfg.RunTimeout),
	)
	return a, nil
}

func (a *App) setupMetrics() error {
	var backends metrics.Multi
	if a.Config.PushgatewayURL != "" {
		b, err := prompush.NewBackend("pipeline", a.Config.PushgatewayURL)
		if err != nil {
			return err
		}
		backends = append(backends, b)
	}
	if a.Config.StatsdAddr != "" {
		b, err := datadog.NewBackend(datadog.Config{Addr: a.Config.StatsdAddr, Namespace: "pipeline."})
		if err != nil {
			return err
		}
		backends = append(backends, b)
		a.closers = append(a.closers, b.Close)
	}
	if len(backends) > 0 {
		metrics.SetBackend(backends)
		a.Logger.Debug("metrics enabled", "backends", len(backends))
	}
	return nil
}

// Close stops triggers, flushes metrics and closes the database.
func (a *App) Close() error {
	if a.Pipelines != nil {
		a.Pipelines.Stop()
	}
	errs := []error{metrics.Flush()}
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	metrics.SetBackend(nil)
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// MCPServer builds the MCP surface over the app's pipeline service.
func (a *App) MCPServer(readOnly bool) *mcpserver.Server {
	return mcpserver.New(mcpserver.Deps{
		Pipelines: a.Pipelines,
		ReadOnly:  readOnly,
		Logger:    a.Logger.With("component", "mcp"),
		Version:   Version,
	})
}

// Serve runs the stored triggers until interrupted. With withMCP the MCP
// stdio server runs in the foreground and its exit also ends the process.
func (a *App) Serve(ctx context.Context, withMCP, readOnly bool) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a.Pipelines.RestartTriggers(ctx)
	a.Logger.Info("serving triggers", "history", a.Config.HistoryPath())

	var serveErr error
	if withMCP {
		done := make(chan error, 1)
		go func() { done <- a.MCPServer(readOnly).ServeStdio() }()
		select {
		case serveErr = <-done:
		case <-ctx.Done():
		}
	} else {
		<-ctx.Done()
	}

	a.Logger.Info("shutting down, waiting for running pipelines", "running", len(a.Pipelines.ActiveRuns()))
	a.Pipelines.Stop()
	waitCtx := context.Background()
	if a.Config.RunTimeout > 0 {
		var stop context.CancelFunc
		waitCtx, stop = context.WithTimeout(waitCtx, a.Config.RunTimeout)
		defer stop()
	}
	if err := a.Pipelines.WaitRunning(waitCtx); err != nil {
		for _, r := range a.Pipelines.ActiveRuns() {
			a.Logger.Warn("pipeline still running at shutdown", "pipeline", r.PipelineKey, "execution", r.ExecutionID)
		}
	}
	return serveErr
}
