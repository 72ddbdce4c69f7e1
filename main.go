package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/frankawp/data-pipeline-builder/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries the settings shared by every command.
type cli struct {
	cfg    app.Config
	logger *slog.Logger
}

func rootCmd() *cobra.Command {
	c := &cli{}
	envCfg, envErr := app.ConfigFromEnv()
	c.cfg = envCfg

	root := &cobra.Command{
		Use:           "pipeline",
		Short:         "Batch data-integration engine",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `pipeline runs DAGs of sources, transformers and targets described as JSON
documents. Sources read CSV, JSON, relational databases or MongoDB; records
flow through filter, map, aggregate, dedupe and union transformers into
targets written transactionally.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if envErr != nil {
				return envErr
			}
			logger, err := c.cfg.NewLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			c.logger = logger
			slog.SetDefault(logger)
			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&c.cfg.DataDir, "data-dir", c.cfg.DataDir, "directory for the history database (PIPELINE_DATA_DIR)")
	f.StringVar(&c.cfg.DBPath, "db", c.cfg.DBPath, "history database path (PIPELINE_DB)")
	f.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "debug, info, warn or error (PIPELINE_LOG_LEVEL)")
	f.StringVar(&c.cfg.LogFormat, "log-format", c.cfg.LogFormat, "text or json (PIPELINE_LOG_FORMAT)")
	f.StringVar(&c.cfg.PushgatewayURL, "pushgateway", c.cfg.PushgatewayURL, "Prometheus Pushgateway URL (PIPELINE_PUSHGATEWAY_URL)")
	f.StringVar(&c.cfg.StatsdAddr, "statsd", c.cfg.StatsdAddr, "DogStatsD address (PIPELINE_STATSD_ADDR)")
	f.DurationVar(&c.cfg.RunTimeout, "timeout", c.cfg.RunTimeout, "maximum duration of one run, 0 for none (PIPELINE_RUN_TIMEOUT)")

	root.AddCommand(c.runCmd())
	root.AddCommand(c.validateCmd())
	root.AddCommand(c.graphCmd())
	root.AddCommand(c.pluginsCmd())
	root.AddCommand(c.saveCmd())
	root.AddCommand(c.deleteCmd())
	root.AddCommand(c.historyCmd())
	root.AddCommand(c.serveCmd())
	return root
}

// open opens the app for commands that need storage and services.
func (c *cli) open() (*app.App, error) {
	return app.Open(c.cfg, c.logger)
}
