package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/frankawp/data-pipeline-builder/internal/domain"
	"github.com/frankawp/data-pipeline-builder/internal/etl"
	"github.com/frankawp/data-pipeline-builder/internal/plugins"
	"github.com/frankawp/data-pipeline-builder/internal/render"
)

// ─── run ──────────────────────────────────────────────────────────────────────

func (c *cli) runCmd() *cobra.Command {
	var (
		vars   []string
		stored bool
	)

	cmd := &cobra.Command{
		Use:   "run <pipeline.json | pipeline-id>",
		Short: "Execute a pipeline and record the run in history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseVars(vars)
			if err != nil {
				return err
			}
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()

			var res *etl.ExecutionResult
			if stored {
				res, err = a.Pipelines.Run(cmd.Context(), args[0], overrides)
			} else {
				var p *etl.Pipeline
				if p, err = loadPipeline(args[0]); err != nil {
					return err
				}
				res, err = a.Pipelines.RunDocument(cmd.Context(), p, overrides)
			}
			if err != nil {
				return err
			}

			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if res.Status != etl.StatusCompleted {
				return fmt.Errorf("pipeline %s: %s", strings.ToLower(string(res.Status)), res.ErrorMessage)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&vars, "var", nil, "run variable as name=value (repeatable); overrides the document's variables")
	cmd.Flags().BoolVar(&stored, "stored", false, "treat the argument as the id of a saved pipeline")
	return cmd
}

// ─── validate ─────────────────────────────────────────────────────────────────

func (c *cli) validateCmd() *cobra.Command {
	var (
		vars        []string
		connections bool
	)

	cmd := &cobra.Command{
		Use:   "validate <pipeline.json>",
		Short: "Check a pipeline document without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPipeline(args[0])
			if err != nil {
				return err
			}
			overrides, err := parseVars(vars)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !connections {
				if err := plugins.NewHost(nil, nil).Executor().Check(p, overrides); err != nil {
					return err
				}
				fmt.Fprintf(out, "OK: pipeline %q is valid (%d nodes, %d edges)\n", p.Name, len(p.Nodes), len(p.Edges))
				return nil
			}

			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()
			checks, err := a.Pipelines.CheckPipeline(cmd.Context(), p, overrides)
			if err != nil {
				return err
			}
			failed := 0
			for _, ch := range checks {
				mark := "ok"
				if !ch.Status.Success {
					mark = "FAIL"
					failed++
				}
				fmt.Fprintf(out, "%-4s %s: %s\n", mark, ch.NodeID, ch.Status.Message)
			}
			if failed > 0 {
				return fmt.Errorf("%d connection check(s) failed", failed)
			}
			fmt.Fprintf(out, "OK: pipeline %q is valid and all connections succeed\n", p.Name)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&vars, "var", nil, "run variable as name=value (repeatable)")
	cmd.Flags().BoolVar(&connections, "connections", false, "also test every source and target connection")
	return cmd
}

// ─── graph ────────────────────────────────────────────────────────────────────

func (c *cli) graphCmd() *cobra.Command {
	var (
		format string
		last   bool
	)

	cmd := &cobra.Command{
		Use:   "graph <pipeline.json>",
		Short: "Print a pipeline as text or Graphviz DOT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPipeline(args[0])
			if err != nil {
				return err
			}

			var result *etl.ExecutionResult
			if last {
				if result, err = c.lastResult(p.ID); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			switch strings.ToLower(format) {
			case "dot":
				dot, err := render.DOT(p, result)
				if err != nil {
					return err
				}
				fmt.Fprint(out, dot)
			case "text", "":
				return renderText(out, p)
			default:
				return fmt.Errorf("unknown format %q: use text or dot", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or dot")
	cmd.Flags().BoolVar(&last, "last", false, "annotate nodes with the latest successful run from history (dot only)")
	return cmd
}

// lastResult loads the newest completed run of pipelineID, or nil.
func (c *cli) lastResult(pipelineID string) (*etl.ExecutionResult, error) {
	a, err := c.open()
	if err != nil {
		return nil, err
	}
	defer a.Close()

	runs, err := a.Pipelines.ListExecutions(pipelineID, 20)
	if err != nil {
		return nil, err
	}
	for _, r := range runs {
		if r.ResultJSON == "" {
			continue
		}
		var res etl.ExecutionResult
		if err := json.Unmarshal([]byte(r.ResultJSON), &res); err != nil {
			return nil, fmt.Errorf("decode run %s: %w", r.ID, err)
		}
		return &res, nil
	}
	return nil, nil
}

func renderText(w io.Writer, p *etl.Pipeline) error {
	order, err := p.TopologicalOrder()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Pipeline: %s\n", p.Name)
	fmt.Fprintf(w, "Nodes: %d  Edges: %d\n\n", len(p.Nodes), len(p.Edges))
	for i, n := range order {
		var next []string
		for _, e := range p.OutgoingEdges(n.ID) {
			next = append(next, e.TargetNodeID)
		}
		line := fmt.Sprintf("%2d. %-11s %s [%s]", i+1, n.Type, n.ID, n.PluginType)
		if len(next) > 0 {
			line += " → " + strings.Join(next, ", ")
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

// ─── plugins ──────────────────────────────────────────────────────────────────

func (c *cli) pluginsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List the available connectors and transformers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h := plugins.NewHost(nil, nil)
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, map[string]any{
					"connectors":   h.Connectors.List(),
					"transformers": h.Transformers.List(),
				})
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tTYPE\tMODES\tDESCRIPTION")
			for _, ci := range h.Connectors.List() {
				var modes []string
				if ci.SupportsRead {
					modes = append(modes, "read")
				}
				if ci.SupportsWrite {
					modes = append(modes, "write")
				}
				fmt.Fprintf(tw, "connector\t%s\t%s\t%s\n", ci.Type, strings.Join(modes, ","), ci.Description)
			}
			for _, ti := range h.Transformers.List() {
				modes := "single"
				if ti.SupportsMultipleInputs {
					modes = "multi"
				}
				fmt.Fprintf(tw, "transformer\t%s\t%s\t%s\n", ti.Type, modes, ti.Description)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print full descriptors including config schemas")
	return cmd
}

// ─── save / delete ────────────────────────────────────────────────────────────

func (c *cli) saveCmd() *cobra.Command {
	var (
		trigger       string
		triggerConfig string
		disabled      bool
	)

	cmd := &cobra.Command{
		Use:   "save <pipeline.json>",
		Short: "Store a pipeline definition, optionally with a trigger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPipeline(args[0])
			if err != nil {
				return err
			}
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()

			def := &domain.PipelineDefinition{
				ID:            p.ID,
				Name:          p.Name,
				Description:   p.Description,
				Pipeline:      p,
				TriggerType:   domain.TriggerType(trigger),
				TriggerConfig: triggerConfig,
				Enabled:       !disabled,
			}
			if err := a.Pipelines.SavePipeline(cmd.Context(), def); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s)\n", def.ID, def.TriggerType)
			return nil
		},
	}

	cmd.Flags().StringVar(&trigger, "trigger", string(domain.TriggerManual), "manual, schedule or file_watch")
	cmd.Flags().StringVar(&triggerConfig, "trigger-config", "", "cron expression (schedule) or path (file_watch)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "store without activating the trigger")
	return cmd
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <pipeline-id>",
		Short: "Delete a stored pipeline and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Pipelines.DeletePipeline(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

// ─── history ──────────────────────────────────────────────────────────────────

func (c *cli) historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [pipeline-id]",
		Short: "List recent runs, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()

			pipelineID := ""
			if len(args) == 1 {
				pipelineID = args[0]
			}
			runs, err := a.Pipelines.ListExecutions(pipelineID, limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "EXECUTION\tPIPELINE\tSTATUS\tSTARTED\tDURATION\tRECORDS\tERROR")
			for _, r := range runs {
				duration := "-"
				if r.EndTime != nil {
					duration = r.EndTime.Sub(r.StartTime).Round(time.Millisecond).String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					r.ID, r.PipelineID, r.Status, r.StartTime.Format(time.DateTime),
					duration, r.TotalRecordsProcessed, r.ErrorMessage)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	return cmd
}

// ─── serve ────────────────────────────────────────────────────────────────────

func (c *cli) serveCmd() *cobra.Command {
	var withMCP, readOnly bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled and file-watch triggers until interrupted",
		Long: `serve starts the cron schedules and file watchers of every enabled stored
pipeline. With --mcp it also serves the MCP tool surface on stdin/stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(cmd.Context(), withMCP, readOnly)
		},
	}

	cmd.Flags().BoolVar(&withMCP, "mcp", false, "serve MCP tools on stdin/stdout")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "refuse MCP tools that run, save or delete pipelines")
	return cmd
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func loadPipeline(path string) (*etl.Pipeline, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline file: %w", err)
	}
	return etl.ParsePipeline(src)
}

// parseVars turns name=value pairs into variables. Values that parse as
// numbers or booleans keep that type.
func parseVars(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, errors.New("--var expects name=value, got " + strconv.Quote(pair))
		}
		switch {
		case value == "true" || value == "false":
			vars[name] = value == "true"
		default:
			if i, err := strconv.ParseInt(value, 10, 64); err == nil {
				vars[name] = i
			} else if f, err := strconv.ParseFloat(value, 64); err == nil {
				vars[name] = f
			} else {
				vars[name] = value
			}
		}
	}
	return vars, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
