package commands

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/shopflow/internal/cli/output"
	"github.com/leapstack-labs/shopflow/internal/engine"
	"github.com/leapstack-labs/shopflow/pkg/core"
)

// watchDebounce is how long the watcher waits for edits to settle.
const watchDebounce = 200 * time.Millisecond

// RunOptions holds options for the run command.
type RunOptions struct {
	Select      []string
	Downstream  bool
	FullRefresh bool
	Threads     int
	JSONOutput  bool
	Watch       bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"transform"},
		Short:   "Execute models in dependency order",
		Long: `Render and execute SQL models in dependency order.

Models in the same DAG level run concurrently, up to --threads at a time.
When a model fails its downstream models are skipped.

Selectors:
  slv_orders        a model by name or path (silver.slv_orders)
  layer:silver      every model of a layer
  tag:finance       every model with a tag
  +fct_orders       a model and everything upstream
  slv_orders+       a model and everything downstream`,
		Example: `  # Run every model
  shopflow run

  # Rebuild the silver layer from scratch
  shopflow run -s layer:silver --full-refresh

  # Stream JSON events for CI
  shopflow run --json

  # Re-run whenever a model file changes
  shopflow run --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Select, "select", "s", nil, "Models to run (name, path, layer:x, tag:x, +name, name+)")
	cmd.Flags().BoolVar(&opts.Downstream, "downstream", false, "Include everything downstream of the selection")
	cmd.Flags().BoolVar(&opts.FullRefresh, "full-refresh", false, "Rebuild incremental models from scratch")
	cmd.Flags().IntVar(&opts.Threads, "threads", 0, "Models to run concurrently per level (default: config threads)")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Stream JSON lines events for progress tracking")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-run when model files change")

	_ = cmd.RegisterFlagCompletionFunc("select", completeModels)

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if !opts.Watch {
		return runOnce(cmd.Context(), cc, opts)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return watchAndRun(ctx, cc, opts)
}

func runOnce(ctx context.Context, cc *CommandContext, opts *RunOptions) error {
	if _, err := discover(cc); err != nil {
		return err
	}

	runOpts := engine.RunOptions{
		Select:      splitSelectors(opts.Select),
		Downstream:  opts.Downstream,
		FullRefresh: opts.FullRefresh,
		Threads:     opts.Threads,
	}
	if opts.JSONOutput {
		return runWithJSON(ctx, cc, runOpts)
	}
	return runWithText(ctx, cc, runOpts)
}

func runWithText(ctx context.Context, cc *CommandContext, opts engine.RunOptions) error {
	r := cc.Renderer
	start := time.Now()

	if r.EffectiveMode() != output.ModeJSON {
		opts.OnModel = func(m *engine.ModelResult) {
			detail := fmt.Sprintf("[%s]", m.Materialized)
			if m.Status == core.ModelRunStatusSuccess {
				detail = fmt.Sprintf("[%s] %s in %s", m.Materialized, output.Plural(int(m.Rows), "row"), output.FormatDuration(m.Duration))
			} else if m.Error != "" {
				detail += " " + m.Error
			}
			r.StatusLine(m.Path, string(m.Status), detail)
		}
	}

	res, err := cc.Engine.Run(ctx, opts)
	if res == nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		if jerr := r.JSON(runSummary(res)); jerr != nil {
			return jerr
		}
		return err
	}

	r.Println("")
	summary := fmt.Sprintf("%d succeeded, %d failed, %d skipped in %s",
		res.Count(core.ModelRunStatusSuccess), res.Count(core.ModelRunStatusFailed),
		res.Count(core.ModelRunStatusSkipped), output.FormatDuration(time.Since(start)))
	if err != nil {
		r.Error("Run " + string(res.Run.Status) + ": " + summary)
		return err
	}
	r.Success("Run completed: " + summary)
	return nil
}

// runWithJSON streams run_start, one model_done per model and run_end as
// JSON lines.
func runWithJSON(ctx context.Context, cc *CommandContext, opts engine.RunOptions) error {
	r := cc.Renderer
	start := time.Now()

	emit := func(ev output.RunEvent) {
		ev.Timestamp = time.Now().UTC()
		if err := r.JSONLine(ev); err != nil {
			cc.Logger.Warn("failed to write event", "error", err)
		}
	}

	emit(output.RunEvent{Event: "run_start"})
	opts.OnModel = func(m *engine.ModelResult) {
		emit(output.RunEvent{
			Event:      "model_done",
			Model:      m.Path,
			Status:     string(m.Status),
			Rows:       m.Rows,
			DurationMS: m.Duration.Milliseconds(),
			Error:      m.Error,
		})
	}

	res, err := cc.Engine.Run(ctx, opts)
	end := output.RunEvent{Event: "run_end", DurationMS: time.Since(start).Milliseconds()}
	if res != nil {
		end.RunID = res.Run.ID
		end.Status = string(res.Run.Status)
		end.Succeeded = res.Count(core.ModelRunStatusSuccess)
		end.Failed = res.Count(core.ModelRunStatusFailed)
		end.Skipped = res.Count(core.ModelRunStatusSkipped)
	}
	if err != nil {
		end.Error = err.Error()
		if end.Status == "" {
			end.Status = string(core.RunStatusFailed)
		}
	}
	emit(end)
	return err
}

func runSummary(res *engine.RunResult) map[string]any {
	return map[string]any{
		"run_id": res.Run.ID,
		"status": res.Run.Status,
		"models": modelOutputs(res.Models),
	}
}

func modelOutputs(models []*engine.ModelResult) []output.ModelResultOutput {
	out := make([]output.ModelResultOutput, 0, len(models))
	for _, m := range models {
		out = append(out, output.ModelResultOutput{
			Path:         m.Path,
			Materialized: m.Materialized,
			Status:       string(m.Status),
			Rows:         m.Rows,
			DurationMS:   m.Duration.Milliseconds(),
			Error:        m.Error,
		})
	}
	return out
}

// watchAndRun runs once, then again after every settled change to a .sql
// or .yml file under the models directory, until ctx is cancelled. Run
// failures are reported and do not stop the watch.
func watchAndRun(ctx context.Context, cc *CommandContext, opts *RunOptions) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watchDirRecursive(watcher, cc.Cfg.ModelsDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", cc.Cfg.ModelsDir, err)
	}

	if err := runOnce(ctx, cc, opts); err != nil {
		cc.Renderer.Error(err.Error())
	}
	cc.Renderer.Muted(fmt.Sprintf("Watching %s for changes (Ctrl+C to stop)", cc.Cfg.ModelsDir))

	trigger := make(chan string, 1)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				// New directories need their own watch.
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watchDirRecursive(watcher, event.Name)
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ext := filepath.Ext(event.Name); ext != ".sql" && ext != ".yml" && ext != ".yaml" {
				continue
			}

			name := event.Name
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				select {
				case trigger <- name:
				default:
				}
			})

		case name := <-trigger:
			cc.Logger.Debug("model file changed, re-running", "file", name)
			cc.Renderer.Println("")
			cc.Renderer.Info("Change detected: " + name)
			if err := runOnce(ctx, cc, opts); err != nil {
				cc.Renderer.Error(err.Error())
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cc.Logger.Error("watcher error", "error", err)
		}
	}
}

// watchDirRecursive adds a directory and all subdirectories to the watcher.
func watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
