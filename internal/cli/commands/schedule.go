package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/shopflow/internal/cli/output"
	"github.com/leapstack-labs/shopflow/internal/engine"
	"github.com/leapstack-labs/shopflow/internal/scheduler"
)

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand() *cobra.Command {
	var (
		every     time.Duration
		cronExpr  string
		timezone  string
		runNow    bool
		selectors []string
		skipLoad  bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run builds on a schedule",
		Long: `Run "build" repeatedly, either at a fixed interval or on a cron expression.
Model files are re-discovered before every build, so edits are picked up
without a restart. Overlapping runs are skipped.

Defaults come from the schedule section of shopflow.yaml.`,
		Example: `  shopflow schedule --every 15m
  shopflow schedule --cron "0 6 * * *" --timezone Europe/Berlin
  shopflow schedule --every 1h --run-now -s layer:gold --skip-load`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			sc := cc.Cfg.Schedule
			if cmd.Flags().Changed("every") {
				sc.Every, sc.Cron = every, ""
			}
			if cmd.Flags().Changed("cron") {
				sc.Cron = cronExpr
				if !cmd.Flags().Changed("every") {
					sc.Every = 0
				}
			}
			if cmd.Flags().Changed("timezone") {
				sc.Timezone = timezone
			}

			loc := time.UTC
			if sc.Timezone != "" {
				loc, err = time.LoadLocation(sc.Timezone)
				if err != nil {
					return fmt.Errorf("invalid timezone %q: %w", sc.Timezone, err)
				}
			}

			opts := engine.BuildOptions{
				Select:   splitSelectors(selectors),
				SkipLoad: skipLoad,
			}
			job := func(ctx context.Context) error {
				if _, err := discover(cc); err != nil {
					return err
				}
				res, err := cc.Engine.Build(ctx, opts)
				if res != nil && res.Run != nil {
					cc.Logger.Info("build finished", "run_id", res.Run.ID, "status", res.Run.Status)
				}
				return err
			}

			s, err := scheduler.New(scheduler.Config{
				Every:          sc.Every,
				Cron:           sc.Cron,
				RunImmediately: runNow,
				Location:       loc,
				Logger:         cc.Logger,
			}, job)
			if errors.Is(err, scheduler.ErrNoSchedule) {
				return fmt.Errorf("%w (use --every or --cron, or set schedule in shopflow.yaml)", err)
			}
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := cc.Renderer
			if sc.Cron != "" {
				r.KeyValue("Schedule", fmt.Sprintf("cron %q (%s)", sc.Cron, loc))
			} else {
				r.KeyValue("Schedule", "every "+sc.Every.String())
			}
			if !runNow {
				r.KeyValue("Next run", s.NextRun().In(loc).Format(time.RFC3339))
			}
			r.Muted("Press Ctrl+C to stop")

			if err := s.Run(ctx); err != nil {
				return err
			}

			stats := s.Stats()
			r.Info(fmt.Sprintf("Stopped after %s (%d failed)", output.Plural(stats.Runs, "run"), stats.Failures))
			return nil
		},
	}

	cmd.Flags().DurationVar(&every, "every", 0, "Interval between builds (e.g. 15m, 1h)")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (5 fields)")
	cmd.Flags().StringVar(&timezone, "timezone", "", "Timezone for cron expressions (default: UTC)")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "Build once immediately, then follow the schedule")
	cmd.Flags().StringSliceVarP(&selectors, "select", "s", nil, "Models to build")
	cmd.Flags().BoolVar(&skipLoad, "skip-load", false, "Reuse the data already in the raw schema")

	_ = cmd.RegisterFlagCompletionFunc("select", completeModels)

	return cmd
}
