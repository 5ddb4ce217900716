package commands

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/shopflow/internal/dashboard"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var (
		host    string
		port    int
		refresh int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reports as an HTML dashboard",
		Long: `Start an HTTP server that runs each report on request and renders it as an
HTML table, with bars for chart: bar reports. JSON is available under
/api/reports, the run history under /runs.`,
		Example: `  shopflow serve
  shopflow serve --port 9000 --refresh 60`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if _, err := discover(cc); err != nil {
				return err
			}

			sc := cc.Cfg.Serve
			if cmd.Flags().Changed("host") {
				sc.Host = host
			}
			if cmd.Flags().Changed("port") {
				sc.Port = port
			}
			if cmd.Flags().Changed("refresh") {
				sc.RefreshSeconds = refresh
			}

			srv := dashboard.New(cc.Engine, dashboard.Config{
				Host:    sc.Host,
				Port:    sc.Port,
				Refresh: time.Duration(sc.RefreshSeconds) * time.Second,
				Runs:    cc.Engine.Store(),
				Logger:  cc.Logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cc.Renderer.Success(fmt.Sprintf("Dashboard on http://%s (Ctrl+C to stop)", srv.Addr()))
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Interface to listen on (default: serve.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default: serve.port)")
	cmd.Flags().IntVar(&refresh, "refresh", 0, "Auto-refresh report pages every N seconds (0 disables)")

	return cmd
}
