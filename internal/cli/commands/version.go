package commands

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/shopflow/internal/cli/output"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, _ := cmd.Flags().GetString("output")
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(mode))

			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(map[string]string{
					"version":    version,
					"commit":     commit,
					"build_date": date,
					"go":         runtime.Version(),
				})
			}
			r.Printf("shopflow %s\n", version)
			r.Printf("  commit: %s\n", commit)
			r.Printf("  built:  %s\n", date)
			r.Printf("  go:     %s\n", runtime.Version())
			return nil
		},
	}
}
