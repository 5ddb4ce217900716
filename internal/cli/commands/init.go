package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/shopflow/internal/cli/output"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Scaffold the reference e-commerce project",
		Long: `Scaffold a shopflow project with the reference Bronze/Silver/Gold models.

This creates:
  - shopflow.yaml with a local DuckDB target and example environments
  - models/sources.yml declaring the seven generated tables
  - models/bronze, models/silver and models/gold SQL models
    (SCD2 customers, session stitching, order attribution)
  - reports/ with the dashboard queries

The directory must be empty unless --force is given.`,
		Example: `  # Scaffold in the current directory
  shopflow init

  # Scaffold into a new directory, then run the whole pipeline
  shopflow init shop && cd shop
  shopflow generate && shopflow build`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			mode, _ := cmd.Flags().GetString("output")
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(mode))
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Scaffold into a non-empty directory, overwriting template files")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if !force {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to read directory %s: %w", dir, err)
		}
		if len(entries) > 0 {
			return fmt.Errorf("directory %s is not empty. Use --force to scaffold anyway", dir)
		}
	}

	written, err := copyTemplate(dir, force)
	if err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		abs, _ := filepath.Abs(dir)
		return r.JSON(map[string]any{"directory": abs, "files": written})
	}

	groups := groupTemplateFiles(written)
	for _, section := range []struct{ key, title string }{
		{"config", "Configuration"},
		{"models", "Models"},
		{"reports", "Reports"},
		{"data", "Data"},
	} {
		if len(groups[section.key]) == 0 {
			continue
		}
		r.Header(2, section.title)
		for _, f := range groups[section.key] {
			r.StatusLine(f, "success", "")
		}
		r.Println("")
	}

	r.Success("shopflow project initialized")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  shopflow generate   Write synthetic CSVs to data/")
	r.Println("  shopflow build      Load, transform and test")
	r.Println("  shopflow report     Print the dashboard reports")
	r.Println("  shopflow serve      Browse the reports over HTTP")
	return nil
}
