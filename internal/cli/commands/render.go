package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/shopflow/internal/cli/output"
)

// NewRenderCommand creates the render command.
func NewRenderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "render <model>",
		Short: "Print a model's compiled SQL",
		Long: `Render a model's template with the active target and vars and print the SQL
a full run would execute. The model may be given by name or path.`,
		Example: `  shopflow render slv_orders
  shopflow render gold.fct_orders -t prod`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeModels,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if _, err := discover(cc); err != nil {
				return err
			}
			sql, err := cc.Engine.RenderModel(args[0])
			if err != nil {
				return err
			}

			r := cc.Renderer
			switch r.EffectiveMode() {
			case output.ModeJSON:
				return r.JSON(map[string]string{"model": args[0], "sql": sql})
			case output.ModeMarkdown:
				r.Println("```sql")
				r.Println(sql)
				r.Println("```")
			default:
				r.Println(sql)
			}
			return nil
		},
	}
}
