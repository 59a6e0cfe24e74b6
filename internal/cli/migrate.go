package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apien/apien/internal/app"
	"github.com/apien/apien/internal/migrate"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending install and update scripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			a, err := app.New(cfg, app.WithLogOutput(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Migrate(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range result.Applied {
				fmt.Fprintf(out, "applied %s\n", s.Name)
			}
			fmt.Fprintf(out, "schema version %s\n", migrate.FormatVersion(result.Version))
			return nil
		},
	}
}
