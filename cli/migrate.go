package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"auditz/domain/audited"
	"auditz/logging"
)

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [model...]",
		Short: "Create revision tables and streams",
		Long:  "Create the revision table (or stream) of every configured model, or only of the models named.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			models := args
			if len(models) == 0 {
				models = e.cfg.ModelNames()
			}
			out := cmd.OutOrStdout()

			for _, arg := range models {
				model, sink, policy, ok, err := e.sinkFor(ctx, arg)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(out, "%s\trevisions disabled\n", model)
					continue
				}
				m, canMigrate := sink.(audited.IMigrator)
				if !canMigrate {
					fmt.Fprintf(out, "%s\t%s (%s) needs no migration\n", model, policy.Name, policy.DataSource)
					continue
				}
				if err := m.Migrate(ctx); err != nil {
					return err
				}
				e.logger.Info(ctx, "revision storage migrated",
					logging.String("model", model), logging.String("revisions", policy.Name))
				fmt.Fprintf(out, "%s\t%s (%s) migrated\n", model, policy.Name, policy.DataSource)
			}
			return nil
		},
	}
}
