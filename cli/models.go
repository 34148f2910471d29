package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"auditz/domain/audited"
)

func newModelsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Show the effective audit configuration of every configured model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tFIELDS\tSOFT DELETE\tSCRUB\tREVISIONS")
			for _, key := range e.cfg.ModelNames() {
				name, cfg, err := e.cfg.Model(key)
				if err != nil {
					return err
				}

				names := []audited.FieldName{cfg.CreatedAt, cfg.UpdatedAt, cfg.CreatedBy, cfg.UpdatedBy}
				if cfg.SoftDelete {
					names = append(names, cfg.DeletedAt, cfg.DeletedBy)
				}
				var fields []string
				for _, f := range names {
					if f.Enabled() {
						fields = append(fields, f.String())
					}
				}

				scrub := "-"
				switch {
				case cfg.Scrub.All:
					scrub = "all"
				case len(cfg.Scrub.Fields) > 0:
					scrub = strings.Join(cfg.Scrub.Fields, ",")
				}

				revisions := "off"
				if p, ok := cfg.RevisionPolicy(); ok {
					revisions = fmt.Sprintf("%s@%s id=%s auto=%t", p.Name, p.DataSource, p.IDType, p.AutoUpdate)
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", name, strings.Join(fields, ","), cfg.SoftDelete, scrub, revisions)
			}
			return w.Flush()
		},
	}
}
