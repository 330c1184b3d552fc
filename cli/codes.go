package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/use-agent/perkins/models"
	"github.com/use-agent/perkins/scraper"
)

func newCodesCmd(a *app) *cobra.Command {
	var form, college, year string

	cmd := &cobra.Command{
		Use:   "codes --college <name> --year <year>",
		Short: "List the top codes the portal offers for a college and year.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			sess, err := scraper.NewLauncher(a.cfg).Open(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			codes, err := sess.TopCodes(cmd.Context(), form, college, year)
			if err != nil {
				return err
			}
			for _, code := range codes {
				fmt.Fprintln(cmd.OutOrStdout(), code)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&form, "form", models.FormTopCode, "form type")
	cmd.Flags().StringVar(&college, "college", "", "college name")
	cmd.Flags().StringVar(&year, "year", "", "fiscal year")
	_ = cmd.MarkFlagRequired("college")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}
