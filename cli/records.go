package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/use-agent/perkins/ledger"
	"github.com/use-agent/perkins/models"
)

func newRecordsCmd(a *app) *cobra.Command {
	var form, college, year, code, format string

	cmd := &cobra.Command{
		Use:   "records",
		Short: "Print the scrape ledger.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := ledger.Load(a.cfg.Paths.LedgerPath())
			if err != nil {
				return err
			}

			college := strings.TrimSpace(college)
			recs := slices.DeleteFunc(l.Records(), func(r models.ScrapeRecord) bool {
				return (form != "" && r.FormType != form) ||
					(college != "" && r.DistrictCollege != college) ||
					(year != "" && r.FiscalYear != year) ||
					(code != "" && r.TopCode != code)
			})
			return renderRecords(cmd.OutOrStdout(), recs, format)
		},
	}

	cmd.Flags().StringVar(&form, "form", "", "only this form type")
	cmd.Flags().StringVar(&college, "college", "", "only this college")
	cmd.Flags().StringVar(&year, "year", "", "only this fiscal year")
	cmd.Flags().StringVar(&code, "code", "", "only this top code")
	cmd.Flags().StringVarP(&format, "output", "o", "table", "table, csv or markdown")
	return cmd
}

func renderRecords(w io.Writer, recs []models.ScrapeRecord, format string) error {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Form", "College", "Year", "Code", "Headcount", "Enrollment", "File"})
	for _, r := range recs {
		t.AppendRow(table.Row{r.FormType, r.DistrictCollege, r.FiscalYear, r.TopCode, r.Headcount.String(), r.Enrollment.String(), r.FilePath})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "Records", len(recs)})

	switch format {
	case "table", "":
		t.Render()
	case "csv":
		t.RenderCSV()
	case "markdown", "md":
		t.RenderMarkdown()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	return nil
}
