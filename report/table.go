// Package report turns the rendered report markup into a structured table
// and derives the headcount and enrollment summary figures.
package report

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"github.com/use-agent/perkins/models"
)

// Table is a parsed report: one header row, the data rows beneath it, and
// the two summary figures derived from them.
type Table struct {
	Header     []string
	Rows       [][]string
	Headcount  decimal.Decimal
	Enrollment decimal.Decimal

	// sourceHTML is the outer HTML of the table the rows came from.
	sourceHTML string

	// rawHTML and containerID locate the rendered report in the page.
	rawHTML     string
	containerID string
}

// SourceHTML returns the markup of the table element that was parsed.
func (t *Table) SourceHTML() string { return t.sourceHTML }

// headerScan is how many leading rows may hold column titles. Portal reports
// use up to two stacked header rows above the data.
const headerScan = 3

// extractTable finds the report table inside the element with containerID
// (or anywhere in the document when containerID is empty) and reads its
// rows. When several tables are present the largest one without nested
// tables wins; layout wrappers always contain other tables.
func extractTable(rawHTML, containerID string) (*Table, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeParseFailed, "failed to parse report markup", err)
	}

	scope := doc.Selection
	if containerID != "" {
		m, err := idMatcher(containerID)
		if err != nil {
			return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "bad table container id", err)
		}
		scope = doc.FindMatcher(m)
		if scope.Length() == 0 {
			return nil, models.NewScrapeError(models.ErrCodeParseFailed, "report container "+containerID+" not found", nil)
		}
	}

	var best *goquery.Selection
	bestRows := 0
	scope.Find("table").AddSelection(scope.Filter("table")).Each(func(_ int, s *goquery.Selection) {
		if s.Find("table").Length() > 0 {
			return
		}
		if n := s.Find("tr").Length(); n > bestRows {
			best, bestRows = s, n
		}
	})
	if best == nil {
		return nil, models.NewScrapeError(models.ErrCodeParseFailed, "no table rows in report", nil)
	}

	rows := readRows(best)
	if len(rows) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeParseFailed, "report table is empty", nil)
	}

	outer, _ := goquery.OuterHtml(best)
	t := &Table{
		Header:      rows[0],
		Rows:        rows[1:],
		sourceHTML:  outer,
		rawHTML:     rawHTML,
		containerID: containerID,
	}
	t.pad()
	return t, nil
}

// readRows returns the non-blank rows of table with colspans expanded.
func readRows(table *goquery.Selection) [][]string {
	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var row []string
		blank := true
		tr.ChildrenFiltered("th,td").Each(func(_ int, cell *goquery.Selection) {
			text := strings.Join(strings.Fields(cell.Text()), " ")
			if text != "" {
				blank = false
			}
			row = append(row, text)
			for i := 1; i < colspan(cell); i++ {
				row = append(row, "")
			}
		})
		if !blank {
			rows = append(rows, row)
		}
	})
	return rows
}

func colspan(cell *goquery.Selection) int {
	v, ok := cell.Attr("colspan")
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// pad makes every row, header included, as wide as the widest row.
func (t *Table) pad() {
	width := len(t.Header)
	for _, r := range t.Rows {
		width = max(width, len(r))
	}
	t.Header = padRow(t.Header, width)
	for i := range t.Rows {
		t.Rows[i] = padRow(t.Rows[i], width)
	}
}

func padRow(r []string, width int) []string {
	for len(r) < width {
		r = append(r, "")
	}
	return r
}

// column returns the index of the first column whose title contains name,
// looking at the header and the first stacked header rows.
func (t *Table) column(name string) (int, bool) {
	name = strings.ToLower(name)
	rows := append([][]string{t.Header}, t.Rows[:min(headerScan-1, len(t.Rows))]...)
	for _, r := range rows {
		for i, cell := range r {
			if strings.Contains(strings.ToLower(cell), name) {
				return i, true
			}
		}
	}
	return 0, false
}

// totalRow returns the last row labelled as a total.
func (t *Table) totalRow() ([]string, bool) {
	for i := len(t.Rows) - 1; i >= 0; i-- {
		if isTotalLabel(firstNonEmpty(t.Rows[i])) {
			return t.Rows[i], true
		}
	}
	return nil, false
}

func isTotalLabel(s string) bool {
	s = strings.ToLower(s)
	return strings.HasPrefix(s, "total") || strings.HasPrefix(s, "grand total")
}

func firstNonEmpty(r []string) string {
	for _, c := range r {
		if c != "" {
			return c
		}
	}
	return ""
}

// parseNumber reads a report cell. Blank and dash cells are reported as not
// numeric.
func parseNumber(s string) (decimal.Decimal, bool) {
	return models.ParseCount(s)
}
