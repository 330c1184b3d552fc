package report

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/use-agent/perkins/models"
)

// Column titles the summary figures are read from.
const (
	HeadcountColumn  = "headcount"
	EnrollmentColumn = "enrollment"
)

// Parser converts the rendered report page into a Table.
type Parser interface {
	Parse(rawHTML string) (*Table, error)
}

// ForForm returns the parser for a report template. The college form has its
// own layout; every other form uses the top code layout.
func ForForm(formType, containerID string) Parser {
	if formType == models.FormCollege {
		return &CollegeParser{ContainerID: containerID}
	}
	return &TopCodeParser{ContainerID: containerID}
}

// CollegeParser reads the college report. Its summary figures come from the
// table's Total row, which the college report always prints.
type CollegeParser struct {
	ContainerID string
}

func (p *CollegeParser) Parse(rawHTML string) (*Table, error) {
	t, err := extractTable(rawHTML, p.ContainerID)
	if err != nil {
		return nil, err
	}

	hc, en, err := t.summaryColumns()
	if err != nil {
		return nil, err
	}
	total, ok := t.totalRow()
	if !ok {
		return nil, models.NewScrapeError(models.ErrCodeParseFailed, "college report has no total row", nil)
	}

	if t.Headcount, err = cellNumber(total, hc, HeadcountColumn); err != nil {
		return nil, err
	}
	if t.Enrollment, err = cellNumber(total, en, EnrollmentColumn); err != nil {
		return nil, err
	}
	return t, nil
}

// TopCodeParser reads the per-program report. Small programs are printed
// without a Total row, in which case the figures are summed over the rows.
type TopCodeParser struct {
	ContainerID string
}

func (p *TopCodeParser) Parse(rawHTML string) (*Table, error) {
	t, err := extractTable(rawHTML, p.ContainerID)
	if err != nil {
		return nil, err
	}

	hc, en, err := t.summaryColumns()
	if err != nil {
		return nil, err
	}

	if total, ok := t.totalRow(); ok {
		if t.Headcount, err = cellNumber(total, hc, HeadcountColumn); err != nil {
			return nil, err
		}
		if t.Enrollment, err = cellNumber(total, en, EnrollmentColumn); err != nil {
			return nil, err
		}
		return t, nil
	}

	t.Headcount = t.columnSum(hc)
	t.Enrollment = t.columnSum(en)
	return t, nil
}

func (t *Table) summaryColumns() (hc, en int, err error) {
	hc, ok := t.column(HeadcountColumn)
	if !ok {
		return 0, 0, models.NewScrapeError(models.ErrCodeParseFailed, "no headcount column in report", nil)
	}
	en, ok = t.column(EnrollmentColumn)
	if !ok {
		return 0, 0, models.NewScrapeError(models.ErrCodeParseFailed, "no enrollment column in report", nil)
	}
	return hc, en, nil
}

func cellNumber(row []string, col int, name string) (decimal.Decimal, error) {
	if col >= len(row) {
		return decimal.Zero, models.NewScrapeError(models.ErrCodeParseFailed, name+" cell missing in total row", nil)
	}
	d, ok := parseNumber(row[col])
	if !ok {
		return decimal.Zero, models.NewScrapeError(
			models.ErrCodeParseFailed,
			fmt.Sprintf("%s total %q is not a number", name, row[col]),
			nil,
		)
	}
	return d, nil
}

// columnSum adds up the numeric cells of column col, skipping anything that
// does not parse (stacked titles, blanks, dashes).
func (t *Table) columnSum(col int) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range t.Rows {
		if col >= len(r) {
			continue
		}
		if d, ok := parseNumber(r[col]); ok {
			sum = sum.Add(d)
		}
	}
	return sum
}
