package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/use-agent/perkins/models"
)

const collegePage = `<html><body>
<table id="layout"><tr><td>
  <div id="ReportDiv">
    <table class="rpt">
      <tr><th>Category</th><th>Headcount</th><th>Enrollment</th></tr>
      <tr><td>Female</td><td>1,200</td><td>3,410</td></tr>
      <tr><td>Male</td><td> 950 </td><td>2,005</td></tr>
      <tr><td>&nbsp;</td><td></td><td></td></tr>
      <tr><td>Total</td><td>2,150</td><td>5,415</td></tr>
    </table>
  </div>
</td></tr></table>
<table id="other"><tr><td>decoy</td><td>1</td></tr></table>
</body></html>`

const topCodePageNoTotal = `<div id="ReportDiv">
  <table>
    <tr><th colspan="2">Program</th><th>Special Pop.</th></tr>
    <tr><th>Code</th><th>Title</th><th>Headcount</th><th>Enrollment</th></tr>
    <tr><td>0701.00</td><td>Info Tech</td><td>12</td><td>30</td></tr>
    <tr><td>0701.00</td><td>Info Tech</td><td>-</td><td>4.5</td></tr>
    <tr><td>0701.00</td><td>Info Tech</td><td>3</td><td>$1,000</td></tr>
  </table>
</div>`

func TestCollegeParser_TotalRow(t *testing.T) {
	p := &CollegeParser{ContainerID: "ReportDiv"}
	tbl, err := p.Parse(collegePage)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if diff := cmp.Diff([]string{"Category", "Headcount", "Enrollment"}, tbl.Header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if len(tbl.Rows) != 3 {
		t.Errorf("expected blank row dropped, got %d rows: %v", len(tbl.Rows), tbl.Rows)
	}
	if got := tbl.Rows[1][1]; got != "950" {
		t.Errorf("cell whitespace not normalised: %q", got)
	}
	if tbl.Headcount.String() != "2150" {
		t.Errorf("headcount = %s, want 2150", tbl.Headcount)
	}
	if tbl.Enrollment.String() != "5415" {
		t.Errorf("enrollment = %s, want 5415", tbl.Enrollment)
	}
	if !strings.HasPrefix(tbl.SourceHTML(), `<table class="rpt">`) {
		t.Errorf("unexpected source html: %.40s", tbl.SourceHTML())
	}
}

func TestCollegeParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{"no container", `<div id="x"><table><tr><td>a</td></tr></table></div>`},
		{"no table", `<div id="ReportDiv">Report is being generated</div>`},
		{"no total row", `<div id="ReportDiv"><table><tr><th>Headcount</th><th>Enrollment</th></tr><tr><td>1</td><td>2</td></tr></table></div>`},
		{"no enrollment column", `<div id="ReportDiv"><table><tr><th>Headcount</th></tr><tr><td>Total</td></tr></table></div>`},
		{"non numeric total", `<div id="ReportDiv"><table><tr><th></th><th>Headcount</th><th>Enrollment</th></tr><tr><td>Total</td><td>n/a</td><td>2</td></tr></table></div>`},
	}

	p := &CollegeParser{ContainerID: "ReportDiv"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.html)
			if !models.HasCode(err, models.ErrCodeParseFailed) {
				t.Errorf("expected parse failure, got %v", err)
			}
		})
	}
}

func TestTopCodeParser_SumsWithoutTotal(t *testing.T) {
	p := &TopCodeParser{ContainerID: "ReportDiv"}
	tbl, err := p.Parse(topCodePageNoTotal)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// colspan="2" expands so every row is four cells wide.
	if diff := cmp.Diff([]string{"Program", "", "Special Pop.", ""}, tbl.Header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if len(tbl.Header) != 4 {
		t.Errorf("header width = %d, want 4", len(tbl.Header))
	}
	if tbl.Headcount.String() != "15" {
		t.Errorf("headcount = %s, want 15", tbl.Headcount)
	}
	if tbl.Enrollment.String() != "1034.5" {
		t.Errorf("enrollment = %s, want 1034.5", tbl.Enrollment)
	}
}

func TestTopCodeParser_PrefersTotalRow(t *testing.T) {
	page := `<div id="ReportDiv"><table>
		<tr><th>Code</th><th>Headcount</th><th>Enrollment</th></tr>
		<tr><td>0701.00</td><td>10</td><td>20</td></tr>
		<tr><td>Grand Total</td><td>99</td><td>199</td></tr>
	</table></div>`

	tbl, err := (&TopCodeParser{ContainerID: "ReportDiv"}).Parse(page)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tbl.Headcount.String() != "99" || tbl.Enrollment.String() != "199" {
		t.Errorf("got %s/%s, want 99/199", tbl.Headcount, tbl.Enrollment)
	}
}

func TestForForm(t *testing.T) {
	if _, ok := ForForm(models.FormCollege, "d").(*CollegeParser); !ok {
		t.Error("college form should use CollegeParser")
	}
	if _, ok := ForForm(models.FormTopCode, "d").(*TopCodeParser); !ok {
		t.Error("top code form should use TopCodeParser")
	}
	if _, ok := ForForm("Some Other Form", "d").(*TopCodeParser); !ok {
		t.Error("unknown forms should fall back to TopCodeParser")
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"1,234", "1234", true},
		{"$12.50", "12.5", true},
		{"45%", "45", true},
		{"", "0", false},
		{"-", "0", false},
		{"--", "0", false},
		{"-3", "-3", true},
		{"n/a", "0", false},
	}
	for _, tt := range tests {
		got, ok := parseNumber(tt.in)
		if ok != tt.wantOK || got.String() != tt.want {
			t.Errorf("parseNumber(%q) = %s, %v; want %s, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestSave(t *testing.T) {
	tbl, err := (&CollegeParser{ContainerID: "ReportDiv"}).Parse(collegePage)
	if err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(t.TempDir(), "college")
	path, err := Save(tbl, dir, "Foo College_2022-2023_NA", SaveOptions{Markdown: true, HTML: true})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if want := filepath.Join(dir, "Foo College_2022-2023_NA.csv"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"Category", "Headcount", "Enrollment"},
		{"Female", "1,200", "3,410"},
		{"Male", "950", "2,005"},
		{"Total", "2,150", "5,415"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}

	md, err := os.ReadFile(filepath.Join(dir, "Foo College_2022-2023_NA.md"))
	if err != nil {
		t.Fatalf("markdown copy missing: %v", err)
	}
	if !strings.Contains(string(md), "Headcount") || !strings.Contains(string(md), "|") {
		t.Errorf("markdown copy does not look like a table:\n%s", md)
	}
}

func TestSave_HTMLCopy(t *testing.T) {
	tbl, err := (&CollegeParser{ContainerID: "ReportDiv"}).Parse(collegePage)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	if _, err := Save(tbl, dir, "Foo College_2022-2023_NA", SaveOptions{HTML: true}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := os.ReadFile(filepath.Join(dir, "Foo College_2022-2023_NA.html"))
	if err != nil {
		t.Fatalf("html copy missing: %v", err)
	}
	if !strings.HasPrefix(string(out), `<div id="ReportDiv">`) || strings.Contains(string(out), "decoy") {
		t.Errorf("html copy is not the report container: %.60s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "Foo College_2022-2023_NA.md")); !os.IsNotExist(err) {
		t.Error("markdown copy written although not selected")
	}
}

func TestContainerHTML(t *testing.T) {
	out, err := ContainerHTML(collegePage, "ReportDiv")
	if err != nil {
		t.Fatalf("ContainerHTML: %v", err)
	}
	if !strings.HasPrefix(out, `<div id="ReportDiv">`) || strings.Contains(out, "decoy") {
		t.Errorf("unexpected container html: %.60s", out)
	}

	if _, err := ContainerHTML(collegePage, "missing"); err == nil {
		t.Error("expected error for missing element")
	}
}
