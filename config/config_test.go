package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const sampleYAML = `
url: https://example.org/Reports/Perkins.aspx
table_div_id: ReportDiv
view_report: ASPxRoundPanel1_ASPxButtonView
element_info:
  form_type: ASPxRoundPanel1_ASPxComboBoxRpt_I
  district_college: ASPxRoundPanel1_ASPxComboBoxDC_I
  fiscal_year: ASPxRoundPanel1_ASPxComboBoxFY_I
  top_code: ASPxRoundPanel1_ASPxComboBoxTCode_I
forms:
  - Form 1 Part E-C - College
colleges:
  - " Foo College "
  - Bar College
years: ["2021-2022", "2022-2023"]
paths:
  data_folder: out
  record_csv: ledger.csv
scraping_params:
  implicit_wait: 5
  explicit_wait: 12.5
  headless: false
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.URL != "https://example.org/Reports/Perkins.aspx" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if diff := cmp.Diff([]string{" Foo College ", "Bar College"}, cfg.Colleges); diff != "" {
		t.Errorf("colleges mismatch (-want +got):\n%s", diff)
	}
	if cfg.Scraping.Headless {
		t.Error("headless should be overridden to false")
	}
	if got := cfg.Scraping.ExplicitWait.Duration(); got != 12500*time.Millisecond {
		t.Errorf("explicit wait = %v", got)
	}
	// Untouched defaults survive.
	if cfg.Scraping.InputAttempts != 3 {
		t.Errorf("input attempts = %d, want default 3", cfg.Scraping.InputAttempts)
	}
	if got, want := cfg.Paths.LedgerPath(), filepath.Join("out", "ledger.csv"); got != want {
		t.Errorf("LedgerPath() = %q, want %q", got, want)
	}
	if got, want := cfg.Paths.TopCodeDir(), filepath.Join("out", "top_code"); got != want {
		t.Errorf("TopCodeDir() = %q, want %q", got, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PERKINS_HEADLESS", "true")
	t.Setenv("PERKINS_YEARS", "2019-2020, 2020-2021")
	t.Setenv("PERKINS_LOG_LEVEL", "debug")
	t.Setenv("PERKINS_PORT", "not-a-number")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Scraping.Headless {
		t.Error("PERKINS_HEADLESS should win over the file")
	}
	if diff := cmp.Diff([]string{"2019-2020", "2020-2021"}, cfg.Years); diff != "" {
		t.Errorf("years mismatch (-want +got):\n%s", diff)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("bad PERKINS_PORT should fall back, got %d", cfg.Server.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Error("explicit missing path should fail")
	}

	t.Setenv("PERKINS_CONFIG", filepath.Join(t.TempDir(), "absent.yml"))
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("implicit missing config should fall back to defaults: %v", err)
	}
	if cfg.Paths.DataFolder != "data" {
		t.Errorf("DataFolder = %q, want default", cfg.Paths.DataFolder)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "forms: [unterminated")); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate_Missing(t *testing.T) {
	cfg := Default()
	cfg.URL = "https://example.org"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing element ids")
	}
	want := "config: missing table_div_id, view_report, element_info.form_type, element_info.fiscal_year, element_info.district_college, element_info.top_code"
	if err.Error() != want {
		t.Errorf("Validate() = %q\nwant %q", err.Error(), want)
	}
}

func TestElementInfo_ID(t *testing.T) {
	e := ElementInfo{FormType: "f", FiscalYear: "y"}
	if id, ok := e.ID(BoxFormType); !ok || id != "f" {
		t.Errorf("ID(form_type) = %q, %v", id, ok)
	}
	if _, ok := e.ID(BoxTopCode); ok {
		t.Error("unset box should report false")
	}
	if _, ok := e.ID("nonsense"); ok {
		t.Error("unknown box should report false")
	}
}
