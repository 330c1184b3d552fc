package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// NotApplicable is the top code sentinel for forms without a code dimension.
const NotApplicable = "NA"

// Report templates offered by the portal's form type selector.
const (
	FormCollege  = "Form 1 Part E-C - College"
	FormDistrict = "Form 1 Part E-D - District"
	FormTopCode  = "Form 1 Part F by 6 Digit TOP Code - College"
)

// ReportKey identifies one report on the portal. It is the natural key of
// the scrape ledger.
type ReportKey struct {
	FormType        string `json:"form_type"`
	DistrictCollege string `json:"district_college"`
	FiscalYear      string `json:"fiscal_year"`
	TopCode         string `json:"top_code"`
}

// NewReportKey builds a normalised key.
func NewReportKey(formType, districtCollege, fiscalYear, topCode string) ReportKey {
	return ReportKey{
		FormType:        formType,
		DistrictCollege: districtCollege,
		FiscalYear:      fiscalYear,
		TopCode:         topCode,
	}.Normalize()
}

// Normalize trims the institution name and maps an empty top code to
// NotApplicable. Every other field is compared verbatim.
func (k ReportKey) Normalize() ReportKey {
	k.DistrictCollege = strings.TrimSpace(k.DistrictCollege)
	if k.TopCode == "" {
		k.TopCode = NotApplicable
	}
	return k
}

// HasTopCode reports whether the key carries a real program code.
func (k ReportKey) HasTopCode() bool {
	return k.TopCode != "" && k.TopCode != NotApplicable
}

// Slug is the file-name-safe stem used for the per-report output file:
// "<institution>_<fiscal year>_<top code>".
func (k ReportKey) Slug() string {
	k = k.Normalize()
	code := NotApplicable
	if k.HasTopCode() {
		code = SafeName(k.TopCode)
	}
	return fmt.Sprintf("%s_%s_%s", SafeName(k.DistrictCollege), SafeName(k.FiscalYear), code)
}

// SafeName replaces characters that are not allowed in file names.
func SafeName(s string) string {
	return slugReplacer.Replace(strings.TrimSpace(s))
}

func (k ReportKey) String() string {
	return fmt.Sprintf("%s, %s, %s, %s", k.FormType, strings.TrimSpace(k.DistrictCollege), k.FiscalYear, k.TopCode)
}

// "/" shows up in top codes such as "0701.00/0702.00"; the portal's own
// downloads use "&" in its place.
var slugReplacer = strings.NewReplacer(
	"/", "&",
	`\`, "&",
	":", "-",
	"*", "-",
	"?", "-",
	`"`, "-",
	"<", "-",
	">", "-",
	"|", "-",
)

// ScrapeRecord is one ledger row: a report that was fetched, parsed and saved.
type ScrapeRecord struct {
	ReportKey
	Headcount  decimal.Decimal `json:"headcount"`
	Enrollment decimal.Decimal `json:"enrollment"`
	FilePath   string          `json:"file_path"`
}
