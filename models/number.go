package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

var countCleaner = strings.NewReplacer(",", "", "$", "", "%", "", " ", "")

// ParseCount reads a summary figure as the portal prints it: thousands
// separators, currency and percent signs are ignored. Blank and dash-only
// values are reported as not numeric.
func ParseCount(s string) (decimal.Decimal, bool) {
	s = countCleaner.Replace(s)
	if s == "" || strings.Trim(s, "-") == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
