package parsing

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// parseAmount reads a locale formatted amount such as "1,234.50"
func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if err != nil {
		return decimal.Zero
	}
	return d.Round(2)
}

// parseRate reads a percentage such as "8.1"
func parseRate(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// normalizeDate converts a date in the given layout to YYYY-MM-DD, or "" when it does not parse
func normalizeDate(layout, s string) string {
	t, err := time.Parse(layout, strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return t.Format(isoDate)
}

// Layouts vendors print dates in
const (
	layoutDMY    = "02/01/2006"      // 31/01/2026
	layoutMDY    = "1/2/2006"        // 2/1/2026
	layoutLongUS = "January 2, 2006" // February 8, 2026
	layoutLongEU = "2 January, 2006" // 31 January, 2026

	isoDate = "2006-01-02"
)

// find returns the first submatch of re in text, or ""
func find(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// collapseSpaces joins whitespace separated fields with single spaces
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
