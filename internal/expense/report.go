package expense

import (
	"slices"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Filter selects records for listing, exports and reports. Empty fields match everything.
type Filter struct {
	Month    string // YYYY-MM
	Vendor   string // case-insensitive substring
	Label    string
	Currency string
	Status   Status
}

// Match reports whether a record passes the filter
func (f Filter) Match(e *Expense) bool {
	if f.Month != "" && e.MonthKey() != f.Month {
		return false
	}
	if f.Vendor != "" && !strings.Contains(strings.ToLower(e.Vendor), strings.ToLower(f.Vendor)) {
		return false
	}
	if f.Label != "" && !slices.Contains(e.Labels, f.Label) {
		return false
	}
	if f.Currency != "" && !strings.EqualFold(e.Currency, f.Currency) {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	return true
}

// Apply returns the matching records
func (f Filter) Apply(records []*Expense) []*Expense {
	out := make([]*Expense, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Totals sums the amounts of a group of records
type Totals struct {
	Count int             `json:"count"`
	Gross decimal.Decimal `json:"gross"`
	Net   decimal.Decimal `json:"net"`
	VAT   decimal.Decimal `json:"vat"`
}

func (t *Totals) add(e *Expense) {
	t.Count++
	t.Gross = t.Gross.Add(e.AmountGross)
	t.Net = t.Net.Add(e.AmountNet)
	t.VAT = t.VAT.Add(e.VATAmount)
}

func (t *Totals) merge(o Totals) {
	t.Count += o.Count
	t.Gross = t.Gross.Add(o.Gross)
	t.Net = t.Net.Add(o.Net)
	t.VAT = t.VAT.Add(o.VAT)
}

// CategoryRow is one account line of the summary report
type CategoryRow struct {
	Account *int   `json:"account"`
	Name    string `json:"name"`
	Totals
}

// CategorySummary groups one currency's records by account
type CategorySummary struct {
	Currency string        `json:"currency"`
	Rows     []CategoryRow `json:"rows"`
	Total    Totals        `json:"total"`
}

// SummaryReport groups records by currency, then by bookkeeping account
func SummaryReport(records []*Expense) []CategorySummary {
	type key struct {
		currency string
		account  int
	}
	groups := make(map[key]*CategoryRow)
	for _, e := range records {
		k := key{currency: e.Currency}
		if e.CategoryAccount != nil {
			k.account = *e.CategoryAccount
		}
		row, ok := groups[k]
		if !ok {
			row = &CategoryRow{Name: "Uncategorized"}
			if e.CategoryAccount != nil {
				n := *e.CategoryAccount
				row.Account = &n
				if acct, ok := LookupAccount(n); ok {
					row.Name = acct.Name
				}
			}
			groups[k] = row
		}
		row.add(e)
	}

	byCurrency := make(map[string]*CategorySummary)
	for k, row := range groups {
		s, ok := byCurrency[k.currency]
		if !ok {
			s = &CategorySummary{Currency: k.currency}
			byCurrency[k.currency] = s
		}
		s.Rows = append(s.Rows, *row)
		s.Total.merge(row.Totals)
	}

	summaries := make([]CategorySummary, 0, len(byCurrency))
	for _, s := range byCurrency {
		sort.Slice(s.Rows, func(i, j int) bool {
			return accountNumber(s.Rows[i].Account) < accountNumber(s.Rows[j].Account)
		})
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Currency < summaries[j].Currency })
	return summaries
}

func accountNumber(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}

// RateRow is one VAT rate line of the VAT report
type RateRow struct {
	Rate  decimal.Decimal `json:"rate"`
	Label string          `json:"label"`
	Totals
}

// RateSummary groups one currency's records by VAT rate
type RateSummary struct {
	Currency string    `json:"currency"`
	Rows     []RateRow `json:"rows"`
	Total    Totals    `json:"total"`
}

// VATReport groups records by currency, then by VAT rate
func VATReport(records []*Expense) []RateSummary {
	byCurrency := make(map[string]map[string]*RateRow)
	for _, e := range records {
		rates, ok := byCurrency[e.Currency]
		if !ok {
			rates = make(map[string]*RateRow)
			byCurrency[e.Currency] = rates
		}
		// Normalized so 8.1 and 8.10 share a row
		k := e.VATRate.String()
		row, ok := rates[k]
		if !ok {
			row = &RateRow{Rate: e.VATRate, Label: RateLabel(e.VATRate)}
			rates[k] = row
		}
		row.add(e)
	}

	summaries := make([]RateSummary, 0, len(byCurrency))
	for currency, rates := range byCurrency {
		s := RateSummary{Currency: currency}
		for _, row := range rates {
			s.Rows = append(s.Rows, *row)
			s.Total.merge(row.Totals)
		}
		sort.Slice(s.Rows, func(i, j int) bool { return s.Rows[i].Rate.LessThan(s.Rows[j].Rate) })
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Currency < summaries[j].Currency })
	return summaries
}
