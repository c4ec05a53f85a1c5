package parsing

import "regexp"

type amountPattern struct {
	re       *regexp.Regexp
	currency string
}

// Tried in order, labelled totals before bare amounts
var genericAmounts = []amountPattern{
	{regexp.MustCompile(`(?:Total|Amount|TOTAL)\s*[:.]?\s*(?:CHF|Fr\.?)\s*([0-9,]+\.\d{2})`), "CHF"},
	{regexp.MustCompile(`(?:Total|Amount|TOTAL)\s*[:.]?\s*€\s*([0-9,]+\.\d{2})`), "EUR"},
	{regexp.MustCompile(`(?:Total|Amount|TOTAL)\s*[:.]?\s*\$([0-9,]+\.\d{2})`), "USD"},
	{regexp.MustCompile(`\$([0-9,]+\.\d{2})\s+paid`), "USD"},
	{regexp.MustCompile(`€\s*([0-9,]+\.\d{2})`), "EUR"},
	{regexp.MustCompile(`CHF\s*([0-9,]+\.\d{2})`), "CHF"},
	{regexp.MustCompile(`\$([0-9,]+\.\d{2})`), "USD"},
}

var (
	reGenericDMY    = regexp.MustCompile(`(\d{2}/\d{2}/\d{4})`)
	reGenericLong   = regexp.MustCompile(`([A-Za-z]+ \d{1,2}, \d{4})`)
	reGenericNumber = regexp.MustCompile(`(?i)(?:Invoice|Receipt)\s*(?:number|no\.?|#)\s*[:.]?\s*(\S+)`)
)

// Generic is the catch-all parser for documents no vendor parser claims.
// Its drafts always carry GenericConfidence so they land in review.
type Generic struct{}

func (Generic) Name() string { return "Unknown" }

func (Generic) Recognize(string) bool { return true }

func (Generic) Extract(text string) *Draft {
	d := &Draft{Confidence: GenericConfidence}

	for _, p := range genericAmounts {
		if amount := find(p.re, text); amount != "" {
			d.AmountGross = parseAmount(amount)
			d.AmountNet = d.AmountGross
			d.Currency = p.currency
			break
		}
	}
	if !d.AmountGross.IsPositive() {
		return nil
	}

	if dmy := find(reGenericDMY, text); dmy != "" {
		d.Date = normalizeDate(layoutDMY, dmy)
	} else {
		d.Date = normalizeDate(layoutLongUS, find(reGenericLong, text))
	}

	d.InvoiceNumber = find(reGenericNumber, text)
	d.Vendor = "Unknown"
	d.Description = "Unknown document — needs manual review"
	return d
}
