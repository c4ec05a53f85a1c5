package parsing

import (
	"regexp"
	"strings"
)

// Receipts rendered by Stripe share one layout across vendors.
var (
	reStripeInvoice  = regexp.MustCompile(`Invoice number\s+(\S+\s+\d+)`)
	reStripeReceipt  = regexp.MustCompile(`Receipt number\s+([\d\s]+)`)
	reStripeDatePaid = regexp.MustCompile(`Date paid\s+([A-Za-z]+ \d{1,2}, \d{4})`)
	reStripePaidOn   = regexp.MustCompile(`\$([0-9,]+\.\d{2})\s+paid on`)
	reStripePeriod   = regexp.MustCompile(`([A-Za-z]{3}\s+\d{1,2})\s+.?\s*([A-Za-z]{3}\s+\d{1,2},\s+\d{4})`)
)

func extractStripe(d *Draft, text string) {
	d.InvoiceNumber = strings.TrimSpace(find(reStripeInvoice, text))
	d.ReceiptNumber = collapseSpaces(find(reStripeReceipt, text))
	d.Date = normalizeDate(layoutLongUS, find(reStripeDatePaid, text))
	d.AmountGross = parseAmount(find(reStripePaidOn, text))
}

func stripePeriod(text string) string {
	m := reStripePeriod.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1] + " - " + m[2]
}

// Anomaly parses opencode credit receipts
type Anomaly struct{}

func (Anomaly) Name() string { return "Anomaly" }

func (Anomaly) Recognize(text string) bool {
	return strings.Contains(text, "Anomaly") && strings.Contains(text, "anoma.ly")
}

func (Anomaly) Extract(text string) *Draft {
	d := newDraft("Anomaly", "US", "USD", 6820, "Informatik-Dienstleistungen")
	d.Description = "opencode credits"
	extractStripe(d, text)
	// Foreign service, no Swiss VAT
	d.AmountNet = d.AmountGross
	return d
}

var (
	reAnthropicPlan = regexp.MustCompile(`(Max plan\s*-\s*\w+)`)
	reAnthropicTax  = regexp.MustCompile(`Tax\s+(\d+\.?\d*)%\s+on\s+\$([0-9,]+\.\d{2})\s+\$([0-9,]+\.\d{2})`)
	reSubtotal      = regexp.MustCompile(`Subtotal\s+\$([0-9,]+\.\d{2})`)
)

// Anthropic parses Claude plan receipts
type Anthropic struct{}

func (Anthropic) Name() string { return "Anthropic" }

func (Anthropic) Recognize(text string) bool {
	return strings.Contains(text, "Anthropic") && strings.Contains(text, "anthropic.com")
}

func (Anthropic) Extract(text string) *Draft {
	d := newDraft("Anthropic", "US", "USD", 6820, "Informatik-Dienstleistungen")
	extractStripe(d, text)
	d.Period = stripePeriod(text)

	if plan := find(reAnthropicPlan, text); plan != "" {
		d.Description = "Claude " + strings.TrimSpace(plan)
	} else {
		d.Description = "Anthropic API / Claude"
	}

	// Swiss customers are charged MWST
	if m := reAnthropicTax.FindStringSubmatch(text); m != nil {
		d.VATRate = parseRate(m[1])
		d.VATAmount = parseAmount(m[3])
	}

	if net := find(reSubtotal, text); net != "" {
		d.AmountNet = parseAmount(net)
	}
	return d
}

var (
	reElevenVATNumber = regexp.MustCompile(`CH VAT\s+(CHE[\s\d.]+\w+)`)
	reElevenPlan      = regexp.MustCompile(`(Creator|Starter|Scale|Enterprise)[^\n]*\(per subscription\)`)
	reElevenTax       = regexp.MustCompile(`VAT\s*-\s*Switzerland\s+(\d+\.?\d*)%\s+on\s+\$([0-9,]+\.\d{2})\s+\$([0-9,]+\.\d{2})`)
	reElevenNet       = regexp.MustCompile(`Total excluding tax\s+\$([0-9,]+\.\d{2})`)
)

// ElevenLabs parses voice subscription receipts
type ElevenLabs struct{}

func (ElevenLabs) Name() string { return "ElevenLabs" }

func (ElevenLabs) Recognize(text string) bool {
	return strings.Contains(text, "Eleven Labs") || strings.Contains(text, "elevenlabs.io")
}

func (ElevenLabs) Extract(text string) *Draft {
	d := newDraft("ElevenLabs", "US", "USD", 6820, "Informatik-Dienstleistungen")
	extractStripe(d, text)
	d.Period = stripePeriod(text)
	d.VATNumber = strings.TrimSpace(find(reElevenVATNumber, text))

	if plan := find(reElevenPlan, text); plan != "" {
		d.Description = "ElevenLabs " + plan + " plan"
	} else {
		d.Description = "ElevenLabs subscription"
	}

	if m := reElevenTax.FindStringSubmatch(text); m != nil {
		d.VATRate = parseRate(m[1])
		d.VATAmount = parseAmount(m[3])
	}

	if net := find(reElevenNet, text); net != "" {
		d.AmountNet = parseAmount(net)
	}
	return d
}
