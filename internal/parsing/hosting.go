package parsing

import (
	"regexp"
	"strings"
)

var (
	reHetznerVATNumber = regexp.MustCompile(`(CHE[\-\d.]+\s*MWST)`)
	reHetznerInvoice   = regexp.MustCompile(`Invoice no\.:\s*(\S+)`)
	reHetznerDate      = regexp.MustCompile(`Invoice date:\s*(\d{2}/\d{2}/\d{4})`)
	reHetznerPeriod    = regexp.MustCompile(`(?s)Period\s+Total.*?\n.*?(\d{2}/\d{4})`)
	reHetznerProject   = regexp.MustCompile(`Project\s+"([^"]+)"`)
	reHetznerDue       = regexp.MustCompile(`Amount due:\s*€\s*([0-9,]+\.\d{2})`)
	// "8.1 % € 7.50 € 0.61 € 8.11": rate, net, VAT, gross
	reHetznerTax = regexp.MustCompile(`(\d+\.?\d*)\s*%\s*€\s*([0-9,]+\.\d{2})\s*€\s*([0-9,]+\.\d{2})\s*€\s*([0-9,]+\.\d{2})`)
)

// Hetzner parses Hetzner Online cloud invoices
type Hetzner struct{}

func (Hetzner) Name() string { return "Hetzner" }

func (Hetzner) Recognize(text string) bool {
	return strings.Contains(text, "Hetzner")
}

func (Hetzner) Extract(text string) *Draft {
	d := newDraft("Hetzner", "DE", "EUR", 6810, "Informatik-Infrastruktur")
	d.VATNumber = strings.TrimSpace(find(reHetznerVATNumber, text))
	d.InvoiceNumber = find(reHetznerInvoice, text)
	d.Date = normalizeDate(layoutDMY, find(reHetznerDate, text))
	d.Period = find(reHetznerPeriod, text)

	if project := find(reHetznerProject, text); project != "" {
		d.Description = `Hetzner Cloud - Project "` + project + `"`
	} else {
		d.Description = "Hetzner Cloud services"
	}

	d.AmountGross = parseAmount(find(reHetznerDue, text))
	if m := reHetznerTax.FindStringSubmatch(text); m != nil {
		d.VATRate = parseRate(m[1])
		d.AmountNet = parseAmount(m[2])
		d.VATAmount = parseAmount(m[3])
	}
	return d
}

var (
	reInfomaniakVATNumber = regexp.MustCompile(`VAT number:\s*(CHE[\s\-\d.]+)`)
	reInfomaniakInvoice   = regexp.MustCompile(`Invoice\s+(\d+)`)
	reInfomaniakDate      = regexp.MustCompile(`Date\s+(\d{2}/\d{2}/\d{4})`)
	reInfomaniakPeriod    = regexp.MustCompile(`from\s+(\d{2}/\d{2}/\d{4})\s+.*?to\s+(\d{2}/\d{2}/\d{4})`)
	reInfomaniakKSuite    = regexp.MustCompile(`kSuite\s*:\s*(\S+)`)
	reInfomaniakRate      = regexp.MustCompile(`VAT\s+(\d+\.?\d*)%`)
	reInfomaniakGross     = regexp.MustCompile(`Total\s+CHF\s+incl\.\s+VAT\s+([0-9,]+\.\d{2})`)
	reInfomaniakNet       = regexp.MustCompile(`Price\s+CHF\s+ex\.\s+VAT\s+([0-9,]+\.\d{2})`)
	reInfomaniakVAT       = regexp.MustCompile(`VAT\s+\d+\.?\d*%\s+([0-9,]+\.\d{2})`)
)

// Infomaniak parses Infomaniak (kSuite, hosting) invoices
type Infomaniak struct{}

func (Infomaniak) Name() string { return "Infomaniak" }

func (Infomaniak) Recognize(text string) bool {
	return strings.Contains(text, "Infomaniak")
}

func (Infomaniak) Extract(text string) *Draft {
	d := newDraft("Infomaniak", "CH", "CHF", 6850, "Software-Abonnemente")
	d.VATNumber = strings.TrimSpace(find(reInfomaniakVATNumber, text))
	d.InvoiceNumber = find(reInfomaniakInvoice, text)
	d.Date = normalizeDate(layoutDMY, find(reInfomaniakDate, text))

	if m := reInfomaniakPeriod.FindStringSubmatch(text); m != nil {
		d.Period = m[1] + " - " + m[2]
	}

	if plan := find(reInfomaniakKSuite, text); plan != "" {
		d.Description = "kSuite (" + plan + ")"
	} else {
		d.Description = "Infomaniak services"
	}

	if rate := find(reInfomaniakRate, text); rate != "" {
		d.VATRate = parseRate(rate)
	}
	d.AmountGross = parseAmount(find(reInfomaniakGross, text))
	d.AmountNet = parseAmount(find(reInfomaniakNet, text))
	d.VATAmount = parseAmount(find(reInfomaniakVAT, text))
	return d
}
