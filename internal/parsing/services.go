package parsing

import (
	"regexp"
	"strings"
)

var (
	reTwilioVATNumber = regexp.MustCompile(`VAT Registration Number:\s*(\S+)`)
	reTwilioPeriod    = regexp.MustCompile(`Date\s+(\d{1,2}\s+[A-Za-z]+)\s*-\s*(\d{1,2}\s+[A-Za-z]+,\s+\d{4})`)
	reTwilioTotal     = regexp.MustCompile(`Total Paid\s+\$([0-9,]+\.\d{2})`)
	reTwilioAccount   = regexp.MustCompile(`Account SID\s+(\S+)`)
)

// Twilio parses monthly usage receipts
type Twilio struct{}

func (Twilio) Name() string { return "Twilio" }

func (Twilio) Recognize(text string) bool {
	return strings.Contains(text, "Twilio") && strings.Contains(text, "RECEIPT")
}

func (Twilio) Extract(text string) *Draft {
	// Billed by Twilio Ireland, out of scope for Swiss VAT
	d := newDraft("Twilio", "IE", "USD", 6830, "Telekommunikation")
	d.Description = "Twilio API Services"
	d.VATNumber = find(reTwilioVATNumber, text)

	// "Date 01 January - 31 January, 2026": the end of the period is the record date
	if m := reTwilioPeriod.FindStringSubmatch(text); m != nil {
		d.Period = m[1] + " - " + m[2]
		d.Date = normalizeDate(layoutLongEU, m[2])
	}

	d.AmountGross = parseAmount(find(reTwilioTotal, text))
	d.AmountNet = d.AmountGross
	d.ReceiptNumber = find(reTwilioAccount, text)
	return d
}

var (
	reNamecheapOrder      = regexp.MustCompile(`Order\s*#\s*(\d+)`)
	reNamecheapDate       = regexp.MustCompile(`Order Date\s*:\s*(\d{1,2}/\d{1,2}/\d{4})`)
	reNamecheapLineItem   = regexp.MustCompile(`Domain Registration\s+\d+\s+\d+\s+year\s+\$[\d.]+\s+\$[\d.]+\s*\n\s*(\S+)`)
	reNamecheapDomainName = regexp.MustCompile(`(\w[\w-]+\.(?:com|pro|net|org|io|ch|dev))`)
	reNamecheapTotal      = regexp.MustCompile(`TOTAL\s+\$([0-9,]+\.\d{2})`)
	reNamecheapFinalCost  = regexp.MustCompile(`Final Cost\s*:\s*\$([0-9,]+\.\d{2})`)
)

// Namecheap parses domain order receipts
type Namecheap struct{}

func (Namecheap) Name() string { return "Namecheap" }

func (Namecheap) Recognize(text string) bool {
	return strings.Contains(text, "Namecheap")
}

func (Namecheap) Extract(text string) *Draft {
	d := newDraft("Namecheap", "US", "USD", 6840, "Domänen und Hosting")
	d.InvoiceNumber = find(reNamecheapOrder, text)
	// US month/day order, e.g. "2/1/2026 10:26:05 AM"
	d.Date = normalizeDate(layoutMDY, find(reNamecheapDate, text))
	d.Description = namecheapDescription(text)

	if total := find(reNamecheapTotal, text); total != "" {
		d.AmountGross = parseAmount(total)
	} else {
		d.AmountGross = parseAmount(find(reNamecheapFinalCost, text))
	}
	d.AmountNet = d.AmountGross
	return d
}

func namecheapDescription(text string) string {
	var domains []string
	for _, m := range reNamecheapLineItem.FindAllStringSubmatch(text, -1) {
		domains = append(domains, m[1])
	}
	if len(domains) == 0 {
		domains = reNamecheapDomainName.FindAllString(text, -1)
	}
	if len(domains) == 0 {
		return "Namecheap domain services"
	}
	return "Domain registration: " + strings.Join(domains, ", ")
}
