// Package parsing turns extracted document text into draft expense records
// using a fixed, ordered set of vendor-specific parsers.
package parsing

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// GenericConfidence is the confidence of drafts produced by the catch-all parser
const GenericConfidence = 0.3

// Draft holds the fields a parser extracted, before identity and provenance are attached
type Draft struct {
	Vendor          string
	VendorCountry   string
	InvoiceNumber   string
	ReceiptNumber   string
	Date            string // YYYY-MM-DD, empty when unknown
	Period          string
	Description     string
	AmountGross     decimal.Decimal
	AmountNet       decimal.Decimal
	Currency        string
	VATRate         decimal.Decimal
	VATAmount       decimal.Decimal
	VATNumber       string
	CategoryAccount *int
	CategoryName    string
	Confidence      float64
}

func newDraft(vendor, country, currency string, account int, category string) *Draft {
	return &Draft{
		Vendor:          vendor,
		VendorCountry:   country,
		Currency:        currency,
		CategoryAccount: &account,
		CategoryName:    category,
		Confidence:      1.0,
	}
}

// usable reports whether the draft can become a record
func (d *Draft) usable() bool {
	return d != nil && d.AmountGross.IsPositive()
}

// finalize derives net from gross minus VAT when no net amount was found
func (d *Draft) finalize() {
	if d.AmountNet.IsZero() {
		d.AmountNet = d.AmountGross.Sub(d.VATAmount)
	}
}

// Parser recognizes and extracts one document layout
type Parser interface {
	// Name is the vendor the parser handles
	Name() string
	// Recognize is a cheap keyword check on the text
	Recognize(text string) bool
	// Extract returns a draft, or nil when the text turns out not to match
	Extract(text string) *Draft
}

// Parsers returns the parser set in priority order: specific vendors first,
// the generic fallback last.
func Parsers() []Parser {
	return []Parser{
		Anomaly{},
		Anthropic{},
		ElevenLabs{},
		Infomaniak{},
		Hetzner{},
		Twilio{},
		Namecheap{},
		Generic{},
	}
}

// Dispatch tries parsers in order and returns the first draft with a positive
// gross amount, along with the parser that produced it. A parser that
// recognizes the text but finds no amount does not stop the scan.
func Dispatch(parsers []Parser, text string) (*Draft, Parser) {
	text = Normalize(text)
	for _, p := range parsers {
		if !p.Recognize(text) {
			continue
		}
		d := p.Extract(text)
		if !d.usable() {
			continue
		}
		d.finalize()
		return d, p
	}
	return nil, nil
}

// Normalize replaces control characters and Unicode spaces other than
// newlines and tabs with plain spaces and unifies line endings. Text backends
// leave NUL bytes, stray carriage returns and non-breaking spaces around
// currency symbols in their output, and the parser patterns only match ASCII
// whitespace.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || unicode.IsSpace(r) || r == '\u202f' {
			return ' '
		}
		return r
	}, text)
}
