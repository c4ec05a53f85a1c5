package scanning

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotConfigured is returned when a generative backend has no credentials
var ErrNotConfigured = errors.New("generative scanner not configured")

// DocumentData contains the fields a generative backend read from a document
type DocumentData struct {
	Vendor          string          `json:"vendor"`
	VendorCountry   string          `json:"vendor_country"`
	InvoiceNumber   string          `json:"invoice_number"`
	Date            string          `json:"date"` // YYYY-MM-DD
	Period          string          `json:"period"`
	Description     string          `json:"description"`
	AmountGross     decimal.Decimal `json:"amount_gross"`
	AmountNet       decimal.Decimal `json:"amount_net"`
	Currency        string          `json:"currency"`
	VATRate         decimal.Decimal `json:"vat_rate"`
	VATAmount       decimal.Decimal `json:"vat_amount"`
	VATNumber       string          `json:"vat_number"`
	CategoryAccount *int            `json:"category_account"`
}

// Scanner defines the interface for generative document scanning
type Scanner interface {
	// ScanDocument analyzes a document image/PDF and extracts expense fields
	ScanDocument(ctx context.Context, data []byte, contentType string) (*DocumentData, error)
	// Close closes the scanner and releases resources
	Close() error
}

// documentScanPrompt is the shared prompt used by all LLM providers
const documentScanPrompt = `You are analyzing an invoice or receipt for the bookkeeping of a small Swiss business. Carefully read all text in the document and extract the following information:

1. **Vendor**: The company that issued the invoice, and its country as a two letter ISO code.

2. **Invoice number and date**: The invoice or receipt number, and the invoice date converted to ISO 8601 format (YYYY-MM-DD). If the document covers a billing period, include it as written.

3. **Amounts**: The gross total actually charged, the net amount before tax, the VAT rate in percent and the VAT amount, and the three letter currency code. Extract only numeric values (e.g., 42.75 for $42.75).

4. **VAT number**: The vendor's VAT or MWST registration number if printed.

5. **Account**: The best matching Swiss KMU expense account number (6000-6850), for example 6500 for office supplies, 6810 for IT infrastructure, 6820 for IT services, 6830 for telecommunication, 6840 for domains and hosting, 6850 for software subscriptions.

Return ONLY valid JSON in this exact format:
{
  "vendor": "Company Name",
  "vendor_country": "CH",
  "invoice_number": "12345",
  "date": "YYYY-MM-DD",
  "period": "",
  "description": "Brief description of what was bought",
  "amount_gross": 0.00,
  "amount_net": 0.00,
  "currency": "CHF",
  "vat_rate": 0.0,
  "vat_amount": 0.00,
  "vat_number": "",
  "category_account": 6500
}

Important:
- The date must be in YYYY-MM-DD format
- Amounts must be numbers (not strings)
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`
