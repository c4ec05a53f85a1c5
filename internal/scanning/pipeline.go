package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zombor/expense-ledger/internal/expense"
	"github.com/zombor/expense-ledger/internal/parsing"
)

// AIConfidence is the fixed confidence of records read by a generative scanner
const AIConfidence = 0.8

// Pipeline turns one document into an expense record by trying, in order,
// the embedded text layer, OCR, and a generative scanner. Text from the first
// two tiers goes through the vendor parsers; the scanner returns fields directly.
type Pipeline struct {
	text     TextExtractor
	ocr      TextExtractor
	scanner  Scanner
	parsers  []parsing.Parser
	currency string
	ids      expense.IDGenerator
	clock    expense.TimeSource
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithOCR enables the OCR tier
func WithOCR(ocr TextExtractor) Option {
	return func(p *Pipeline) { p.ocr = ocr }
}

// WithScanner enables the generative tier
func WithScanner(s Scanner) Option {
	return func(p *Pipeline) { p.scanner = s }
}

// WithParsers replaces the vendor parser set
func WithParsers(parsers []parsing.Parser) Option {
	return func(p *Pipeline) { p.parsers = parsers }
}

// WithDefaultCurrency sets the currency used when a parser finds none
func WithDefaultCurrency(currency string) Option {
	return func(p *Pipeline) { p.currency = currency }
}

// WithIDGenerator replaces the record id generator
func WithIDGenerator(ids expense.IDGenerator) Option {
	return func(p *Pipeline) { p.ids = ids }
}

// WithTimeSource replaces the clock stamped on records
func WithTimeSource(clock expense.TimeSource) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// NewPipeline creates a pipeline reading embedded text with text. OCR and the
// generative scanner are off unless enabled with options.
func NewPipeline(text TextExtractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		text:     text,
		parsers:  parsing.Parsers(),
		currency: "CHF",
		ids:      expense.DefaultIDGenerator{},
		clock:    expense.DefaultTimeSource{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process extracts a record from the document at path. It returns nil when
// no tier produced a usable record; only failing to read the file is an error.
func (p *Pipeline) Process(ctx context.Context, path string) (*expense.Expense, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	hash, err := expense.FileHash(absPath)
	if err != nil {
		return nil, err
	}

	if text := p.readText(ctx, p.text, absPath, "direct text"); text != "" {
		return p.fromText(text, absPath, hash, expense.MethodPDFText), nil
	}
	if text := p.readText(ctx, p.ocr, absPath, "ocr"); text != "" {
		return p.fromText(text, absPath, hash, expense.MethodOCR), nil
	}
	return p.fromScanner(ctx, absPath, hash), nil
}

// readText runs one text backend. Backend errors are logged and read as no text.
func (p *Pipeline) readText(ctx context.Context, backend TextExtractor, path, tier string) string {
	if backend == nil {
		return ""
	}
	text, err := backend.ExtractText(ctx, path)
	if err != nil {
		if !errors.Is(err, ErrNoText) {
			slog.Warn("Text backend failed", "tier", tier, "path", path, "error", err)
		}
		return ""
	}
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return text
}

func (p *Pipeline) fromText(text, path, hash string, method expense.Method) *expense.Expense {
	draft, parser := parsing.Dispatch(p.parsers, text)
	if draft == nil {
		slog.Info("No parser could extract document", "path", path, "method", method)
		return nil
	}
	slog.Debug("Parsed document", "path", path, "parser", parser.Name(), "confidence", draft.Confidence)

	currency := draft.Currency
	if currency == "" {
		currency = p.currency
	}

	return &expense.Expense{
		ID:                   p.ids.Generate(),
		FilePath:             path,
		FileHash:             hash,
		Vendor:               draft.Vendor,
		VendorCountry:        draft.VendorCountry,
		InvoiceNumber:        draft.InvoiceNumber,
		ReceiptNumber:        draft.ReceiptNumber,
		Date:                 expense.ParseDatePtr(draft.Date),
		Period:               draft.Period,
		Description:          draft.Description,
		AmountGross:          draft.AmountGross,
		AmountNet:            draft.AmountNet,
		Currency:             currency,
		VATRate:              draft.VATRate,
		VATAmount:            draft.VATAmount,
		VATNumber:            draft.VATNumber,
		CategoryAccount:      draft.CategoryAccount,
		CategoryName:         draft.CategoryName,
		Labels:               []string{},
		ContextFiles:         []string{},
		ExtractionMethod:     method,
		ExtractionConfidence: draft.Confidence,
		ProcessedAt:          p.clock.Now(),
		Status:               expense.StatusFor(draft.Confidence),
	}
}

// fromScanner is the last tier. Its records always need review.
func (p *Pipeline) fromScanner(ctx context.Context, path, hash string) *expense.Expense {
	if p.scanner == nil {
		slog.Info("No text found and no generative scanner configured", "path", path)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Failed to read document for scanning", "path", path, "error", err)
		return nil
	}

	result, err := p.scanner.ScanDocument(ctx, data, expense.ContentType(path))
	if err != nil {
		slog.Warn("Generative scanner failed", "path", path, "error", err)
		return nil
	}
	if !result.AmountGross.IsPositive() {
		slog.Info("Generative scanner found no amount", "path", path)
		return nil
	}

	currency := result.Currency
	if currency == "" {
		currency = p.currency
	}
	net := result.AmountNet
	if net.IsZero() {
		net = result.AmountGross.Sub(result.VATAmount)
	}

	e := &expense.Expense{
		ID:                   p.ids.Generate(),
		FilePath:             path,
		FileHash:             hash,
		Vendor:               result.Vendor,
		VendorCountry:        result.VendorCountry,
		InvoiceNumber:        result.InvoiceNumber,
		Date:                 expense.ParseDatePtr(result.Date),
		Period:               result.Period,
		Description:          result.Description,
		AmountGross:          result.AmountGross.Round(2),
		AmountNet:            net.Round(2),
		Currency:             currency,
		VATRate:              result.VATRate,
		VATAmount:            result.VATAmount.Round(2),
		VATNumber:            result.VATNumber,
		Labels:               []string{},
		ContextFiles:         []string{},
		ExtractionMethod:     expense.MethodAI,
		ExtractionConfidence: AIConfidence,
		ProcessedAt:          p.clock.Now(),
		Status:               expense.StatusNeedsReview,
	}
	if result.CategoryAccount != nil {
		if acct, ok := expense.LookupAccount(*result.CategoryAccount); ok {
			e.SetCategory(acct)
		}
	}
	return e
}
