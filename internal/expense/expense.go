package expense

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an expense record
type Status string

const (
	StatusProcessed   Status = "processed"
	StatusNeedsReview Status = "needs_review"
	StatusVerified    Status = "verified"
)

// Method records which extraction tier produced a record
type Method string

const (
	MethodPDFText Method = "pdf_text"
	MethodOCR     Method = "ocr"
	MethodAI      Method = "ai"
)

// ConfidenceThreshold separates processed records from the ones needing review.
const ConfidenceThreshold = 0.7

// ErrNoAmount is returned when a record without a positive gross amount is saved
var ErrNoAmount = errors.New("expense has no gross amount")

// StatusFor maps an extraction confidence to a lifecycle status
func StatusFor(confidence float64) Status {
	if confidence >= ConfidenceThreshold {
		return StatusProcessed
	}
	return StatusNeedsReview
}

// Expense is a single record extracted from one document
type Expense struct {
	ID       string `json:"id"`
	FilePath string `json:"file_path"`
	FileHash string `json:"file_hash"`

	Vendor          string          `json:"vendor"`
	VendorCountry   string          `json:"vendor_country"`
	InvoiceNumber   string          `json:"invoice_number"`
	ReceiptNumber   string          `json:"receipt_number"`
	Date            *Date           `json:"date"`
	Period          string          `json:"period"`
	Description     string          `json:"description"`
	AmountGross     decimal.Decimal `json:"amount_gross"`
	AmountNet       decimal.Decimal `json:"amount_net"`
	Currency        string          `json:"currency"`
	VATRate         decimal.Decimal `json:"vat_rate"`
	VATAmount       decimal.Decimal `json:"vat_amount"`
	VATNumber       string          `json:"vat_number"`
	CategoryAccount *int            `json:"category_account"`
	CategoryName    string          `json:"category_name"`

	Labels       []string `json:"labels"`
	Notes        string   `json:"notes"`
	ContextFiles []string `json:"context_files"`

	ExtractionMethod     Method    `json:"extraction_method"`
	ExtractionConfidence float64   `json:"extraction_confidence"`
	ProcessedAt          time.Time `json:"processed_at"`
	Status               Status    `json:"status"`
}

// Validate checks the invariants every persisted record must hold
func (e *Expense) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("expense has no id")
	}
	if e.FileHash == "" {
		return fmt.Errorf("expense %s has no file hash", e.ID)
	}
	if !e.AmountGross.IsPositive() {
		return fmt.Errorf("expense %s: %w", e.ID, ErrNoAmount)
	}
	return nil
}

// MonthKey returns the partition key (YYYY-MM) or "" when the record has no date
func (e *Expense) MonthKey() string {
	if e.Date == nil {
		return ""
	}
	return e.Date.MonthKey()
}

// AddLabel adds a label unless it is already present. Reports whether it was added.
func (e *Expense) AddLabel(label string) bool {
	label = strings.TrimSpace(label)
	if label == "" || slices.Contains(e.Labels, label) {
		return false
	}
	e.Labels = append(e.Labels, label)
	return true
}

// AddNote appends a note on its own line
func (e *Expense) AddNote(text string) {
	if e.Notes == "" {
		e.Notes = text
		return
	}
	e.Notes += "\n" + text
}

// AttachContext links an auxiliary file by absolute path. Reports whether it was added.
func (e *Expense) AttachContext(absPath string) bool {
	if slices.Contains(e.ContextFiles, absPath) {
		return false
	}
	e.ContextFiles = append(e.ContextFiles, absPath)
	return true
}

// SetCategory overrides the bookkeeping category
func (e *Expense) SetCategory(acct Account) {
	n := acct.Number
	e.CategoryAccount = &n
	e.CategoryName = acct.Name
}

// carryAnnotations copies user-owned fields from a previous version of the same document
func (e *Expense) carryAnnotations(prev *Expense) {
	e.ID = prev.ID
	e.Labels = prev.Labels
	e.Notes = prev.Notes
	e.ContextFiles = prev.ContextFiles
}

// IDGenerator generates unique IDs for expenses
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// DefaultIDGenerator generates 12 hex character ids from random UUIDs
type DefaultIDGenerator struct{}

func (DefaultIDGenerator) Generate() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// DefaultTimeSource provides the wall clock time
type DefaultTimeSource struct{}

func (DefaultTimeSource) Now() time.Time {
	return time.Now()
}

// FileHash returns the SHA-256 of a file's bytes, used as the dedup key
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the SHA-256 of in-memory document bytes
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
