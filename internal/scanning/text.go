package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/zombor/expense-ledger/internal/expense"
)

// ErrNoText is returned when a backend finds no text in a document
var ErrNoText = errors.New("no text in document")

// TextExtractor reads text from a document
type TextExtractor interface {
	// ExtractText returns the document text, or ErrNoText
	ExtractText(ctx context.Context, path string) (string, error)
}

// FitzText reads the embedded text layer of PDFs with MuPDF
type FitzText struct{}

// ExtractText joins the text of every page. Images and scanned PDFs
// yield ErrNoText.
func (FitzText) ExtractText(_ context.Context, path string) (string, error) {
	if expense.ContentType(path) != "application/pdf" {
		return "", ErrNoText
	}

	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	var pages []string
	for n := 0; n < doc.NumPage(); n++ {
		text, err := doc.Text(n)
		if err != nil {
			slog.Debug("Failed to read PDF page text", "path", path, "page", n+1, "error", err)
			continue
		}
		pages = append(pages, text)
	}

	text := strings.Join(pages, "\n\n")
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}
