package scanning

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/zombor/expense-ledger/internal/expense"
)

// ErrOCRUnavailable is returned when the tesseract binary cannot be found
var ErrOCRUnavailable = errors.New("tesseract not available")

// Runner executes external commands
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	slog.Debug("exec", "cmd", name, "args", strings.Join(args, " "),
		"duration_ms", time.Since(start).Milliseconds(), "error", err)
	return out.Bytes(), errb.Bytes(), err
}

// Tesseract reads scanned PDFs and photos with the tesseract CLI.
// PDF pages and HEIC photos are converted to PNG first.
type Tesseract struct {
	bin      string
	lang     string
	runner   Runner
	lookPath func(string) (string, error)
}

// TesseractOption configures a Tesseract
type TesseractOption func(*Tesseract)

// WithRunner replaces the command runner
func WithRunner(r Runner) TesseractOption {
	return func(t *Tesseract) { t.runner = r }
}

// WithLookPath replaces the binary lookup
func WithLookPath(fn func(string) (string, error)) TesseractOption {
	return func(t *Tesseract) { t.lookPath = fn }
}

// NewTesseract creates an OCR backend. bin defaults to "tesseract" and lang to "eng+deu".
func NewTesseract(bin, lang string, opts ...TesseractOption) *Tesseract {
	if bin == "" {
		bin = "tesseract"
	}
	if lang == "" {
		lang = "eng+deu"
	}
	t := &Tesseract{
		bin:      bin,
		lang:     lang,
		runner:   ExecRunner{},
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ExtractText OCRs every page of the document
func (t *Tesseract) ExtractText(ctx context.Context, path string) (string, error) {
	bin, err := t.lookPath(t.bin)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOCRUnavailable, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}

	contentType := expense.ContentType(path)
	var images [][]byte
	if contentType == "application/pdf" {
		images, err = renderPages(data, maxRenderedPages)
	} else {
		var png []byte
		png, _, _, err = prepareImageData(data, contentType)
		images = [][]byte{png}
	}
	if err != nil {
		return "", err
	}

	tmpDir, err := os.MkdirTemp("", "expense-ocr-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	var pages []string
	for i, img := range images {
		pagePath := filepath.Join(tmpDir, fmt.Sprintf("page-%03d.png", i+1))
		if err := os.WriteFile(pagePath, img, 0600); err != nil {
			return "", fmt.Errorf("writing page image: %w", err)
		}

		// tesseract <file> stdout -l <lang>
		out, errb, err := t.runner.Run(ctx, bin, pagePath, "stdout", "-l", t.lang)
		if err != nil {
			return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(string(errb)))
		}
		pages = append(pages, string(out))
	}

	text := strings.Join(pages, "\n\n")
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}
