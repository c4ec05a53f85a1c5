package expense

import (
	"path/filepath"
	"time"
)

// Config holds the resolved settings of a run. It is filled from flags and
// environment by the command line and passed into constructors.
type Config struct {
	DataDir         string
	DefaultCurrency string

	ScannerType string // gemini, ollama or none
	GeminiKey   string
	GeminiModel string
	OllamaURL   string
	OllamaModel string

	Tesseract     string
	TesseractLang string
	DisableOCR    bool

	// Debounce is the quiet period the watcher waits for per document
	Debounce time.Duration
}

// FailureLogPath is where the failure log lives inside the data directory
func (c Config) FailureLogPath() string {
	return filepath.Join(c.DataDir, "failures.db")
}

// InboxDir is where uploaded documents are written before processing
func (c Config) InboxDir() string {
	return filepath.Join(c.DataDir, "inbox")
}
