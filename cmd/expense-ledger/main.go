package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/expense-ledger/internal/expense"
	"github.com/zombor/expense-ledger/internal/scanning"
	"github.com/zombor/expense-ledger/internal/watcher"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdout)
	root := a.command()
	if err := root.ParseAndRun(ctx, os.Args[1:], ff.WithEnvVarPrefix("EXPENSE_LEDGER")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(root.GetSelected()))
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// rootFlags are shared by every subcommand
type rootFlags struct {
	dataDir       *string
	currency      *string
	scannerType   *string
	geminiKey     *string
	geminiModel   *string
	ollamaURL     *string
	ollamaModel   *string
	tesseract     *string
	tesseractLang *string
	noOCR         *bool
	debounce      *time.Duration
	debug         *bool
}

func registerRootFlags(fs *ff.FlagSet) rootFlags {
	return rootFlags{
		dataDir:       fs.StringLong("data-dir", "./data", "Directory holding the ledger, partitions and exports"),
		currency:      fs.StringLong("default-currency", "CHF", "Currency assumed when a document names none"),
		scannerType:   fs.StringLong("scanner", "gemini", "Generative scanner: 'gemini', 'ollama' or 'none'"),
		geminiKey:     fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)"),
		geminiModel:   fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name"),
		ollamaURL:     fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL"),
		ollamaModel:   fs.StringLong("ollama-model", "llava", "Ollama vision model name"),
		tesseract:     fs.StringLong("tesseract", "tesseract", "Path to the tesseract binary"),
		tesseractLang: fs.StringLong("tesseract-lang", "eng+deu", "Tesseract languages"),
		noOCR:         fs.BoolLong("no-ocr", "Skip the OCR tier"),
		debounce:      fs.DurationLong("debounce", watcher.DefaultDebounce, "Quiet period before a changed document is processed by watch"),
		debug:         fs.BoolLong("debug", "Enable debug logging"),
	}
}

// config resolves the parsed flags
func (f rootFlags) config() expense.Config {
	apiKey := *f.geminiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	return expense.Config{
		DataDir:         *f.dataDir,
		DefaultCurrency: strings.ToUpper(*f.currency),
		ScannerType:     *f.scannerType,
		GeminiKey:       apiKey,
		GeminiModel:     *f.geminiModel,
		OllamaURL:       *f.ollamaURL,
		OllamaModel:     *f.ollamaModel,
		Tesseract:       *f.tesseract,
		TesseractLang:   *f.tesseractLang,
		DisableOCR:      *f.noOCR,
		Debounce:        *f.debounce,
	}
}

// newScanner builds the generative tier. A missing scanner is not fatal:
// documents without text then fail and are listed by the failures command.
func newScanner(ctx context.Context, cfg expense.Config) scanning.Scanner {
	switch cfg.ScannerType {
	case "gemini":
		scanner, err := scanning.NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel)
		if errors.Is(err, scanning.ErrNotConfigured) {
			slog.Info("No Gemini API key, generative scanning disabled")
			return nil
		}
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			return nil
		}
		slog.Debug("Initialized Gemini scanner", "model", cfg.GeminiModel)
		return scanner
	case "ollama":
		scanner, err := scanning.NewOllama(cfg.OllamaURL, cfg.OllamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			return nil
		}
		slog.Debug("Initialized Ollama scanner", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		return scanner
	case "none", "":
		return nil
	default:
		slog.Warn("Invalid scanner type, generative scanning disabled", "type", cfg.ScannerType, "valid", "gemini, ollama or none")
		return nil
	}
}

// newService wires store, pipeline and failure log. The returned func
// releases the scanner.
func newService(ctx context.Context, cfg expense.Config) (*expense.Service, func(), error) {
	store, err := expense.NewLocalStore(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing storage: %w", err)
	}

	failures, err := expense.NewBoltFailureLog(cfg.FailureLogPath())
	if err != nil {
		return nil, nil, fmt.Errorf("initializing failure log: %w", err)
	}

	opts := []scanning.Option{scanning.WithDefaultCurrency(cfg.DefaultCurrency)}
	if !cfg.DisableOCR {
		opts = append(opts, scanning.WithOCR(scanning.NewTesseract(cfg.Tesseract, cfg.TesseractLang)))
	}
	scanner := newScanner(ctx, cfg)
	if scanner != nil {
		opts = append(opts, scanning.WithScanner(scanner))
	}
	pipeline := scanning.NewPipeline(scanning.FitzText{}, opts...)

	closeFn := func() {
		if scanner != nil {
			if err := scanner.Close(); err != nil {
				slog.Warn("Failed to close scanner", "error", err)
			}
		}
	}
	return expense.NewService(store, pipeline, failures), closeFn, nil
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
