package expense

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when no record matches an id prefix
var ErrNotFound = errors.New("expense not found")

// Extractor turns a document into a record. A nil record with a nil error
// means the document could not be extracted.
type Extractor interface {
	Process(ctx context.Context, path string) (*Expense, error)
}

// Result is the per-document outcome of a processing run
type Result string

const (
	ResultProcessed Result = "processed"
	ResultSkipped   Result = "skipped"
	ResultFailed    Result = "failed"
)

// Outcome reports what happened to one document
type Outcome struct {
	Path    string
	Result  Result
	Expense *Expense
	Reason  string
}

// ProcessOptions controls how documents are processed and filed
type ProcessOptions struct {
	// BaseDir is where YY-MM folders are created, defaults to the document's directory
	BaseDir   string
	Recursive bool
	// Force re-extracts documents already in the ledger, keeping their id
	Force bool
	// NoFile leaves documents where they are
	NoFile bool
}

// Service handles expense operations
type Service struct {
	store     Store
	extractor Extractor
	failures  FailureLog
	clock     TimeSource
}

// NewService creates a new Service. failures may be nil.
func NewService(store Store, extractor Extractor, failures FailureLog) *Service {
	return NewServiceWithDeps(store, extractor, failures, DefaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with a custom time source for testing
func NewServiceWithDeps(store Store, extractor Extractor, failures FailureLog, clock TimeSource) *Service {
	return &Service{
		store:     store,
		extractor: extractor,
		failures:  failures,
		clock:     clock,
	}
}

// FindDocuments lists supported documents in dir, sorted by path
func FindDocuments(dir string, recursive bool) ([]string, error) {
	var paths []string
	if recursive {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && IsSupported(path) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", dir, err)
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && IsSupported(entry.Name()) {
				paths = append(paths, filepath.Join(dir, entry.Name()))
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// ProcessDir processes every supported document in a directory. A failing
// document is reported in its outcome and never stops the run.
func (s *Service) ProcessDir(ctx context.Context, dir string, opts ProcessOptions) ([]Outcome, error) {
	paths, err := FindDocuments(dir, opts.Recursive)
	if err != nil {
		return nil, err
	}
	if opts.BaseDir == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", dir, err)
		}
		opts.BaseDir = abs
	}

	outcomes := make([]Outcome, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		outcome, err := s.ProcessFile(ctx, path, opts)
		if err != nil {
			slog.Error("Failed to process document", "path", path, "error", err)
			outcome = Outcome{Path: path, Result: ResultFailed, Reason: err.Error()}
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// ProcessFile runs one document through dedup, extraction, filing and storage
func (s *Service) ProcessFile(ctx context.Context, path string, opts ProcessOptions) (Outcome, error) {
	outcome := Outcome{Path: path}

	hash, err := FileHash(path)
	if err != nil {
		return outcome, err
	}

	existing, err := s.store.FindByHash(hash)
	if err != nil {
		return outcome, fmt.Errorf("checking for duplicate: %w", err)
	}
	if existing != nil && !opts.Force {
		outcome.Result = ResultSkipped
		outcome.Expense = existing
		outcome.Reason = "already processed"
		return outcome, nil
	}

	expense, err := s.extractor.Process(ctx, path)
	if err != nil {
		return outcome, fmt.Errorf("extracting: %w", err)
	}
	if expense == nil {
		outcome.Result = ResultFailed
		outcome.Reason = "could not extract"
		s.recordFailure(hash, path, outcome.Reason)
		return outcome, nil
	}
	if existing != nil {
		expense.carryAnnotations(existing)
	}

	filed := ""
	if !opts.NoFile {
		baseDir := opts.BaseDir
		if baseDir == "" {
			baseDir = filepath.Dir(path)
		}
		newPath, err := FileIntoMonthFolder(path, expense, baseDir)
		if err != nil {
			return outcome, fmt.Errorf("filing document: %w", err)
		}
		if newPath != path {
			filed = newPath
		}
		expense.FilePath = newPath
	}

	if err := s.store.Save(expense); err != nil {
		if filed != "" {
			if rerr := os.Rename(filed, path); rerr != nil {
				slog.Error("Failed to restore document after save error", "path", filed, "error", rerr)
			}
		}
		return outcome, fmt.Errorf("saving expense: %w", err)
	}
	if s.failures != nil {
		if err := s.failures.ClearFailure(hash); err != nil {
			slog.Warn("Failed to clear failure entry", "path", path, "error", err)
		}
	}

	outcome.Result = ResultProcessed
	outcome.Expense = expense
	return outcome, nil
}

func (s *Service) recordFailure(hash, path, reason string) {
	if s.failures == nil {
		return
	}
	err := s.failures.RecordFailure(&Failure{
		FileHash:    hash,
		FilePath:    path,
		Reason:      reason,
		Attempts:    1,
		LastAttempt: s.clock.Now(),
	})
	if err != nil {
		slog.Warn("Failed to record extraction failure", "path", path, "error", err)
	}
}

// FileIntoMonthFolder moves a document into its YY-MM folder under baseDir and
// returns the new path. Undated records and documents already in place stay put.
func FileIntoMonthFolder(path string, expense *Expense, baseDir string) (string, error) {
	if expense.Date == nil {
		return path, nil
	}

	monthDir := filepath.Join(baseDir, expense.Date.FolderName())
	if err := os.MkdirAll(monthDir, 0755); err != nil {
		return "", fmt.Errorf("creating month folder: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	absMonthDir, err := filepath.Abs(monthDir)
	if err != nil {
		return "", err
	}
	if filepath.Dir(absPath) == absMonthDir {
		return path, nil
	}

	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	dest := filepath.Join(monthDir, base)
	for i := 1; fileExists(dest); i++ {
		dest = filepath.Join(monthDir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}

	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("moving %s: %w", path, err)
	}
	return dest, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Get returns the record matching an id prefix
func (s *Service) Get(prefix string) (*Expense, error) {
	expense, err := s.store.FindByID(prefix)
	if err != nil {
		return nil, fmt.Errorf("finding expense: %w", err)
	}
	if expense == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	}
	return expense, nil
}

// List returns the records matching a filter, sorted by date
func (s *Service) List(filter Filter) ([]*Expense, error) {
	records, err := s.store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("loading expenses: %w", err)
	}
	return SortByDate(filter.Apply(records)), nil
}

// Delete removes the records matching an id prefix
func (s *Service) Delete(prefix string) error {
	removed, err := s.store.Delete(prefix)
	if err != nil {
		return fmt.Errorf("deleting expense: %w", err)
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrNotFound, prefix)
	}
	return nil
}

func (s *Service) update(prefix string, mutate func(e *Expense) error) (*Expense, error) {
	expense, err := s.Get(prefix)
	if err != nil {
		return nil, err
	}
	if err := mutate(expense); err != nil {
		return nil, err
	}
	if err := s.store.Save(expense); err != nil {
		return nil, fmt.Errorf("saving expense: %w", err)
	}
	return expense, nil
}

// AddLabels adds labels to a record, ignoring ones it already has
func (s *Service) AddLabels(prefix string, labels ...string) (*Expense, error) {
	return s.update(prefix, func(e *Expense) error {
		for _, l := range labels {
			e.AddLabel(l)
		}
		return nil
	})
}

// AddNote appends a note to a record
func (s *Service) AddNote(prefix, text string) (*Expense, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("note is empty")
	}
	return s.update(prefix, func(e *Expense) error {
		e.AddNote(text)
		return nil
	})
}

// AttachContext links an existing auxiliary file to a record
func (s *Service) AttachContext(prefix, path string) (*Expense, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("context file: %w", err)
	}
	return s.update(prefix, func(e *Expense) error {
		e.AttachContext(abs)
		return nil
	})
}

// Categorize overrides the bookkeeping account of a record
func (s *Service) Categorize(prefix string, account int) (*Expense, error) {
	acct, ok := LookupAccount(account)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAccount, account)
	}
	return s.update(prefix, func(e *Expense) error {
		e.SetCategory(acct)
		return nil
	})
}

// Verify marks a record as confirmed by a human
func (s *Service) Verify(prefix string) (*Expense, error) {
	return s.update(prefix, func(e *Expense) error {
		e.Status = StatusVerified
		return nil
	})
}

// GetFile returns the document bytes and content type of a record
func (s *Service) GetFile(prefix string) ([]byte, string, error) {
	expense, err := s.Get(prefix)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(expense.FilePath)
	if err != nil {
		return nil, "", fmt.Errorf("reading document: %w", err)
	}
	return data, ContentType(expense.FilePath), nil
}

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Export writes the matching records in the given format and returns how many were written
func (s *Service) Export(w io.Writer, filter Filter, format Format) (int, error) {
	records, err := s.List(filter)
	if err != nil {
		return 0, err
	}
	switch format {
	case FormatCSV, "":
		err = WriteCSV(w, records)
	case FormatXLSX:
		err = WriteXLSX(w, records)
	default:
		return 0, fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return 0, fmt.Errorf("exporting: %w", err)
	}
	return len(records), nil
}

// Summary returns the by-category report for the matching records
func (s *Service) Summary(filter Filter) ([]CategorySummary, error) {
	records, err := s.List(filter)
	if err != nil {
		return nil, err
	}
	return SummaryReport(records), nil
}

// VAT returns the by-rate report for the matching records
func (s *Service) VAT(filter Filter) ([]RateSummary, error) {
	records, err := s.List(filter)
	if err != nil {
		return nil, err
	}
	return VATReport(records), nil
}

// Failures returns the documents that could not be extracted
func (s *Service) Failures() ([]*Failure, error) {
	if s.failures == nil {
		return []*Failure{}, nil
	}
	return s.failures.ListFailures()
}

// Ingest stores uploaded document bytes in opts.BaseDir and processes them.
// Known bytes are answered with the existing record without touching the
// inbox; an unreadable upload stays there for review.
func (s *Service) Ingest(ctx context.Context, filename string, data []byte, opts ProcessOptions) (Outcome, error) {
	name := filepath.Base(filename)
	if !IsSupported(name) {
		return Outcome{Path: name}, fmt.Errorf("unsupported document type %q", filepath.Ext(name))
	}
	if opts.BaseDir == "" {
		return Outcome{Path: name}, fmt.Errorf("no inbox directory configured")
	}
	if !opts.Force {
		existing, err := s.store.FindByHash(HashBytes(data))
		if err != nil {
			return Outcome{Path: name}, fmt.Errorf("checking for duplicate: %w", err)
		}
		if existing != nil {
			return Outcome{Path: name, Result: ResultSkipped, Expense: existing, Reason: "already processed"}, nil
		}
	}
	if err := os.MkdirAll(opts.BaseDir, 0755); err != nil {
		return Outcome{Path: name}, fmt.Errorf("creating inbox: %w", err)
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	path := filepath.Join(opts.BaseDir, name)
	for i := 1; fileExists(path); i++ {
		path = filepath.Join(opts.BaseDir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return Outcome{Path: path}, fmt.Errorf("saving upload: %w", err)
	}

	outcome, err := s.ProcessFile(ctx, path, opts)
	if err == nil && outcome.Result == ResultSkipped {
		if rmErr := os.Remove(path); rmErr != nil {
			slog.Warn("Failed to remove duplicate upload", "path", path, "error", rmErr)
		}
	}
	return outcome, err
}
