package expense

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	ledgerJSON = "ledger.json"
	ledgerCSV  = "ledger.csv"
)

var partitionFile = regexp.MustCompile(`^\d{4}-\d{2}\.(json|csv)$`)

// Store defines the persistence operations for expense records
type Store interface {
	// LoadAll returns every record, order not guaranteed
	LoadAll() ([]*Expense, error)

	// Save upserts a record by id and rewrites every derived view
	Save(expense *Expense) error

	// SaveAll replaces the whole collection and rebuilds every derived view
	SaveAll(expenses []*Expense) error

	// FindByID returns the first record whose id starts with prefix, or nil
	FindByID(prefix string) (*Expense, error)

	// FindByHash returns the first record with this content hash, or nil
	FindByHash(hash string) (*Expense, error)

	// Delete removes every record whose id starts with prefix
	Delete(prefix string) (bool, error)
}

// LocalStore keeps the global collection in ledger.json and derives monthly
// partitions (YYYY-MM.json) plus CSV mirrors of both from it.
//
// Locks are taken only around the raw read and the raw write of each file. An
// upsert is therefore read-modify-write without a lock spanning it: two
// processes saving at the same moment can lose one of the updates, the last
// writer wins.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a store rooted at dir
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir returns the data directory
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) ledgerPath() string {
	return filepath.Join(s.dir, ledgerJSON)
}

// LoadAll returns every record in the global collection
func (s *LocalStore) LoadAll() ([]*Expense, error) {
	return readRecords(s.ledgerPath())
}

// Save upserts a record by id
func (s *LocalStore) Save(expense *Expense) error {
	if err := expense.Validate(); err != nil {
		return err
	}

	records, err := readRecords(s.ledgerPath())
	if err != nil {
		return err
	}

	replaced := false
	for i, r := range records {
		if r.ID == expense.ID {
			records[i] = expense
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, expense)
	}

	return s.write(records)
}

// SaveAll replaces every record
func (s *LocalStore) SaveAll(expenses []*Expense) error {
	for _, e := range expenses {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return s.write(expenses)
}

// FindByID returns the first record whose id starts with prefix
func (s *LocalStore) FindByID(prefix string) (*Expense, error) {
	if prefix == "" {
		return nil, nil
	}
	records, err := readRecords(s.ledgerPath())
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if strings.HasPrefix(r.ID, prefix) {
			return r, nil
		}
	}
	return nil, nil
}

// FindByHash returns the first record with a matching content hash
func (s *LocalStore) FindByHash(hash string) (*Expense, error) {
	if hash == "" {
		return nil, nil
	}
	records, err := readRecords(s.ledgerPath())
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.FileHash == hash {
			return r, nil
		}
	}
	return nil, nil
}

// Delete removes all records whose id starts with prefix
func (s *LocalStore) Delete(prefix string) (bool, error) {
	if prefix == "" {
		return false, nil
	}
	records, err := readRecords(s.ledgerPath())
	if err != nil {
		return false, err
	}

	kept := make([]*Expense, 0, len(records))
	for _, r := range records {
		if !strings.HasPrefix(r.ID, prefix) {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(records) {
		return false, nil
	}
	if err := s.write(kept); err != nil {
		return false, err
	}
	return true, nil
}

// Rebuild regenerates every derived view from the global collection
func (s *LocalStore) Rebuild() error {
	records, err := readRecords(s.ledgerPath())
	if err != nil {
		return err
	}
	return s.rebuildViews(records)
}

func (s *LocalStore) write(records []*Expense) error {
	data, err := encodeRecords(records)
	if err != nil {
		return err
	}
	if err := writeLocked(s.ledgerPath(), data); err != nil {
		return fmt.Errorf("writing ledger: %w", err)
	}
	return s.rebuildViews(records)
}

// rebuildViews writes the global CSV, one JSON and CSV file per month, and
// removes partitions for months that no longer have records.
func (s *LocalStore) rebuildViews(records []*Expense) error {
	var csvBuf bytes.Buffer
	if err := WriteCSV(&csvBuf, records); err != nil {
		return err
	}
	if err := writeLocked(filepath.Join(s.dir, ledgerCSV), csvBuf.Bytes()); err != nil {
		return fmt.Errorf("writing ledger csv: %w", err)
	}

	months := partition(records)
	for month, monthRecords := range months {
		data, err := encodeRecords(monthRecords)
		if err != nil {
			return err
		}
		if err := writeLocked(filepath.Join(s.dir, month+".json"), data); err != nil {
			return fmt.Errorf("writing partition %s: %w", month, err)
		}

		csvBuf.Reset()
		if err := WriteCSV(&csvBuf, monthRecords); err != nil {
			return err
		}
		if err := writeLocked(filepath.Join(s.dir, month+".csv"), csvBuf.Bytes()); err != nil {
			return fmt.Errorf("writing partition csv %s: %w", month, err)
		}
	}

	return s.removeStalePartitions(months)
}

func (s *LocalStore) removeStalePartitions(months map[string][]*Expense) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("listing data directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !partitionFile.MatchString(name) {
			continue
		}
		month := strings.TrimSuffix(name, filepath.Ext(name))
		if _, ok := months[month]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing stale partition %s: %w", name, err)
		}
	}
	return nil
}

// partition groups records by billing month, keeping collection order.
// Records without a date are left out.
func partition(records []*Expense) map[string][]*Expense {
	months := make(map[string][]*Expense)
	for _, r := range records {
		if key := r.MonthKey(); key != "" {
			months[key] = append(months[key], r)
		}
	}
	return months
}

func encodeRecords(records []*Expense) ([]byte, error) {
	if records == nil {
		records = []*Expense{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling records: %w", err)
	}
	return append(data, '\n'), nil
}

// readRecords reads a JSON collection under a shared lock. A missing file is
// an empty collection and so is a corrupt one.
func readRecords(path string) ([]*Expense, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []*Expense{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	var records []*Expense
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		slog.Warn("Ignoring unreadable ledger", "path", path, "error", err)
		return []*Expense{}, nil
	}
	if records == nil {
		records = []*Expense{}
	}
	return records, nil
}

// writeLocked replaces a file's content under an exclusive lock. The file is
// truncated only once the lock is held, so readers never see a partial write.
func writeLocked(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncating %s: %w", path, err)
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
