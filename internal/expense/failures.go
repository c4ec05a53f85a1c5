package expense

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const failureBucketName = "failures"

// Failure describes a document the pipeline could not extract
type Failure struct {
	FileHash    string    `json:"file_hash"`
	FilePath    string    `json:"file_path"`
	Reason      string    `json:"reason"`
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"last_attempt"`
}

// FailureLog defines the interface for tracking extraction failures
type FailureLog interface {
	// RecordFailure stores a failure, counting repeated attempts on the same document
	RecordFailure(failure *Failure) error

	// ClearFailure forgets a document once it was processed
	ClearFailure(hash string) error

	// ListFailures returns failures ordered by last attempt, newest first
	ListFailures() ([]*Failure, error)
}

// BoltFailureLog implements FailureLog using BoltDB.
//
// The database is opened per operation: bbolt holds an exclusive file lock
// while open, and a long running watcher must not starve a batch run.
type BoltFailureLog struct {
	path    string
	timeout time.Duration
}

// NewBoltFailureLog creates the database file and its bucket
func NewBoltFailureLog(path string) (*BoltFailureLog, error) {
	l := &BoltFailureLog{path: path, timeout: 5 * time.Second}
	err := l.update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(failureBucketName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating failure bucket: %w", err)
	}
	return l, nil
}

func (l *BoltFailureLog) open() (*bbolt.DB, error) {
	db, err := bbolt.Open(l.path, 0600, &bbolt.Options{Timeout: l.timeout})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}
	return db, nil
}

func (l *BoltFailureLog) update(fn func(tx *bbolt.Tx) error) error {
	db, err := l.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Update(fn)
}

// RecordFailure saves a failure keyed by content hash
func (l *BoltFailureLog) RecordFailure(failure *Failure) error {
	return l.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(failureBucketName))
		record := *failure
		if data := bucket.Get([]byte(failure.FileHash)); data != nil {
			var prev Failure
			if err := json.Unmarshal(data, &prev); err == nil {
				record.Attempts += prev.Attempts
			}
		}
		if record.Attempts == 0 {
			record.Attempts = 1
		}
		data, err := json.Marshal(&record)
		if err != nil {
			return fmt.Errorf("marshaling failure: %w", err)
		}
		return bucket.Put([]byte(failure.FileHash), data)
	})
}

// ClearFailure removes a failure entry
func (l *BoltFailureLog) ClearFailure(hash string) error {
	return l.update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(failureBucketName)).Delete([]byte(hash))
	})
}

// ListFailures returns all failures
func (l *BoltFailureLog) ListFailures() ([]*Failure, error) {
	db, err := l.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	failures := make([]*Failure, 0)
	err = db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(failureBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var f Failure
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("unmarshaling failure: %w", err)
			}
			failures = append(failures, &f)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(failures, func(i, j int) bool {
		return failures[i].LastAttempt.After(failures[j].LastAttempt)
	})
	return failures, nil
}
