package expense

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockExtractor returns a copy of a template record for every document
type mockExtractor struct {
	template *Expense
	err      error
	calls    []string
	nextID   int
}

func (m *mockExtractor) Process(ctx context.Context, path string) (*Expense, error) {
	m.calls = append(m.calls, path)
	if m.err != nil {
		return nil, m.err
	}
	if m.template == nil {
		return nil, nil
	}
	e := *m.template
	m.nextID++
	e.ID = e.ID[:11] + string(rune('0'+m.nextID))
	e.FilePath = path
	hash, err := FileHash(path)
	if err != nil {
		return nil, err
	}
	e.FileHash = hash
	return &e, nil
}

// mockFailureLog is a mock implementation of FailureLog
type mockFailureLog struct {
	failures map[string]*Failure
	cleared  []string
}

func newMockFailureLog() *mockFailureLog {
	return &mockFailureLog{failures: make(map[string]*Failure)}
}

func (m *mockFailureLog) RecordFailure(f *Failure) error {
	m.failures[f.FileHash] = f
	return nil
}

func (m *mockFailureLog) ClearFailure(hash string) error {
	m.cleared = append(m.cleared, hash)
	delete(m.failures, hash)
	return nil
}

func (m *mockFailureLog) ListFailures() ([]*Failure, error) {
	out := make([]*Failure, 0, len(m.failures))
	for _, f := range m.failures {
		out = append(out, f)
	}
	return out, nil
}

type mockTimeSource struct {
	now time.Time
}

func (m mockTimeSource) Now() time.Time {
	return m.now
}

var _ = Describe("Service", func() {
	var (
		inbox     string
		store     *LocalStore
		extractor *mockExtractor
		failures  *mockFailureLog
		service   *Service
		now       time.Time
	)

	writeDoc := func(name, content string) string {
		path := filepath.Join(inbox, name)
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		inbox = GinkgoT().TempDir()
		var err error
		store, err = NewLocalStore(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		extractor = &mockExtractor{
			template: newTestExpense("abcdef000000", NewDate(2026, time.February, 3), "8.11"),
		}
		failures = newMockFailureLog()
		now = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
		service = NewServiceWithDeps(store, extractor, failures, mockTimeSource{now: now})
	})

	Describe("ProcessFile", func() {
		var (
			path    string
			opts    ProcessOptions
			outcome Outcome
			err     error
		)

		BeforeEach(func() {
			path = writeDoc("invoice.pdf", "%PDF hetzner")
			opts = ProcessOptions{BaseDir: inbox}
		})

		JustBeforeEach(func() {
			outcome, err = service.ProcessFile(context.Background(), path, opts)
		})

		When("the document is new", func() {
			It("should save the record", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Result).To(Equal(ResultProcessed))
				records, _ := store.LoadAll()
				Expect(records).To(HaveLen(1))
			})

			It("should file the document into its month folder", func() {
				expected := filepath.Join(inbox, "26-02", "invoice.pdf")
				Expect(outcome.Expense.FilePath).To(Equal(expected))
				Expect(expected).To(BeAnExistingFile())
				Expect(path).NotTo(BeAnExistingFile())
			})

			It("should clear any earlier failure", func() {
				Expect(failures.cleared).To(HaveLen(1))
			})
		})

		When("the record cannot be saved", func() {
			BeforeEach(func() {
				extractor.template = newTestExpense("abcdef000000", NewDate(2026, time.February, 3), "0")
			})

			It("should leave the document where it was", func() {
				Expect(err).To(MatchError(ErrNoAmount))
				Expect(path).To(BeAnExistingFile())
				Expect(filepath.Join(inbox, "26-02", "invoice.pdf")).NotTo(BeAnExistingFile())
			})
		})

		When("filing is disabled", func() {
			BeforeEach(func() {
				opts.NoFile = true
			})

			It("should leave the document in place", func() {
				Expect(outcome.Expense.FilePath).To(Equal(path))
				Expect(path).To(BeAnExistingFile())
			})
		})

		When("the month folder already holds a file with the same name", func() {
			BeforeEach(func() {
				Expect(os.MkdirAll(filepath.Join(inbox, "26-02"), 0755)).To(Succeed())
				Expect(os.WriteFile(filepath.Join(inbox, "26-02", "invoice.pdf"), []byte("other"), 0644)).To(Succeed())
			})

			It("should add a numeric suffix", func() {
				Expect(outcome.Expense.FilePath).To(Equal(filepath.Join(inbox, "26-02", "invoice_1.pdf")))
			})
		})

		When("the same bytes were already processed", func() {
			BeforeEach(func() {
				_, err := service.ProcessFile(context.Background(), path, ProcessOptions{NoFile: true})
				Expect(err).NotTo(HaveOccurred())
				extractor.calls = nil
			})

			It("should skip without extracting", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Result).To(Equal(ResultSkipped))
				Expect(extractor.calls).To(BeEmpty())
			})

			When("forced", func() {
				var original *Expense

				BeforeEach(func() {
					records, _ := store.LoadAll()
					original = records[0]
					_, err := service.AddLabels(original.ID, "client-a")
					Expect(err).NotTo(HaveOccurred())
					opts.Force = true
					opts.NoFile = true
				})

				It("should re-extract and keep the id and annotations", func() {
					Expect(outcome.Result).To(Equal(ResultProcessed))
					Expect(extractor.calls).To(HaveLen(1))
					records, _ := store.LoadAll()
					Expect(records).To(HaveLen(1))
					Expect(records[0].ID).To(Equal(original.ID))
					Expect(records[0].Labels).To(Equal([]string{"client-a"}))
				})
			})
		})

		When("the document cannot be extracted", func() {
			BeforeEach(func() {
				extractor.template = nil
			})

			It("should record a failure and leave the file alone", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Result).To(Equal(ResultFailed))
				Expect(outcome.Reason).To(Equal("could not extract"))
				Expect(path).To(BeAnExistingFile())

				listed, _ := service.Failures()
				Expect(listed).To(HaveLen(1))
				Expect(listed[0].FilePath).To(Equal(path))
				Expect(listed[0].LastAttempt).To(Equal(now))
			})
		})

		When("the extractor returns an error", func() {
			BeforeEach(func() {
				extractor.err = errors.New("disk on fire")
			})

			It("should return it", func() {
				Expect(err).To(MatchError(ContainSubstring("disk on fire")))
			})
		})
	})

	Describe("ProcessDir", func() {
		It("should keep going after a failing document", func() {
			writeDoc("a.pdf", "first")
			writeDoc("b.pdf", "second")
			writeDoc("notes.txt", "ignored")
			extractor.err = errors.New("boom")

			outcomes, err := service.ProcessDir(context.Background(), inbox, ProcessOptions{NoFile: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(outcomes).To(HaveLen(2))
			for _, o := range outcomes {
				Expect(o.Result).To(Equal(ResultFailed))
			}
		})

		It("should process every supported document", func() {
			writeDoc("a.pdf", "first")
			writeDoc("b.png", "second")

			outcomes, err := service.ProcessDir(context.Background(), inbox, ProcessOptions{NoFile: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(outcomes).To(HaveLen(2))
			records, _ := store.LoadAll()
			Expect(records).To(HaveLen(2))
		})

		It("should descend into sub folders when recursive", func() {
			Expect(os.Mkdir(filepath.Join(inbox, "old"), 0755)).To(Succeed())
			writeDoc(filepath.Join("old", "c.pdf"), "third")

			outcomes, err := service.ProcessDir(context.Background(), inbox, ProcessOptions{NoFile: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(outcomes).To(BeEmpty())

			outcomes, err = service.ProcessDir(context.Background(), inbox, ProcessOptions{NoFile: true, Recursive: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(outcomes).To(HaveLen(1))
		})
	})

	Describe("record updates", func() {
		var saved *Expense

		BeforeEach(func() {
			saved = newTestExpense("feedbeef0001", NewDate(2026, time.January, 31), "20.00")
			Expect(store.Save(saved)).To(Succeed())
		})

		It("should add labels by id prefix", func() {
			updated, err := service.AddLabels("feed", "client-a", "client-a", "travel")
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Labels).To(Equal([]string{"client-a", "travel"}))
		})

		It("should reject an empty note", func() {
			_, err := service.AddNote("feed", "   ")
			Expect(err).To(HaveOccurred())
		})

		It("should append notes", func() {
			_, err := service.AddNote("feed", "paid by card")
			Expect(err).NotTo(HaveOccurred())
			found, _ := service.Get("feed")
			Expect(found.Notes).To(Equal("paid by card"))
		})

		It("should attach existing context files by absolute path", func() {
			ctxFile := writeDoc("email.txt", "context")
			updated, err := service.AttachContext("feed", ctxFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.ContextFiles).To(Equal([]string{ctxFile}))

			_, err = service.AttachContext("feed", filepath.Join(inbox, "missing.txt"))
			Expect(err).To(HaveOccurred())
		})

		It("should categorize with a catalog account", func() {
			updated, err := service.Categorize("feed", 6830)
			Expect(err).NotTo(HaveOccurred())
			Expect(*updated.CategoryAccount).To(Equal(6830))
			Expect(updated.CategoryName).To(Equal("Telekommunikation"))
		})

		It("should reject unknown accounts", func() {
			_, err := service.Categorize("feed", 9999)
			Expect(err).To(MatchError(ErrUnknownAccount))
		})

		It("should mark a record verified", func() {
			updated, err := service.Verify("feed")
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Status).To(Equal(StatusVerified))
		})

		It("should return ErrNotFound for unknown ids", func() {
			_, err := service.AddLabels("0000", "x")
			Expect(err).To(MatchError(ErrNotFound))
			Expect(service.Delete("0000")).To(MatchError(ErrNotFound))
		})

		It("should delete by prefix", func() {
			Expect(service.Delete("feed")).To(Succeed())
			_, err := service.Get("feed")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("Export", func() {
		BeforeEach(func() {
			Expect(store.Save(newTestExpense("aaaa00000001", NewDate(2026, time.January, 5), "10.00"))).To(Succeed())
			Expect(store.Save(newTestExpense("bbbb00000002", NewDate(2026, time.February, 5), "20.00"))).To(Succeed())
		})

		It("should export the selected month as CSV", func() {
			var buf bytes.Buffer
			n, err := service.Export(&buf, Filter{Month: "2026-02"}, FormatCSV)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
			Expect(buf.String()).To(ContainSubstring("bbbb00000002"))
			Expect(buf.String()).NotTo(ContainSubstring("aaaa00000001"))
		})

		It("should export XLSX", func() {
			var buf bytes.Buffer
			n, err := service.Export(&buf, Filter{}, FormatXLSX)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
			// xlsx is a zip archive
			Expect(buf.Bytes()[:2]).To(Equal([]byte("PK")))
		})

		It("should reject unknown formats", func() {
			_, err := service.Export(&bytes.Buffer{}, Filter{}, Format("pdf"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Ingest", func() {
		var upload string

		BeforeEach(func() {
			upload = GinkgoT().TempDir()
		})

		It("should write the upload into the inbox and file it", func() {
			outcome, err := service.Ingest(context.Background(), "invoice.pdf", []byte("%PDF upload"), ProcessOptions{BaseDir: upload})
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Result).To(Equal(ResultProcessed))
			Expect(filepath.Join(upload, "26-02", "invoice.pdf")).To(BeAnExistingFile())
		})

		It("should answer known bytes without writing them again", func() {
			_, err := service.Ingest(context.Background(), "invoice.pdf", []byte("%PDF upload"), ProcessOptions{BaseDir: upload, NoFile: true})
			Expect(err).NotTo(HaveOccurred())
			extractor.calls = nil

			outcome, err := service.Ingest(context.Background(), "copy.pdf", []byte("%PDF upload"), ProcessOptions{BaseDir: upload})
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Result).To(Equal(ResultSkipped))
			Expect(outcome.Expense).NotTo(BeNil())
			Expect(extractor.calls).To(BeEmpty())
			Expect(filepath.Join(upload, "copy.pdf")).NotTo(BeAnExistingFile())
		})

		It("should reject unsupported types", func() {
			_, err := service.Ingest(context.Background(), "notes.txt", []byte("hi"), ProcessOptions{BaseDir: upload})
			Expect(err).To(HaveOccurred())
		})
	})
})
