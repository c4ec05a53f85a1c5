package expense

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltFailureLog", func() {
	var (
		log *BoltFailureLog
		t0  time.Time
	)

	BeforeEach(func() {
		var err error
		log, err = NewBoltFailureLog(filepath.Join(GinkgoT().TempDir(), "failures.db"))
		Expect(err).NotTo(HaveOccurred())
		t0 = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	})

	It("should start empty", func() {
		failures, err := log.ListFailures()
		Expect(err).NotTo(HaveOccurred())
		Expect(failures).To(BeEmpty())
	})

	It("should count repeated attempts on the same document", func() {
		Expect(log.RecordFailure(&Failure{FileHash: "h1", FilePath: "/in/a.pdf", Reason: "could not extract", LastAttempt: t0})).To(Succeed())
		Expect(log.RecordFailure(&Failure{FileHash: "h1", FilePath: "/in/a.pdf", Reason: "could not extract", LastAttempt: t0.Add(time.Hour)})).To(Succeed())

		failures, err := log.ListFailures()
		Expect(err).NotTo(HaveOccurred())
		Expect(failures).To(HaveLen(1))
		Expect(failures[0].Attempts).To(Equal(2))
		Expect(failures[0].LastAttempt.Equal(t0.Add(time.Hour))).To(BeTrue())
	})

	It("should list the newest failures first", func() {
		Expect(log.RecordFailure(&Failure{FileHash: "old", LastAttempt: t0})).To(Succeed())
		Expect(log.RecordFailure(&Failure{FileHash: "new", LastAttempt: t0.Add(time.Hour)})).To(Succeed())

		failures, err := log.ListFailures()
		Expect(err).NotTo(HaveOccurred())
		Expect(failures[0].FileHash).To(Equal("new"))
		Expect(failures[1].FileHash).To(Equal("old"))
	})

	It("should forget cleared documents", func() {
		Expect(log.RecordFailure(&Failure{FileHash: "h1", LastAttempt: t0})).To(Succeed())
		Expect(log.ClearFailure("h1")).To(Succeed())
		Expect(log.ClearFailure("never-recorded")).To(Succeed())

		failures, err := log.ListFailures()
		Expect(err).NotTo(HaveOccurred())
		Expect(failures).To(BeEmpty())
	})
})
