package expense

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("LocalStore", func() {
	var (
		dir   string
		store *LocalStore
		feb   *Expense
		mar   *Expense
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		var err error
		store, err = NewLocalStore(dir)
		Expect(err).NotTo(HaveOccurred())

		feb = newTestExpense("aaaa11112222", NewDate(2026, time.February, 3), "8.11")
		mar = newTestExpense("bbbb33334444", NewDate(2026, time.March, 1), "20.00")
	})

	readFile := func(name string) string {
		data, err := os.ReadFile(filepath.Join(dir, name))
		Expect(err).NotTo(HaveOccurred())
		return string(data)
	}

	Describe("LoadAll", func() {
		It("should return an empty collection for a new store", func() {
			records, err := store.LoadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})

		It("should treat a corrupt ledger as empty", func() {
			Expect(os.WriteFile(filepath.Join(dir, "ledger.json"), []byte("{not json"), 0644)).To(Succeed())
			records, err := store.LoadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})
	})

	Describe("Save", func() {
		It("should persist the record with its fields", func() {
			Expect(store.Save(feb)).To(Succeed())

			records, err := store.LoadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].ID).To(Equal(feb.ID))
			Expect(records[0].AmountGross.StringFixed(2)).To(Equal("8.11"))
			Expect(records[0].Date.String()).To(Equal("2026-02-03"))
		})

		It("should replace a record with the same id", func() {
			Expect(store.Save(feb)).To(Succeed())
			feb.AddLabel("client-a")
			feb.AmountGross = decimal.RequireFromString("9.00")
			Expect(store.Save(feb)).To(Succeed())

			records, err := store.LoadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Labels).To(Equal([]string{"client-a"}))
			Expect(records[0].AmountGross.StringFixed(2)).To(Equal("9.00"))
		})

		It("should reject a record without a positive gross amount", func() {
			feb.AmountGross = decimal.Zero
			Expect(store.Save(feb)).To(MatchError(ErrNoAmount))
			_, err := os.Stat(filepath.Join(dir, "ledger.json"))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})

		It("should write monthly partitions and CSV mirrors", func() {
			Expect(store.Save(feb)).To(Succeed())
			Expect(store.Save(mar)).To(Succeed())

			Expect(readFile("2026-02.json")).To(ContainSubstring(feb.ID))
			Expect(readFile("2026-02.json")).NotTo(ContainSubstring(mar.ID))
			Expect(readFile("2026-03.json")).To(ContainSubstring(mar.ID))
			Expect(readFile("2026-03.csv")).To(ContainSubstring(mar.ID))

			lines := strings.Split(strings.TrimSpace(readFile("ledger.csv")), "\n")
			Expect(lines).To(HaveLen(3))
			Expect(lines[0]).To(HavePrefix("id,date,vendor"))
			Expect(lines[1]).To(HavePrefix(feb.ID))
			Expect(lines[2]).To(HavePrefix(mar.ID))
		})

		It("should leave undated records out of partitions", func() {
			feb.Date = nil
			Expect(store.Save(feb)).To(Succeed())

			Expect(readFile("ledger.json")).To(ContainSubstring(feb.ID))
			matches, err := filepath.Glob(filepath.Join(dir, "20*.json"))
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(BeEmpty())
		})

		It("should move a record to its new month when the date changes", func() {
			Expect(store.Save(feb)).To(Succeed())
			d := NewDate(2026, time.March, 15)
			feb.Date = &d
			Expect(store.Save(feb)).To(Succeed())

			_, err := os.Stat(filepath.Join(dir, "2026-02.json"))
			Expect(os.IsNotExist(err)).To(BeTrue())
			Expect(readFile("2026-03.json")).To(ContainSubstring(feb.ID))
		})
	})

	Describe("FindByHash", func() {
		BeforeEach(func() {
			Expect(store.SaveAll([]*Expense{feb, mar})).To(Succeed())
		})

		It("should find the record with the content hash", func() {
			found, err := store.FindByHash(mar.FileHash)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal(mar.ID))
		})

		It("should return nil for an unknown hash", func() {
			found, err := store.FindByHash("nope")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeNil())
		})
	})

	Describe("FindByID", func() {
		BeforeEach(func() {
			Expect(store.SaveAll([]*Expense{feb, mar})).To(Succeed())
		})

		It("should match a short prefix", func() {
			found, err := store.FindByID("bbbb")
			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal(mar.ID))
		})

		It("should not match everything with an empty prefix", func() {
			found, err := store.FindByID("")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeNil())
		})
	})

	Describe("Delete", func() {
		BeforeEach(func() {
			Expect(store.SaveAll([]*Expense{feb, mar})).To(Succeed())
		})

		It("should remove the record from every view", func() {
			removed, err := store.Delete("aaaa")
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeTrue())

			Expect(readFile("ledger.json")).NotTo(ContainSubstring(feb.ID))
			Expect(readFile("ledger.csv")).NotTo(ContainSubstring(feb.ID))
			_, err = os.Stat(filepath.Join(dir, "2026-02.json"))
			Expect(os.IsNotExist(err)).To(BeTrue())
			_, err = os.Stat(filepath.Join(dir, "2026-02.csv"))
			Expect(os.IsNotExist(err)).To(BeTrue())
			Expect(readFile("2026-03.json")).To(ContainSubstring(mar.ID))
		})

		It("should report when nothing matched", func() {
			removed, err := store.Delete("zzzz")
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeFalse())
		})

		It("should refuse an empty prefix", func() {
			removed, err := store.Delete("")
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeFalse())
			records, _ := store.LoadAll()
			Expect(records).To(HaveLen(2))
		})
	})

	Describe("Rebuild", func() {
		It("should reproduce the same views byte for byte", func() {
			Expect(store.SaveAll([]*Expense{feb, mar})).To(Succeed())
			before := map[string]string{}
			for _, name := range []string{"ledger.csv", "2026-02.json", "2026-02.csv", "2026-03.json", "2026-03.csv"} {
				before[name] = readFile(name)
			}

			Expect(os.Remove(filepath.Join(dir, "2026-02.json"))).To(Succeed())
			Expect(store.Rebuild()).To(Succeed())

			for name, content := range before {
				Expect(readFile(name)).To(Equal(content), name)
			}
		})
	})

	Describe("concurrent stores on the same directory", func() {
		It("should see each other's completed saves", func() {
			other, err := NewLocalStore(dir)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Save(feb)).To(Succeed())
			Expect(other.Save(mar)).To(Succeed())

			records, err := store.LoadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
		})
	})
})
