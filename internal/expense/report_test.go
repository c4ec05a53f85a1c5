package expense

import (
	"bytes"
	"encoding/csv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("Reports", func() {
	var records []*Expense

	BeforeEach(func() {
		hetzner := newTestExpense("aaaa00000001", NewDate(2026, time.February, 3), "8.11")
		hetzner.AmountNet = decimal.RequireFromString("7.50")
		hetzner.VATAmount = decimal.RequireFromString("0.61")
		hetzner.VATRate = decimal.RequireFromString("8.1")

		hetzner2 := newTestExpense("aaaa00000002", NewDate(2026, time.March, 3), "8.11")
		hetzner2.AmountNet = decimal.RequireFromString("7.50")
		hetzner2.VATAmount = decimal.RequireFromString("0.61")
		hetzner2.VATRate = decimal.RequireFromString("8.10")

		twilio := newTestExpense("bbbb00000001", NewDate(2026, time.January, 31), "20.00")
		twilio.Vendor = "Twilio"
		twilio.Currency = "USD"
		account := 6830
		twilio.CategoryAccount = &account
		twilio.Labels = []string{"client-a"}

		unknown := newTestExpense("cccc00000001", NewDate(2026, time.February, 9), "5.00")
		unknown.Vendor = "Unknown"
		unknown.CategoryAccount = nil
		unknown.Status = StatusNeedsReview

		records = []*Expense{hetzner, hetzner2, twilio, unknown}
	})

	Describe("Filter", func() {
		It("should match by month", func() {
			Expect(Filter{Month: "2026-02"}.Apply(records)).To(HaveLen(2))
		})

		It("should match vendors case-insensitively", func() {
			Expect(Filter{Vendor: "twil"}.Apply(records)).To(HaveLen(1))
		})

		It("should combine fields", func() {
			Expect(Filter{Currency: "eur", Status: StatusNeedsReview}.Apply(records)).To(HaveLen(1))
			Expect(Filter{Label: "client-a", Currency: "EUR"}.Apply(records)).To(BeEmpty())
		})
	})

	Describe("SummaryReport", func() {
		It("should group by currency then account", func() {
			summaries := SummaryReport(records)
			Expect(summaries).To(HaveLen(2))
			Expect(summaries[0].Currency).To(Equal("EUR"))
			Expect(summaries[1].Currency).To(Equal("USD"))

			eur := summaries[0]
			Expect(eur.Rows).To(HaveLen(2))
			Expect(eur.Rows[0].Name).To(Equal("Uncategorized"))
			Expect(eur.Rows[1].Count).To(Equal(2))
			Expect(eur.Rows[1].Gross.StringFixed(2)).To(Equal("16.22"))
			Expect(eur.Total.Gross.StringFixed(2)).To(Equal("21.22"))
			Expect(eur.Total.Count).To(Equal(3))
		})
	})

	Describe("VATReport", func() {
		It("should share a row between equal rates", func() {
			summaries := VATReport(records)
			eur := summaries[0]
			Expect(eur.Currency).To(Equal("EUR"))
			Expect(eur.Rows).To(HaveLen(2))
			Expect(eur.Rows[0].Rate.IsZero()).To(BeTrue())
			Expect(eur.Rows[1].Label).To(Equal("Normalsatz (8.1%)"))
			Expect(eur.Rows[1].VAT.StringFixed(2)).To(Equal("1.22"))
		})
	})

	Describe("WriteCSV", func() {
		It("should write rows sorted by date with fixed point amounts", func() {
			var buf bytes.Buffer
			Expect(WriteCSV(&buf, records)).To(Succeed())

			rows, err := csv.NewReader(&buf).ReadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(5))
			Expect(rows[0]).To(Equal(Columns))
			Expect(rows[1][0]).To(Equal("bbbb00000001"))
			Expect(rows[1][8]).To(Equal("20.00"))
			Expect(rows[1][16]).To(Equal("client-a"))
			Expect(rows[4][0]).To(Equal("aaaa00000002"))
		})
	})
})
