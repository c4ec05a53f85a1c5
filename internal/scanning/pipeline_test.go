package scanning

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/expense-ledger/internal/expense"
	"github.com/zombor/expense-ledger/internal/parsing"
)

type mockTextExtractor struct {
	text  string
	err   error
	calls int
}

func (m *mockTextExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	m.calls++
	return m.text, m.err
}

type mockScanner struct {
	data  *DocumentData
	err   error
	calls int
	seen  string
}

func (m *mockScanner) ScanDocument(ctx context.Context, data []byte, contentType string) (*DocumentData, error) {
	m.calls++
	m.seen = contentType
	return m.data, m.err
}

func (m *mockScanner) Close() error {
	return nil
}

type fixedIDGenerator struct {
	id string
}

func (f fixedIDGenerator) Generate() string {
	return f.id
}

type fixedTimeSource struct {
	now time.Time
}

func (f fixedTimeSource) Now() time.Time {
	return f.now
}

// fixedParser accepts any text with a set confidence
type fixedParser struct {
	confidence float64
}

func (fixedParser) Name() string { return "Fixed" }

func (fixedParser) Recognize(string) bool { return true }

func (f fixedParser) Extract(string) *parsing.Draft {
	return &parsing.Draft{
		Vendor:      "Fixed",
		AmountGross: decimal.NewFromInt(10),
		Confidence:  f.confidence,
	}
}

const hetznerText = `Hetzner Online GmbH
Invoice no.: R0024567890
Invoice date: 03/02/2026
Amount due: € 8.11
VAT 8.1 % € 7.50 € 0.61 € 8.11
`

var _ = Describe("Pipeline", func() {
	var (
		pipeline *Pipeline
		text     *mockTextExtractor
		ocr      *mockTextExtractor
		scanner  *mockScanner
		opts     []Option
		path     string
		now      time.Time
		result   *expense.Expense
		err      error
	)

	BeforeEach(func() {
		dir := GinkgoT().TempDir()
		path = filepath.Join(dir, "invoice.pdf")
		Expect(os.WriteFile(path, []byte("%PDF-1.4 invoice"), 0644)).To(Succeed())

		now = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
		text = &mockTextExtractor{}
		ocr = &mockTextExtractor{}
		scanner = &mockScanner{}
		opts = []Option{
			WithOCR(ocr),
			WithScanner(scanner),
			WithIDGenerator(fixedIDGenerator{id: "a1b2c3d4e5f6"}),
			WithTimeSource(fixedTimeSource{now: now}),
		}
	})

	JustBeforeEach(func() {
		pipeline = NewPipeline(text, opts...)
		result, err = pipeline.Process(context.Background(), path)
	})

	When("the document has a text layer", func() {
		BeforeEach(func() {
			text.text = hetznerText
		})

		It("should parse it without trying later tiers", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result).NotTo(BeNil())
			Expect(ocr.calls).To(Equal(0))
			Expect(scanner.calls).To(Equal(0))
		})

		It("should build a processed record", func() {
			Expect(result.ID).To(Equal("a1b2c3d4e5f6"))
			Expect(result.Vendor).To(Equal("Hetzner"))
			Expect(result.Currency).To(Equal("EUR"))
			Expect(result.AmountGross.StringFixed(2)).To(Equal("8.11"))
			Expect(result.Date.String()).To(Equal("2026-02-03"))
			Expect(result.ExtractionMethod).To(Equal(expense.MethodPDFText))
			Expect(result.Status).To(Equal(expense.StatusProcessed))
			Expect(result.ProcessedAt).To(Equal(now))
		})

		It("should hash the document bytes", func() {
			Expect(result.FileHash).To(Equal(expense.HashBytes([]byte("%PDF-1.4 invoice"))))
			Expect(filepath.IsAbs(result.FilePath)).To(BeTrue())
		})
	})

	When("no parser can use the text", func() {
		BeforeEach(func() {
			text.text = "Meeting notes without any amount"
		})

		It("should fail without falling through to other tiers", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeNil())
			Expect(ocr.calls).To(Equal(0))
			Expect(scanner.calls).To(Equal(0))
		})
	})

	When("only OCR finds text", func() {
		BeforeEach(func() {
			text.err = ErrNoText
			ocr.text = hetznerText
		})

		It("should label the record as OCR", func() {
			Expect(result).NotTo(BeNil())
			Expect(result.ExtractionMethod).To(Equal(expense.MethodOCR))
			Expect(scanner.calls).To(Equal(0))
		})
	})

	When("the text is only whitespace", func() {
		BeforeEach(func() {
			text.text = " \n\t "
			ocr.text = hetznerText
		})

		It("should treat it as empty", func() {
			Expect(ocr.calls).To(Equal(1))
			Expect(result.ExtractionMethod).To(Equal(expense.MethodOCR))
		})
	})

	When("OCR fails and the scanner succeeds", func() {
		BeforeEach(func() {
			text.err = ErrNoText
			ocr.err = errors.New("tesseract crashed")
			account := 6830
			scanner.data = &DocumentData{
				Vendor:          "Swisscom",
				Date:            "2026-01-31",
				AmountGross:     decimal.RequireFromString("64.85"),
				VATAmount:       decimal.RequireFromString("4.86"),
				VATRate:         decimal.RequireFromString("8.1"),
				Currency:        "CHF",
				CategoryAccount: &account,
			}
		})

		It("should swallow the OCR error", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(scanner.calls).To(Equal(1))
			Expect(scanner.seen).To(Equal("application/pdf"))
		})

		It("should always need review", func() {
			Expect(result.ExtractionMethod).To(Equal(expense.MethodAI))
			Expect(result.ExtractionConfidence).To(Equal(AIConfidence))
			Expect(result.Status).To(Equal(expense.StatusNeedsReview))
		})

		It("should derive the net amount and category", func() {
			Expect(result.AmountNet.StringFixed(2)).To(Equal("59.99"))
			Expect(*result.CategoryAccount).To(Equal(6830))
			Expect(result.CategoryName).NotTo(BeEmpty())
		})
	})

	When("the scanner returns no amount", func() {
		BeforeEach(func() {
			text.err = ErrNoText
			ocr.err = ErrNoText
			scanner.data = &DocumentData{Vendor: "Nobody"}
		})

		It("should fail", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeNil())
		})
	})

	When("the scanner fails", func() {
		BeforeEach(func() {
			text.err = ErrNoText
			ocr.err = ErrNoText
			scanner.err = errors.New("quota exceeded")
		})

		It("should fail without an error", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeNil())
		})
	})

	When("no scanner is configured", func() {
		BeforeEach(func() {
			text.err = ErrNoText
			opts = []Option{WithOCR(ocr), WithTimeSource(fixedTimeSource{now: now})}
		})

		It("should fail", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeNil())
		})
	})

	When("the document does not exist", func() {
		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "missing.pdf")
		})

		It("should return an error", func() {
			Expect(err).To(HaveOccurred())
			Expect(result).To(BeNil())
			Expect(text.calls).To(Equal(0))
		})
	})

	When("a parser reports confidence exactly at the threshold", func() {
		BeforeEach(func() {
			text.text = "anything"
			opts = append(opts, WithParsers([]parsing.Parser{fixedParser{confidence: 0.7}}))
		})

		It("should be processed", func() {
			Expect(result.Status).To(Equal(expense.StatusProcessed))
		})

		It("should use the default currency", func() {
			Expect(result.Currency).To(Equal("CHF"))
		})
	})

	When("a parser reports confidence just below the threshold", func() {
		BeforeEach(func() {
			text.text = "anything"
			opts = append(opts,
				WithParsers([]parsing.Parser{fixedParser{confidence: 0.699}}),
				WithDefaultCurrency("EUR"),
			)
		})

		It("should need review", func() {
			Expect(result.Status).To(Equal(expense.StatusNeedsReview))
			Expect(result.Currency).To(Equal("EUR"))
		})
	})

	When("only the generic parser matches", func() {
		BeforeEach(func() {
			text.text = "Thank you\nTotal: $12.00\n"
		})

		It("should need review", func() {
			Expect(result.Vendor).To(Equal("Unknown"))
			Expect(result.Status).To(Equal(expense.StatusNeedsReview))
		})
	})
})
