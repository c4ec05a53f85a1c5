package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/zombor/expense-ledger/internal/expense"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dateString(d *expense.Date) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

func renderOutcomes(w io.Writer, outcomes []expense.Outcome) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "RESULT\tFILE\tID\tVENDOR\tAMOUNT\tSTATUS")
	counts := map[expense.Result]int{}
	for _, o := range outcomes {
		counts[o.Result]++
		if o.Expense == nil {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t%s\n", o.Result, o.Path, o.Reason)
			continue
		}
		e := o.Expense
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s %s\t%s\n",
			o.Result, o.Path, shortID(e.ID), e.Vendor, e.AmountGross.StringFixed(2), e.Currency, e.Status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d processed, %d skipped, %d failed\n",
		counts[expense.ResultProcessed], counts[expense.ResultSkipped], counts[expense.ResultFailed])
	return err
}

func renderList(w io.Writer, records []*expense.Expense) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No expenses found")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tDATE\tVENDOR\tGROSS\tVAT\tACCOUNT\tSTATUS\tLABELS")
	for _, e := range records {
		account := "-"
		if e.CategoryAccount != nil {
			account = fmt.Sprintf("%d", *e.CategoryAccount)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s\t%s\t%s\t%s\n",
			shortID(e.ID), dateString(e.Date), e.Vendor, e.AmountGross.StringFixed(2), e.Currency,
			e.VATAmount.StringFixed(2), account, e.Status, strings.Join(e.Labels, ","))
	}
	return tw.Flush()
}

func renderExpense(w io.Writer, e *expense.Expense) error {
	tw := newTable(w)
	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", name, value)
		}
	}
	field("ID", e.ID)
	field("File", e.FilePath)
	field("Hash", e.FileHash)
	field("Vendor", e.Vendor)
	field("Country", e.VendorCountry)
	field("Invoice", e.InvoiceNumber)
	field("Receipt", e.ReceiptNumber)
	field("Date", dateString(e.Date))
	field("Period", e.Period)
	field("Description", e.Description)
	field("Gross", e.AmountGross.StringFixed(2)+" "+e.Currency)
	field("Net", e.AmountNet.StringFixed(2)+" "+e.Currency)
	field("VAT", fmt.Sprintf("%s (%s%%, %s)", e.VATAmount.StringFixed(2), e.VATRate.String(), expense.RateLabel(e.VATRate)))
	field("VAT number", e.VATNumber)
	if e.CategoryAccount != nil {
		field("Account", fmt.Sprintf("%d %s", *e.CategoryAccount, e.CategoryName))
	}
	field("Labels", strings.Join(e.Labels, ", "))
	field("Context", strings.Join(e.ContextFiles, ", "))
	field("Method", fmt.Sprintf("%s (confidence %.2f)", e.ExtractionMethod, e.ExtractionConfidence))
	field("Processed", e.ProcessedAt.Format("2006-01-02 15:04:05"))
	field("Status", string(e.Status))
	if err := tw.Flush(); err != nil {
		return err
	}
	if e.Notes != "" {
		_, err := fmt.Fprintf(w, "\nNotes:\n%s\n", e.Notes)
		return err
	}
	return nil
}

func renderAccounts(w io.Writer, accounts []expense.Account) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ACCOUNT\tNAME\tDESCRIPTION")
	for _, a := range accounts {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", a.Number, a.Name, a.Description)
	}
	return tw.Flush()
}

func renderTotals(tw io.Writer, label string, t expense.Totals) {
	fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", label, t.Count, t.Net.StringFixed(2), t.VAT.StringFixed(2), t.Gross.StringFixed(2))
}

func renderSummary(w io.Writer, summaries []expense.CategorySummary) error {
	if len(summaries) == 0 {
		_, err := fmt.Fprintln(w, "No expenses found")
		return err
	}
	for i, s := range summaries {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s\n", s.Currency)
		tw := newTable(w)
		fmt.Fprintln(tw, "ACCOUNT\tCOUNT\tNET\tVAT\tGROSS")
		for _, row := range s.Rows {
			label := "uncategorized"
			if row.Account != nil {
				label = fmt.Sprintf("%d %s", *row.Account, row.Name)
			}
			renderTotals(tw, label, row.Totals)
		}
		renderTotals(tw, "TOTAL", s.Total)
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func renderVAT(w io.Writer, summaries []expense.RateSummary) error {
	if len(summaries) == 0 {
		_, err := fmt.Fprintln(w, "No expenses found")
		return err
	}
	for i, s := range summaries {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s\n", s.Currency)
		tw := newTable(w)
		fmt.Fprintln(tw, "RATE\tCOUNT\tNET\tVAT\tGROSS")
		for _, row := range s.Rows {
			renderTotals(tw, fmt.Sprintf("%s%% %s", row.Rate.String(), row.Label), row.Totals)
		}
		renderTotals(tw, "TOTAL", s.Total)
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func renderFailures(w io.Writer, failures []*expense.Failure) error {
	if len(failures) == 0 {
		_, err := fmt.Fprintln(w, "No failed documents")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "FILE\tREASON\tATTEMPTS\tLAST ATTEMPT")
	for _, f := range failures {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", f.FilePath, f.Reason, f.Attempts, f.LastAttempt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
