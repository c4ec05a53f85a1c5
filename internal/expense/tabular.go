package expense

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Columns of the flat export, in order
var Columns = []string{
	"id", "date", "vendor", "vendor_country", "description",
	"invoice_number", "receipt_number", "period",
	"amount_gross", "amount_net", "currency",
	"vat_rate", "vat_amount", "vat_number",
	"category_account", "category_name",
	"labels", "notes", "file_path", "status",
}

const sheetName = "Expenses"

// MarshalRow flattens an expense into export columns
func MarshalRow(e *Expense) []string {
	var date, account string
	if e.Date != nil {
		date = e.Date.String()
	}
	if e.CategoryAccount != nil {
		account = strconv.Itoa(*e.CategoryAccount)
	}
	return []string{
		e.ID,
		date,
		e.Vendor,
		e.VendorCountry,
		e.Description,
		e.InvoiceNumber,
		e.ReceiptNumber,
		e.Period,
		e.AmountGross.StringFixed(2),
		e.AmountNet.StringFixed(2),
		e.Currency,
		e.VATRate.String(),
		e.VATAmount.StringFixed(2),
		e.VATNumber,
		account,
		e.CategoryName,
		strings.Join(e.Labels, "; "),
		e.Notes,
		e.FilePath,
		string(e.Status),
	}
}

// SortByDate orders records by date (undated first), then by id
func SortByDate(records []*Expense) []*Expense {
	sorted := make([]*Expense, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := dateKey(sorted[i]), dateKey(sorted[j])
		if di != dj {
			return di < dj
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func dateKey(e *Expense) string {
	if e.Date == nil {
		return ""
	}
	return e.Date.String()
}

// WriteCSV writes records sorted by date, including the header row
func WriteCSV(w io.Writer, records []*Expense) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, e := range SortByDate(records) {
		if err := cw.Write(MarshalRow(e)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes records sorted by date as a single sheet workbook
func WriteXLSX(w io.Writer, records []*Expense) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("removing default sheet: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, e := range SortByDate(records) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := MarshalRow(e)
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		// Amounts as numbers so spreadsheet sums work
		values[8], _ = e.AmountGross.Round(2).Float64()
		values[9], _ = e.AmountNet.Round(2).Float64()
		values[12], _ = e.VATAmount.Round(2).Float64()
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
