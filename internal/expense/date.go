package expense

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the canonical date representation
const DateLayout = "2006-01-02"

// Date is a calendar date without a time component
type Date struct {
	time.Time
}

// NewDate builds a date in UTC
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return Date{t}, nil
}

// ParseDatePtr returns nil for empty or unparseable input
func ParseDatePtr(s string) *Date {
	if s == "" {
		return nil
	}
	d, err := ParseDate(s)
	if err != nil {
		return nil
	}
	return &d
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MonthKey returns YYYY-MM
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

// FolderName returns the YY-MM folder documents are filed into
func (d Date) FolderName() string {
	return d.Format("06-01")
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
