package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// parseDocumentJSON parses the JSON response of a generative backend
func parseDocumentJSON(text string) (*DocumentData, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Models like to wrap the object in prose
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var data DocumentData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.Date = normalizeDate(data.Date)
	data.Vendor = strings.TrimSpace(data.Vendor)
	if data.Vendor == "" {
		data.Vendor = "Unknown"
	}
	data.Currency = strings.ToUpper(strings.TrimSpace(data.Currency))

	return &data, nil
}

var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"02.01.2006",
	"02/01/2006",
}

// normalizeDate returns the date as YYYY-MM-DD, or "" when it is not a date.
// An unknown date is left for review rather than guessed.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, format := range dateFormats {
		if d, err := time.Parse(format, s); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}
