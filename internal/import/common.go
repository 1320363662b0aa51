package import_pkg

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrNoRecords is returned when an input holds a header but no usable rows.
var ErrNoRecords = errors.New("no records found")

// parseFloat safely converts string to float64 pointer
func parseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// parseBool accepts the spellings seen in registry exports. Anything else,
// including an empty value, is false.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1", "yes", "y":
		return true
	}
	return false
}

// parseDate safely converts string to time.Time pointer
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	// Try different timestamp formats
	formats := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999",
		"2006-01-02 15:04:05.999999-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"02/01/2006",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			t = t.UTC()
			return &t
		}
	}

	return nil
}

// parseString returns nil for blank values.
func parseString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
