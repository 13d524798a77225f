// Package datefmt normalizes scraped date strings to ISO 8601 on a
// best-effort basis. Unparseable input passes through unchanged so a weird
// byline never loses information.
package datefmt

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ISO parses a date string in any common format and re-renders it as an
// ISO 8601 date (or datetime when the source carried time-of-day).
// Returns the input unchanged when parsing fails or the input is empty.
func ISO(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}

	t, err := dateparse.ParseAny(trimmed)
	if err != nil {
		return trimmed
	}

	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}
