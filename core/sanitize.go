package core

import (
	"strconv"
	"strings"
)

// SafeInt parses a number out of free text, ignoring thousands separators
// and any other decoration ("Ranked #12" -> 12, "1,234,567" -> 1234567).
// Returns nil when no digits are present.
func SafeInt(s string) *int {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return nil
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return nil
	}
	return &n
}

// SafeFloat parses a float from trimmed text, returning nil on failure.
func SafeFloat(s string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}

// CleanStrings drops empty and whitespace-only values, preserving order.
func CleanStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
