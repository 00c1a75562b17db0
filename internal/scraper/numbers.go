package scraper

import (
	"strconv"
	"strings"
)

// parseMetricCount converts a human-formatted engagement count into an
// integer: "1.2K" -> 1200, "3M" -> 3000000, "2B" -> 2000000000, "42" -> 42.
// Comma grouping is tolerated. Anything unparseable yields 0.
func parseMetricCount(s string) int {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		multiplier = 1_000
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		multiplier = 1_000_000
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "B"), strings.HasSuffix(s, "b"):
		multiplier = 1_000_000_000
		s = s[:len(s)-1]
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || value < 0 {
		return 0
	}

	return int(value * multiplier)
}
