package scraper

import "testing"

func TestParseMetricCount(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"42", 42},
		{"0", 0},
		{"1,234", 1234},
		{"1.2K", 1200},
		{"12K", 12000},
		{"3M", 3000000},
		{"1.5M", 1500000},
		{"2B", 2000000000},
		{"  17 ", 17},
		{"4.2k", 4200},
		{"", 0},
		{"abc", 0},
		{"-5", 0},
		{"K", 0},
	}

	for _, tt := range tests {
		if got := parseMetricCount(tt.input); got != tt.expected {
			t.Errorf("parseMetricCount(%q) = %d, want %d", tt.input, got, tt.expected)
		}
	}
}
