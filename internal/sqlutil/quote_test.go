package sqlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"tickets", "`tickets`"},
		{"user_data", "`user_data`"},
		{"select", "`select`"},
		{"a`b`c", "`a``b``c`"},
		{"", "``"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, QuoteIdentifier(tt.input))
	}
}
