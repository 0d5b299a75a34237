// Package utils tests
package utils

import (
	"testing"
)

func TestTrimEmpty(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "removes empty strings",
			input:    []string{"a", "", "b", "", "c"},
			expected: []string{"a", "b", "c"},
		},
		{
			name:     "removes whitespace-only strings",
			input:    []string{"a", "  ", "b", "\t", "c"},
			expected: []string{"a", "b", "c"},
		},
		{
			name:     "handles empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "handles all empty strings",
			input:    []string{"", "", ""},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TrimEmpty(tt.input)
			if len(result) != len(tt.expected) {
				t.Errorf("TrimEmpty() = %v, want %v", result, tt.expected)
				return
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("TrimEmpty()[%d] = %q, want %q", i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestSplitTrim(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		delimiter string
		expected  []string
	}{
		{
			name:      "basic split and trim",
			input:     "a, b, c",
			delimiter: ",",
			expected:  []string{"a", "b", "c"},
		},
		{
			name:      "handles extra spaces",
			input:     "  a  ,  b  ,  c  ",
			delimiter: ",",
			expected:  []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SplitTrim(tt.input, tt.delimiter)
			if len(result) != len(tt.expected) {
				t.Errorf("SplitTrim() length = %d, want %d", len(result), len(tt.expected))
			}
		})
	}
}
