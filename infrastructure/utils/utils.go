// Package utils provides common utility functions shared across all service layer services
package utils

import (
	"strings"
)

// TrimEmpty removes all whitespace-only strings from a slice
func TrimEmpty(strs []string) []string {
	var result []string
	for _, s := range strs {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}

// SplitTrim splits a string by delimiter and trims each part
func SplitTrim(s, delimiter string) []string {
	parts := strings.Split(s, delimiter)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
