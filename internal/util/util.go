// Package util provides helpers for cleaning up arguments sent by the game host.
package util

import (
	"fmt"
	"strconv"
	"strings"
)

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// UnwrapArg undoes the host's string quoting so the payload can be decoded.
func UnwrapArg(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return FixEscapeQuotes(s[1 : len(s)-1])
	}
	return s
}

// ParseFloatArg parses a numeric host argument, which may be quoted.
func ParseFloatArg(s string) (float64, error) {
	v, err := strconv.ParseFloat(UnwrapArg(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return v, nil
}
