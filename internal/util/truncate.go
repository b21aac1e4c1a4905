package util

import (
	"fmt"
	"unicode/utf8"
)

// ErrorDetailMaxLen bounds upstream response bodies quoted in error messages.
const ErrorDetailMaxLen = 256

// Truncate shortens s to at most maxLen bytes without splitting a UTF-8
// sequence, noting the original length.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// ErrorDetail renders a response body for inclusion in an error message.
func ErrorDetail(b []byte) string {
	return Truncate(string(b), ErrorDetailMaxLen)
}
