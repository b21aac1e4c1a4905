package util

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate_ShortString(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate() should not touch short strings, got %q", got)
	}
	if got := Truncate("1234567890", 10); got != "1234567890" {
		t.Errorf("Truncate() should not cut at the exact limit, got %q", got)
	}
}

func TestTruncate_LongString(t *testing.T) {
	got := Truncate("1234567890abcdefghij", 10)
	if got != "1234567890... [truncated, 20 bytes total]" {
		t.Errorf("Truncate() = %q", got)
	}
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	in := strings.Repeat("é", 10) // 2 bytes each
	got := Truncate(in, 5)
	prefix := strings.SplitN(got, "...", 2)[0]
	if !utf8.ValidString(prefix) || prefix != "éé" {
		t.Errorf("Truncate() split a rune: %q", got)
	}
}

func TestErrorDetail(t *testing.T) {
	body := []byte(strings.Repeat("x", 1000))
	got := ErrorDetail(body)
	if !strings.HasPrefix(got, strings.Repeat("x", ErrorDetailMaxLen)+"...") {
		t.Errorf("ErrorDetail() should keep the first %d bytes, got %q", ErrorDetailMaxLen, got[:20])
	}
}
