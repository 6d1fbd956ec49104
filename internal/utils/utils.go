package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ShortenString cuts s to l bytes and appends "..." if it was longer.
// Meant for log output only.
func ShortenString(s string, l int) string {
	if len(s) > l && l != 0 {
		return fmt.Sprintf("%s...", s[:l])
	}
	return s
}

// TruncateRunes returns the first n runes of s. Unlike ShortenString no
// ellipsis is appended since the result has to fit a hard length limit.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for j := range s {
		if i == n {
			return s[:j]
		}
		i++
	}
	return s
}

// NormalizeSpace collapses all runs of whitespace into single spaces and trims s.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RandomString returns base followed by a dash and 16 random hex characters.
func RandomString(base string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", base, hex.EncodeToString(b)), nil
}
