package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	controlChars   = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	receiptPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/\-]*$`)
)

// MaxReceiptNumberLength bounds receipt numbers accepted at settlement
const MaxReceiptNumberLength = 64

// SanitizeString removes control characters and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}

// NormalizeReceiptNumber trims a receipt number and checks its shape
func NormalizeReceiptNumber(receipt string) (string, error) {
	r := strings.TrimSpace(receipt)
	if r == "" {
		return "", fmt.Errorf("receipt number is required")
	}
	if len(r) > MaxReceiptNumberLength {
		return "", fmt.Errorf("receipt number exceeds %d characters", MaxReceiptNumberLength)
	}
	if !receiptPattern.MatchString(r) {
		return "", fmt.Errorf("receipt number %q contains invalid characters", r)
	}
	return r, nil
}

// Truncate shortens s to at most n bytes without splitting a UTF-8 sequence
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
