package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "belt worn", SanitizeString("  belt\x00 worn\n"))
}

func TestNormalizeReceiptNumber(t *testing.T) {
	got, err := NormalizeReceiptNumber("  RCPT-2024/001 ")
	require.NoError(t, err)
	assert.Equal(t, "RCPT-2024/001", got)

	for _, bad := range []string{"", "   ", "-lead", "has space", string(make([]byte, 65))} {
		_, err := NormalizeReceiptNumber(bad)
		assert.Error(t, err, "receipt %q", bad)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "ab", Truncate("ab", 10))
	// "é" is two bytes; cutting in the middle backs off to the rune start
	assert.Equal(t, "a", Truncate("aé", 2))
}
