package syncx

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToken_Format(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	tok := NewToken("loan", now)

	assert.True(t, strings.HasPrefix(tok, "loan_"))
	assert.True(t, strings.HasSuffix(tok, "_1773482400"))

	parsed, ok := ParseToken(tok)
	require.True(t, ok)
	assert.Equal(t, "loan", parsed.Model)
	assert.Len(t, parsed.Random, 32)
	assert.Equal(t, now.Unix(), parsed.Unix)
}

func TestNewToken_Unique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tok := NewToken("message", now)
		require.False(t, seen[tok], "token collision: %s", tok)
		seen[tok] = true
	}
}

func TestParseToken_UnderscoredModelName(t *testing.T) {
	tok := NewToken("loan_repayment", time.Unix(1700000000, 0))

	parsed, ok := ParseToken(tok)
	require.True(t, ok)
	assert.Equal(t, "loan_repayment", parsed.Model)
	assert.EqualValues(t, 1700000000, parsed.Unix)
}

func TestParseToken_Invalid(t *testing.T) {
	for _, s := range []string{
		"",
		"loan",
		"loan_abc",
		"loan_deadbeef_notatime",
		"loan_short_1700000000",
	} {
		_, ok := ParseToken(s)
		assert.False(t, ok, "expected %q to be rejected", s)
	}
}

func TestTokenAfter(t *testing.T) {
	assert.True(t, TokenAfter("loan_b", "loan_a"))
	assert.False(t, TokenAfter("loan_a", "loan_a"))
	assert.False(t, TokenAfter("loan_a", "loan_b"))
}
