package pella

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExtractRemaining(t *testing.T) {
	page := `<div class="card">Your server expires in 2D 5H 30M</div>`
	got, ok := extractRemaining(page)
	require.True(t, ok)
	require.Equal(t, 2*24*time.Hour+5*time.Hour+30*time.Minute, got)
}

func TestExtractRemainingDaysOnly(t *testing.T) {
	got, ok := extractRemaining("Your server expires in 9D")
	require.True(t, ok)
	require.Equal(t, 9*24*time.Hour, got)
}

func TestExtractRemainingHoursOnly(t *testing.T) {
	got, ok := extractRemaining("Your server expires in 5H 30M")
	require.True(t, ok)
	require.Equal(t, 5*time.Hour+30*time.Minute, got)
}

func TestExtractRemainingMissing(t *testing.T) {
	_, ok := extractRemaining("<html><body>Welcome back</body></html>")
	require.False(t, ok)
}

func TestParseAccounts(t *testing.T) {
	accounts := ParseAccounts("a@x.com:pass1, b@y.com:pa:ss2 ; c@z.com:pass3")
	require.Len(t, accounts, 3)
	require.Equal(t, Account{Email: "a@x.com", Password: "pass1"}, accounts[0])
	// password may itself contain a colon
	require.Equal(t, Account{Email: "b@y.com", Password: "pa:ss2"}, accounts[1])
	require.Equal(t, Account{Email: "c@z.com", Password: "pass3"}, accounts[2])
}

func TestParseAccountsMalformed(t *testing.T) {
	require.Empty(t, ParseAccounts(""))
	require.Empty(t, ParseAccounts("no-colon-here"))
	require.Empty(t, ParseAccounts(":missing-email,missing-pass:"))

	accounts := ParseAccounts("good@x.com:pw,,bad-entry")
	require.Len(t, accounts, 1)
	require.Equal(t, "good@x.com", accounts[0].Email)
}

func TestMaskEmail(t *testing.T) {
	require.Equal(t, "use***@example.com", maskEmail("user@example.com"))
	require.Equal(t, "ab***@x.com", maskEmail("ab@x.com"))
	require.Equal(t, "abc***", maskEmail("abcdef"))
}
