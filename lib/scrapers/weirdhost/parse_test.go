package weirdhost

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uzx-v/renewbot/lib/renew"
)

func TestExtractExpiry(t *testing.T) {
	body := `서버 정보
유통기한 2025-03-14 08:30:00
CPU 100%`
	expiry, ok := extractExpiry(body)
	require.True(t, ok)
	require.Equal(t, 2025, expiry.Year())
	require.Equal(t, 14, expiry.Day())
	require.Equal(t, 8, expiry.Hour())
}

func TestExtractExpiryDateOnly(t *testing.T) {
	expiry, ok := extractExpiry("유통기한 2025-03-14")
	require.True(t, ok)
	require.Equal(t, 2025, expiry.Year())
	require.Equal(t, 0, expiry.Hour())
}

func TestExtractExpiryMissing(t *testing.T) {
	_, ok := extractExpiry("Expiry: sometime soon")
	require.False(t, ok)
}

func TestParseRenewError(t *testing.T) {
	body := `{"errors":[{"code":"TooManyRequests","detail":"You can only once at one time period."}]}`
	detail := parseRenewError(body)
	require.Equal(t, "You can only once at one time period.", detail)
	require.Equal(t, renew.StatusCooldown, renew.Classify(detail))
}

func TestParseRenewErrorMalformed(t *testing.T) {
	require.Equal(t, "internal error", parseRenewError(" internal error\n"))
	require.Equal(t, "{}", parseRenewError("{}"))
}

func TestTargetFromServerUrl(t *testing.T) {
	s := New(Options{ServerUrl: "https://hub.weirdhost.xyz/server/d341874c"})
	require.Equal(t, "d341874c", s.target())
	s = New(Options{ServerUrl: "https://hub.weirdhost.xyz/server/d341874c/"})
	require.Equal(t, "d341874c", s.target())
}
