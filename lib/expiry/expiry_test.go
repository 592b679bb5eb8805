package expiry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uzx-v/renewbot/lib/timezone"
)

func TestParseDate(t *testing.T) {
	testCases := []struct {
		input    string
		expected time.Time
	}{
		{
			input:    "31.12.2026",
			expected: time.Date(2026, 12, 31, 0, 0, 0, 0, timezone.Location),
		},
		{
			input:    "2026-09-15",
			expected: time.Date(2026, 9, 15, 0, 0, 0, 0, timezone.Location),
		},
		{
			input:    "2026-09-15 08:30:00",
			expected: time.Date(2026, 9, 15, 8, 30, 0, 0, timezone.Location),
		},
		{
			input:    "  2026-09-15  ",
			expected: time.Date(2026, 9, 15, 0, 0, 0, 0, timezone.Location),
		},
	}
	for _, tc := range testCases {
		got, err := ParseDate(tc.input)
		require.NoError(t, err, tc.input)
		require.True(t, got.Equal(tc.expected), tc.input)
	}

	_, err := ParseDate("next tuesday")
	require.Error(t, err)
	_, err = ParseDate("")
	require.Error(t, err)
}

func TestParseCountdown(t *testing.T) {
	testCases := []struct {
		input    string
		expected time.Duration
	}{
		{
			input:    "2d 5h 30m",
			expected: 2*24*time.Hour + 5*time.Hour + 30*time.Minute,
		},
		{
			input:    "5h 30m",
			expected: 5*time.Hour + 30*time.Minute,
		},
		{
			input:    "45m",
			expected: 45 * time.Minute,
		},
		{
			input:    "10d",
			expected: 10 * 24 * time.Hour,
		},
	}
	for _, tc := range testCases {
		got, err := ParseCountdown(tc.input)
		require.NoError(t, err, tc.input)
		require.Equal(t, tc.expected, got, tc.input)
	}

	_, err := ParseCountdown("soon")
	require.Error(t, err)
}

func TestDaysBetween(t *testing.T) {
	from := time.Date(2026, 9, 1, 23, 50, 0, 0, timezone.Location)

	require.Equal(t, 0, DaysBetween(from, time.Date(2026, 9, 1, 0, 0, 0, 0, timezone.Location)))
	require.Equal(t, 1, DaysBetween(from, time.Date(2026, 9, 2, 0, 5, 0, 0, timezone.Location)))
	require.Equal(t, 14, DaysBetween(from, time.Date(2026, 9, 15, 12, 0, 0, 0, timezone.Location)))
	require.Equal(t, -1, DaysBetween(from, time.Date(2026, 8, 31, 23, 59, 0, 0, timezone.Location)))
}

func TestHumanize(t *testing.T) {
	require.Equal(t, "2d 5h 30m", Humanize(2*24*time.Hour+5*time.Hour+30*time.Minute))
	require.Equal(t, "5h", Humanize(5*time.Hour))
	require.Equal(t, "0m", Humanize(30*time.Second))
	require.Equal(t, "expired", Humanize(-time.Hour))
}
