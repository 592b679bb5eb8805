// Package expiry parses the various ways hosting panels render server
// expiration: absolute dates in several formats and live countdowns.
package expiry

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/uzx-v/renewbot/lib/timezone"
)

// layouts ordered from most to least specific, panels are inconsistent
// even within a single page.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006",
}

// ParseDate parses an absolute expiration date in any of the formats the
// supported panels use. The result is anchored in timezone.Location since
// none of the panels render an offset.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, timezone.Location)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized expiration date: %q", s)
}

var countdownRe = regexp.MustCompile(`(?i)(?:(\d+)\s*d)?\s*(?:(\d+)\s*h)?\s*(?:(\d+)\s*m)?`)

// ParseCountdown parses a remaining-time countdown like "2d 5h 30m",
// "5h 30m" or "45m".
func ParseCountdown(s string) (time.Duration, error) {
	m := countdownRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "") {
		return 0, fmt.Errorf("unrecognized countdown: %q", s)
	}
	var d time.Duration
	if m[1] != "" {
		n, _ := strconv.Atoi(m[1])
		d += time.Duration(n) * 24 * time.Hour
	}
	if m[2] != "" {
		n, _ := strconv.Atoi(m[2])
		d += time.Duration(n) * time.Hour
	}
	if m[3] != "" {
		n, _ := strconv.Atoi(m[3])
		d += time.Duration(n) * time.Minute
	}
	return d, nil
}

// DaysUntil reports whole calendar days between now and t, both evaluated
// in timezone.Location. A server expiring later today yields 0, one that
// already lapsed yields a negative count.
func DaysUntil(t time.Time) int {
	return DaysBetween(timezone.Now(), t)
}

// DaysBetween reports whole calendar days from `from` to `to`.
func DaysBetween(from, to time.Time) int {
	from = truncateToDate(from.In(timezone.Location))
	to = truncateToDate(to.In(timezone.Location))
	return int(to.Sub(from) / (24 * time.Hour))
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Humanize renders a duration the way the panels do, e.g. "2d 5h 30m".
// Sub-minute remainders round down, negative durations render as "expired".
func Humanize(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	return strings.Join(parts, " ")
}
