package katabump

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uzx-v/renewbot/lib/timezone"
)

func TestExtractExpiry(t *testing.T) {
	html := `
<table class="table">
  <tr><th>Name</th><td>my-server</td></tr>
  <tr><th>Expiry</th>
      <td><span class="badge">2026-09-20</span></td></tr>
</table>`

	got, ok := extractExpiry(html)
	require.True(t, ok)
	require.True(t, got.Equal(time.Date(2026, 9, 20, 0, 0, 0, 0, timezone.Location)))
}

func TestExtractExpiryMissing(t *testing.T) {
	_, ok := extractExpiry("<html><body>no dates here</body></html>")
	require.False(t, ok)

	// a date without the Expiry label nearby does not count
	_, ok = extractExpiry("<html><body>created 2026-01-01</body></html>")
	require.False(t, ok)
}

func TestExtractUrlError(t *testing.T) {
	msg, ok := extractUrlError("https://dashboard.katabump.com/servers/edit?id=1&error=You%20can%20only%20once%20at%20one%20time%20period")
	require.True(t, ok)
	require.Equal(t, "You can only once at one time period", msg)

	msg, ok = extractUrlError("https://dashboard.katabump.com/servers/edit?id=1&error=cooldown&foo=bar")
	require.True(t, ok)
	require.Equal(t, "cooldown", msg)

	_, ok = extractUrlError("https://dashboard.katabump.com/servers/edit?id=1&renew=success")
	require.False(t, ok)
}
