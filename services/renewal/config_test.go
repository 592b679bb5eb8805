package renewal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	require.Equal(t, "renewbot.db", cfg.DatabasePath())
	require.Equal(t, 7877, cfg.MonitorPort())
	require.Equal(t, time.Hour*12, cfg.Interval())

	cfg.Database = "/var/lib/renewbot.db"
	cfg.Port = 9000
	cfg.IntervalHours = 6
	require.Equal(t, "/var/lib/renewbot.db", cfg.DatabasePath())
	require.Equal(t, 9000, cfg.MonitorPort())
	require.Equal(t, time.Hour*6, cfg.Interval())
}

func TestConfigProviders(t *testing.T) {
	var cfg Config
	_, err := cfg.providers()
	require.ErrorContains(t, err, "no providers enabled")

	cfg.Providers.Castlehost.Enabled = true
	cfg.Providers.Castlehost.CookieString = "PHPSESSID=abc"
	cfg.Providers.Castlehost.ServerId = "42"
	cfg.Providers.Castlehost.SecretName = "CASTLE_COOKIES"

	cfg.Providers.Weirdhost.Enabled = true
	cfg.Providers.Weirdhost.CookieValue = "tok"
	cfg.Providers.Weirdhost.ServerUrl = "https://hub.weirdhost.xyz/server/d341874c"
	cfg.Providers.Weirdhost.ProxyOnly = true

	regs, err := cfg.providers()
	require.NoError(t, err)
	require.Len(t, regs, 2)
	require.Equal(t, "castlehost", regs[0].Provider.Name())
	require.Equal(t, "CASTLE_COOKIES", regs[0].SecretName)
	require.Equal(t, "weirdhost", regs[1].Provider.Name())
	require.True(t, regs[1].ProxyOnly)
}

func TestConfigProvidersIncomplete(t *testing.T) {
	var cfg Config
	cfg.Providers.Katabump.Enabled = true
	cfg.Providers.Katabump.Email = "user@example.com"

	t.Setenv("KATABUMP_PASSWORD", "")
	_, err := cfg.providers()
	require.ErrorContains(t, err, "katabump")
}
