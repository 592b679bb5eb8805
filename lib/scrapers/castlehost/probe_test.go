package castlehost

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProbe(t *testing.T) {
	var gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/servers/pay/index/42", r.URL.Path)
		if c, err := r.Cookie("PHPSESSID"); err == nil {
			gotCookie = c.Value
		}
		w.Write([]byte(`<html><body>
			<h1>Мой сервер</h1>
			<p>Сервер действует до 14.03.2025</p>
			<span>Баланс: 0.00 ₽</span>
		</body></html>`))
	}))
	defer server.Close()

	scraper := New(Options{
		CookieString: "PHPSESSID=abc123",
		ServerId:     "42",
		BaseUrl:      server.URL,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	target, expiresAt, err := scraper.Probe(ctx)
	require.NoError(t, err)
	require.Equal(t, "42", target)
	require.Equal(t, "abc123", gotCookie)
	require.Equal(t, 2025, expiresAt.Year())
	require.Equal(t, time.March, expiresAt.Month())
	require.Equal(t, 14, expiresAt.Day())
}

func TestProbeLoginPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<form action="/login" method="post">
				<input name="email"/><input name="password" type="password"/>
			</form>
		</body></html>`))
	}))
	defer server.Close()

	scraper := New(Options{CookieString: "PHPSESSID=stale", ServerId: "42", BaseUrl: server.URL})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	_, _, err := scraper.Probe(ctx)
	require.ErrorIs(t, err, LoginFailed)
}
