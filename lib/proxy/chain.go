package proxy

import (
	"context"
	"log/slog"
)

// Route describes how one renewal attempt should reach the panel: either
// directly or through a running xray instance.
type Route struct {
	// Server is the socks5 url to dial through, empty for a direct
	// connection.
	Server string
	// Name labels the route in logs and reports.
	Name string

	xray *Xray
}

func (r Route) Close() {
	if r.xray != nil {
		r.xray.Stop()
	}
}

// Chain yields routes in fallback order: always direct first, then the
// configured vless proxy when a panel geo-blocks the runner.
type Chain struct {
	vlessUri string
}

func NewChain(vlessUri string) Chain {
	return Chain{vlessUri: vlessUri}
}

// Routes returns the attempt order. The proxied route lazily starts xray
// on first use via Route.Open.
func (c Chain) Routes() []string {
	if c.vlessUri == "" {
		return []string{"direct"}
	}
	return []string{"direct", "proxy"}
}

// Open materializes a named route. "direct" always succeeds; "proxy"
// parses the vless uri and boots xray.
func (c Chain) Open(ctx context.Context, name string) (Route, error) {
	if name == "direct" {
		return Route{Name: "direct"}, nil
	}

	vless, err := ParseVless(c.vlessUri)
	if err != nil {
		return Route{}, err
	}
	x := NewXray(vless)
	err = x.Start(ctx)
	if err != nil {
		return Route{}, err
	}
	slog.InfoContext(ctx, "opened proxied route", "server", vless.Name, "addr", x.Addr())
	return Route{Server: x.Addr(), Name: vless.Name, xray: x}, nil
}
