package proxy

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Vless is the subset of a vless:// share uri xray needs to build an
// outbound.
type Vless struct {
	Uuid     string
	Host     string
	Port     int
	Network  string
	Security string
	Sni      string
	// reality parameters
	PublicKey   string
	ShortId     string
	Fingerprint string
	// websocket parameters
	Path   string
	WsHost string
	Name   string
	Flow   string
}

// ParseVless parses a vless://uuid@host:port?params#name share uri.
func ParseVless(raw string) (Vless, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Vless{}, fmt.Errorf("parse vless uri: %w", err)
	}
	if u.Scheme != "vless" {
		return Vless{}, fmt.Errorf("expected vless:// scheme, got %q", u.Scheme)
	}
	if u.User == nil || u.User.Username() == "" {
		return Vless{}, fmt.Errorf("vless uri is missing a uuid")
	}
	host := u.Hostname()
	if host == "" {
		return Vless{}, fmt.Errorf("vless uri is missing a host")
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 {
		return Vless{}, fmt.Errorf("vless uri has an invalid port %q", u.Port())
	}

	q := u.Query()
	v := Vless{
		Uuid:        u.User.Username(),
		Host:        host,
		Port:        port,
		Network:     q.Get("type"),
		Security:    q.Get("security"),
		Sni:         q.Get("sni"),
		PublicKey:   q.Get("pbk"),
		ShortId:     q.Get("sid"),
		Fingerprint: q.Get("fp"),
		Path:        q.Get("path"),
		WsHost:      q.Get("host"),
		Flow:        q.Get("flow"),
		Name:        u.Fragment,
	}
	if v.Network == "" {
		v.Network = "tcp"
	}
	if v.Security == "" {
		v.Security = "none"
	}
	if v.Sni == "" && v.Security != "none" {
		v.Sni = strings.TrimPrefix(v.WsHost, "www.")
	}
	return v, nil
}
