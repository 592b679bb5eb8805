package webclient

import (
	"net/http"
	"strings"
)

// ParseCookieString splits a raw "name=value; name2=value2" cookie header
// into individual cookies. Values may themselves contain '=', only the
// first one separates name from value. Malformed fragments are skipped.
func ParseCookieString(raw string) []*http.Cookie {
	var out []*http.Cookie
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, found := strings.Cut(part, "=")
		if !found || name == "" {
			continue
		}
		out = append(out, &http.Cookie{
			Name:  strings.TrimSpace(name),
			Value: strings.TrimSpace(value),
		})
	}
	return out
}
