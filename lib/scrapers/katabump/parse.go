package katabump

import (
	"net/url"
	"regexp"
	"time"

	"github.com/uzx-v/renewbot/lib/expiry"
)

var expiryRe = regexp.MustCompile(`(?i)Expiry[\s\S]*?(\d{4}-\d{2}-\d{2})`)
var urlErrorRe = regexp.MustCompile(`error=([^&]+)`)

// extractExpiry pulls the expiration date out of the server edit page.
// The date sits in a table cell a few nodes after the "Expiry" label.
func extractExpiry(html string) (time.Time, bool) {
	m := expiryRe.FindStringSubmatch(html)
	if m == nil {
		return time.Time{}, false
	}
	t, err := expiry.ParseDate(m[1])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// extractUrlError decodes the error the panel reports through a redirect
// query parameter after a failed renewal.
func extractUrlError(pageUrl string) (string, bool) {
	m := urlErrorRe.FindStringSubmatch(pageUrl)
	if m == nil {
		return "", false
	}
	decoded, err := url.QueryUnescape(m[1])
	if err != nil {
		return m[1], true
	}
	return decoded, true
}
