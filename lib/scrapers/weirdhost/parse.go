package weirdhost

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/uzx-v/renewbot/lib/expiry"
)

// the panel labels the expiration in Korean, with an optional time part
var expiryRe = regexp.MustCompile(`유통기한\s*(\d{4}-\d{2}-\d{2}(?:\s+\d{2}:\d{2}:\d{2})?)`)

func extractExpiry(body string) (time.Time, bool) {
	match := expiryRe.FindStringSubmatch(body)
	if match == nil {
		return time.Time{}, false
	}
	t, err := expiry.ParseDate(match[1])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

type renewError struct {
	Errors []struct {
		Detail string `json:"detail"`
	} `json:"errors"`
}

// parseRenewError digs the human readable detail out of the panel's json
// error envelope, falling back to the raw body.
func parseRenewError(body string) string {
	var parsed renewError
	err := json.Unmarshal([]byte(body), &parsed)
	if err == nil && len(parsed.Errors) > 0 && parsed.Errors[0].Detail != "" {
		return parsed.Errors[0].Detail
	}
	return strings.TrimSpace(body)
}
