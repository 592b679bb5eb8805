package pella

import (
	"regexp"
	"strings"
	"time"

	"github.com/uzx-v/renewbot/lib/expiry"
)

var countdownRe = regexp.MustCompile(`Your server expires in\s*((?:\d+\s*[DdHhMm]\s*)+)`)

// extractRemaining reads the live countdown off the server page. Pella
// shows remaining time like "2D 5H 30M" instead of an absolute date.
func extractRemaining(pageSource string) (time.Duration, bool) {
	m := countdownRe.FindStringSubmatch(pageSource)
	if m == nil {
		return 0, false
	}
	remaining, err := expiry.ParseCountdown(m[1])
	if err != nil {
		return 0, false
	}
	return remaining, true
}

type Account struct {
	Email    string
	Password string
}

var accountSeparatorRe = regexp.MustCompile(`[;,]`)

// ParseAccounts parses the "email:pass,email2:pass2" account list.
// Entries missing a colon or either half are dropped.
func ParseAccounts(raw string) []Account {
	var out []Account
	for _, pair := range accountSeparatorRe.Split(raw, -1) {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		email, password, found := strings.Cut(pair, ":")
		email = strings.TrimSpace(email)
		password = strings.TrimSpace(password)
		if !found || email == "" || password == "" {
			continue
		}
		out = append(out, Account{Email: email, Password: password})
	}
	return out
}

// maskEmail hides most of an address for logs and reports.
func maskEmail(email string) string {
	name, domain, found := strings.Cut(email, "@")
	if len(name) > 3 {
		name = name[:3]
	}
	if !found {
		return name + "***"
	}
	return name + "***@" + domain
}
