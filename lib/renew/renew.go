// Package renew holds the outcome model shared by every panel scraper
// and the classifier that maps panel responses onto it. Panels report
// renewal results as free text, in several languages, across ajax bodies
// and flash messages.
package renew

import "time"

type Status string

const (
	// StatusRenewed means the panel confirmed a new expiration.
	StatusRenewed Status = "renewed"
	// StatusSkipped means the server had enough days left and no renewal
	// was attempted.
	StatusSkipped Status = "skipped"
	// StatusCooldown means the panel rate-limits renewals and the window
	// has not elapsed yet.
	StatusCooldown Status = "cooldown"
	// StatusAlreadyRenewed means the panel reports the maximum prepaid
	// time is already on the server.
	StatusAlreadyRenewed Status = "already_renewed"
	// StatusInsufficientFunds means the account balance cannot cover the
	// renewal.
	StatusInsufficientFunds Status = "insufficient_funds"
	// StatusMaxPeriod means the panel caps the total rental period.
	StatusMaxPeriod Status = "max_period"
	// StatusVkRequired means the panel demands a social account link
	// before renewing.
	StatusVkRequired Status = "vk_required"
	// StatusCaptchaRequired means a challenge could not be cleared.
	StatusCaptchaRequired Status = "captcha_required"
	// StatusLoginFailed means stored credentials or cookies no longer
	// authenticate.
	StatusLoginFailed Status = "login_failed"
	// StatusFailed is any other terminal failure.
	StatusFailed Status = "failed"
	// StatusUnknown means the renewal was submitted but the response did
	// not say what happened.
	StatusUnknown Status = "unknown"
)

// Retryable reports whether a proxied retry could plausibly change the
// outcome. Account-state failures won't improve from another network
// path.
func (s Status) Retryable() bool {
	switch s {
	case StatusFailed, StatusCaptchaRequired, StatusUnknown:
		return true
	}
	return false
}

type Params struct {
	// Force renews regardless of days left.
	Force bool
	// ThresholdDays renews only when the server expires within this many
	// days. Zero means the provider default of 3.
	ThresholdDays int
}

func (p Params) Threshold() int {
	if p.ThresholdDays <= 0 {
		return 3
	}
	return p.ThresholdDays
}

type Outcome struct {
	// Target identifies the server or account the outcome concerns.
	Target string
	Status Status
	// Detail carries the panel's own words about what happened.
	Detail string
	// ExpiresAt is the expiration read off the panel, zero when the page
	// never revealed one.
	ExpiresAt time.Time
	DaysLeft  int
	// Screenshot is captured on failures for the report channel.
	Screenshot []byte
	// RotatedCookies holds a refreshed cookie string when the panel
	// reissued the session during the run.
	RotatedCookies string
}
