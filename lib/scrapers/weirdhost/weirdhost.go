// Package weirdhost renews servers on the weirdhost.xyz pterodactyl hub.
// Access is a single laravel remember_web cookie, renewal is an "Add Time"
// modal guarded by turnstile that fires a POST /renew. The panel reissues
// the cookie on every visit, so a successful run surfaces the fresh value
// for secret rotation.
package weirdhost

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/uzx-v/renewbot/lib/browser"
	"github.com/uzx-v/renewbot/lib/expiry"
	"github.com/uzx-v/renewbot/lib/renew"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/weirdhost")

var LoginFailed = fmt.Errorf("weirdhost rejected the stored remember_web cookie")

const cookieDomain = "hub.weirdhost.xyz"

type Options struct {
	// CookieValue is the raw remember_web session cookie value.
	CookieValue string
	// CookieName defaults to "remember_web". The panel occasionally
	// suffixes the name with a hash.
	CookieName string
	// ServerUrl is the full server console url, e.g.
	// https://hub.weirdhost.xyz/server/d341874c.
	ServerUrl string
}

type Scraper struct {
	opts Options
}

func New(opts Options) Scraper {
	if opts.CookieName == "" {
		opts.CookieName = "remember_web"
	}
	return Scraper{opts: opts}
}

func (s Scraper) Name() string {
	return "weirdhost"
}

// target is the server id, the trailing path segment of the console url.
func (s Scraper) target() string {
	trimmed := strings.TrimSuffix(s.opts.ServerUrl, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

var renewButtonSelectors = []string{
	`button:has-text("시간연장")`,
	`button:has-text("시간추가")`,
	`button:has-text("Add Time")`,
}

// pageReadyScript reports whether the console actually rendered, the hub
// streams most of the page in with javascript after load.
const pageReadyScript = `() => {
	const body = document.body ? document.body.innerText : '';
	return body.includes('유통기한') || body.includes('Expiry');
}`

// modalTurnstileScript reports whether the renew modal's turnstile widget
// has resolved. The widget removes its iframe once the invisible challenge
// passes, so a missing iframe counts as solved too.
const modalTurnstileScript = `() => {
	const input = document.querySelector('input[name*="turnstile"], input[name*="cf-turnstile"], [data-turnstile-response]');
	if (input && input.value && input.value.length > 10) return true;
	const iframe = document.querySelector('iframe[src*="challenges.cloudflare.com"]');
	if (!iframe) return true;
	const container = iframe.closest('div');
	return !!(container && container.querySelector('[data-state="success"]'));
}`

// confirmModalScript clicks the confirmation button inside the renew
// modal by exact label, the modal reuses the same markup as the opener.
const confirmModalScript = `() => {
	const buttons = document.querySelectorAll('button');
	for (const btn of buttons) {
		const text = (btn.innerText || '').trim();
		if (text === '시간추가' || text === 'Add Time') {
			btn.click();
			return true;
		}
	}
	return false;
}`

func (s Scraper) failure(session *browser.Session, status renew.Status, detail string) renew.Outcome {
	outcome := renew.Outcome{
		Target: s.target(),
		Status: status,
		Detail: detail,
	}
	shot, err := session.Screenshot()
	if err != nil {
		slog.Warn("failed to capture failure screenshot", "provider", s.Name(), "err", err)
		return outcome
	}
	outcome.Screenshot = shot
	return outcome
}

func (s Scraper) Renew(ctx context.Context, newSession browser.Factory, params renew.Params) ([]renew.Outcome, error) {
	ctx, span := tracer.Start(ctx, "Renew")
	defer span.End()
	span.SetAttributes(attribute.String("server", s.target()))

	session, err := newSession(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open browser session")
		return nil, err
	}
	defer session.Close()

	err = session.AddCookies(cookieDomain, []*http.Cookie{
		{Name: s.opts.CookieName, Value: s.opts.CookieValue},
	})
	if err != nil {
		return nil, fmt.Errorf("inject cookies: %w", err)
	}

	capture := session.CaptureResponses("/renew", "POST")

	err = session.Goto(s.opts.ServerUrl, time.Second*90)
	if err != nil {
		return nil, fmt.Errorf("open server page: %w", err)
	}
	err = browser.WaitForCloudflare(ctx, session.Page, time.Second*120)
	if err != nil {
		return []renew.Outcome{s.failure(session, renew.StatusCaptchaRequired, err.Error())}, nil
	}

	// an invalid cookie bounces to the laravel login page
	if strings.Contains(session.Page.URL(), "/login") {
		span.SetStatus(codes.Error, LoginFailed.Error())
		return []renew.Outcome{s.failure(session, renew.StatusLoginFailed, LoginFailed.Error())}, nil
	}

	err = s.waitForConsole(ctx, session, time.Second*30)
	if err != nil {
		return []renew.Outcome{s.failure(session, renew.StatusFailed, "console never rendered")}, nil
	}
	if strings.Contains(session.Page.URL(), "/login") {
		span.SetStatus(codes.Error, LoginFailed.Error())
		return []renew.Outcome{s.failure(session, renew.StatusLoginFailed, LoginFailed.Error())}, nil
	}

	outcome := renew.Outcome{Target: s.target()}
	body, err := session.Page.InnerText("body")
	if err == nil {
		before, ok := extractExpiry(body)
		if ok {
			outcome.ExpiresAt = before
			outcome.DaysLeft = expiry.DaysUntil(before)
			slog.InfoContext(
				ctx, "read server state",
				"provider", s.Name(),
				"server", s.target(),
				"expires", before.Format("2006-01-02 15:04:05"),
				"days_left", outcome.DaysLeft,
			)
			if !params.Force && outcome.DaysLeft > params.Threshold() {
				outcome.Status = renew.StatusSkipped
				outcome.Detail = fmt.Sprintf("%d days left, renewing within %d", outcome.DaysLeft, params.Threshold())
				s.collectRotatedCookie(&outcome, session)
				return []renew.Outcome{outcome}, nil
			}
		}
	}

	status, detail := s.renewThroughModal(ctx, session, capture, &outcome)
	outcome.Status = status
	outcome.Detail = detail
	s.collectRotatedCookie(&outcome, session)

	if status != renew.StatusRenewed && status != renew.StatusCooldown && status != renew.StatusAlreadyRenewed {
		failed := s.failure(session, status, detail)
		failed.ExpiresAt = outcome.ExpiresAt
		failed.DaysLeft = outcome.DaysLeft
		failed.RotatedCookies = outcome.RotatedCookies
		return []renew.Outcome{failed}, nil
	}
	if status == renew.StatusRenewed {
		if shot, err := session.Screenshot(); err == nil {
			outcome.Screenshot = shot
		}
	}
	return []renew.Outcome{outcome}, nil
}

// waitForConsole polls until the hub's client side rendering finishes.
func (s Scraper) waitForConsole(ctx context.Context, session *browser.Session, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		result, err := session.Page.Evaluate(pageReadyScript)
		if err == nil {
			ready, ok := result.(bool)
			if ok && ready {
				session.Page.WaitForTimeout(2000)
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return fmt.Errorf("console content never appeared")
}

// renewThroughModal opens the add-time modal, waits out its turnstile,
// confirms, and interprets the captured /renew response.
func (s Scraper) renewThroughModal(ctx context.Context, session *browser.Session, capture *browser.ResponseCapture, outcome *renew.Outcome) (renew.Status, string) {
	ctx, span := tracer.Start(ctx, "renewThroughModal")
	defer span.End()

	var opened bool
	for _, selector := range renewButtonSelectors {
		count, err := session.Page.Locator(selector).Count()
		if err != nil || count == 0 {
			continue
		}
		err = session.Page.Locator(selector).First().Click(playwright.LocatorClickOptions{
			Timeout: playwright.Float(5000),
		})
		if err != nil {
			slog.WarnContext(ctx, "renew button click failed", "selector", selector, "err", err)
			continue
		}
		opened = true
		break
	}
	if !opened {
		span.SetStatus(codes.Error, "renew button not found")
		return renew.StatusFailed, "renew button not found"
	}
	session.Page.WaitForTimeout(3000)

	err := s.waitForModalTurnstile(ctx, session, time.Second*120)
	if err != nil {
		span.SetStatus(codes.Error, "turnstile did not clear")
		return renew.StatusCaptchaRequired, "turnstile in the renew modal did not clear"
	}

	session.Page.WaitForTimeout(1000)
	result, err := session.Page.Evaluate(confirmModalScript)
	confirmed, ok := result.(bool)
	if err != nil || !ok || !confirmed {
		span.SetStatus(codes.Error, "modal confirmation button not found")
		return renew.StatusFailed, "renew confirmation button not found"
	}

	deadline := time.Now().Add(time.Second * 60)
	for time.Now().Before(deadline) {
		res, ok := capture.Last()
		if ok {
			return s.interpretResponse(ctx, session, res, outcome)
		}
		select {
		case <-ctx.Done():
			return renew.StatusUnknown, ctx.Err().Error()
		case <-time.After(time.Second):
		}
	}
	return renew.StatusUnknown, "no renewal response captured"
}

func (s Scraper) interpretResponse(ctx context.Context, session *browser.Session, res browser.CapturedResponse, outcome *renew.Outcome) (renew.Status, string) {
	switch {
	case res.Status == 200 || res.Status == 201 || res.Status == 204:
		s.refreshExpiry(ctx, session, outcome)
		return renew.StatusRenewed, ""
	case res.Status == 400:
		detail := parseRenewError(res.Body)
		status := renew.ClassifyError(detail)
		if status == renew.StatusUnknown {
			return renew.StatusFailed, detail
		}
		return status, detail
	default:
		return renew.StatusFailed, fmt.Sprintf("renewal endpoint answered HTTP %d", res.Status)
	}
}

// refreshExpiry reloads the console and reads the new expiration after a
// confirmed renewal. Best effort, the renewal already went through.
func (s Scraper) refreshExpiry(ctx context.Context, session *browser.Session, outcome *renew.Outcome) {
	session.Page.WaitForTimeout(2000)
	_, err := session.Page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	})
	if err != nil {
		return
	}
	if err := browser.WaitForCloudflare(ctx, session.Page, time.Second*30); err != nil {
		return
	}
	if err := s.waitForConsole(ctx, session, time.Second*20); err != nil {
		return
	}
	body, err := session.Page.InnerText("body")
	if err != nil {
		return
	}
	after, ok := extractExpiry(body)
	if !ok {
		return
	}
	outcome.ExpiresAt = after
	outcome.DaysLeft = expiry.DaysUntil(after)
}

func (s Scraper) waitForModalTurnstile(ctx context.Context, session *browser.Session, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		result, err := session.Page.Evaluate(modalTurnstileScript)
		if err == nil {
			done, ok := result.(bool)
			if ok && done {
				session.Page.WaitForTimeout(1000)
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return browser.ErrTurnstileTimeout
}

// collectRotatedCookie surfaces a reissued remember_web value so the
// stored secret can be rotated. Laravel rotates it on most requests.
func (s Scraper) collectRotatedCookie(outcome *renew.Outcome, session *browser.Session) {
	cookies, err := session.Page.Context().Cookies()
	if err != nil {
		return
	}
	for _, c := range cookies {
		if !strings.HasPrefix(c.Name, s.opts.CookieName) {
			continue
		}
		if c.Value != "" && c.Value != s.opts.CookieValue {
			outcome.RotatedCookies = c.Value
		}
		return
	}
}
