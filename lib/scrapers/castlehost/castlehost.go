// Package castlehost renews servers on the castle-host.com panel. Access
// is cookie based, renewal is a single button that fires a /buy_months/
// ajax call answering in Russian.
package castlehost

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/uzx-v/renewbot/lib/browser"
	"github.com/uzx-v/renewbot/lib/expiry"
	"github.com/uzx-v/renewbot/lib/renew"
	"github.com/uzx-v/renewbot/lib/webclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/castlehost")

var LoginFailed = fmt.Errorf("castle-host rejected the stored cookies")

const cookieDomain = ".castle-host.com"

type Options struct {
	// CookieString is the raw "name=value; ..." session cookie header.
	CookieString string
	ServerId     string
	// BaseUrl defaults to the production panel.
	BaseUrl string
}

type Scraper struct {
	opts Options
}

func New(opts Options) Scraper {
	if opts.BaseUrl == "" {
		opts.BaseUrl = "https://cp.castle-host.com"
	}
	return Scraper{opts: opts}
}

func (s Scraper) Name() string {
	return "castlehost"
}

func (s Scraper) serverUrl() string {
	return fmt.Sprintf("%s/servers/pay/index/%s", s.opts.BaseUrl, s.opts.ServerId)
}

var renewButtonSelectors = []string{
	"#freebtn",
	`button:has-text("Продлить")`,
	`button:has-text("продлить")`,
	`button[onclick*="freePay"]`,
}

func (s Scraper) failure(session *browser.Session, status renew.Status, detail string) renew.Outcome {
	outcome := renew.Outcome{
		Target: s.opts.ServerId,
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
	span.SetAttributes(attribute.String("server_id", s.opts.ServerId))

	session, err := newSession(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open browser session")
		return nil, err
	}
	defer session.Close()

	err = session.AddCookies(cookieDomain, webclient.ParseCookieString(s.opts.CookieString))
	if err != nil {
		return nil, fmt.Errorf("inject cookies: %w", err)
	}

	err = session.Goto(s.serverUrl(), time.Second*60)
	if err != nil {
		return nil, fmt.Errorf("open server page: %w", err)
	}
	err = browser.WaitForCloudflare(ctx, session.Page, time.Second*120)
	if err != nil {
		return []renew.Outcome{s.failure(session, renew.StatusCaptchaRequired, err.Error())}, nil
	}

	// an expired session bounces to the login page
	currentUrl := session.Page.URL()
	if strings.Contains(currentUrl, "login") || strings.Contains(currentUrl, "auth") {
		span.SetStatus(codes.Error, LoginFailed.Error())
		return []renew.Outcome{s.failure(session, renew.StatusLoginFailed, LoginFailed.Error())}, nil
	}

	body, err := session.Page.InnerText("body")
	if err != nil {
		return nil, fmt.Errorf("read page body: %w", err)
	}
	info := parseServerInfo(body)

	outcome := renew.Outcome{
		Target:    s.opts.ServerId,
		ExpiresAt: info.Expiry,
	}
	if !info.Expiry.IsZero() {
		outcome.DaysLeft = expiry.DaysUntil(info.Expiry)
		slog.InfoContext(
			ctx, "read server state",
			"provider", s.Name(),
			"server_id", s.opts.ServerId,
			"running", info.Running,
			"expires", info.Expiry.Format("2006-01-02"),
			"days_left", outcome.DaysLeft,
			"balance", info.Balance,
		)
		if !params.Force && outcome.DaysLeft > params.Threshold() {
			outcome.Status = renew.StatusSkipped
			outcome.Detail = fmt.Sprintf("%d days left, renewing within %d", outcome.DaysLeft, params.Threshold())
			return []renew.Outcome{outcome}, nil
		}
	}

	status, detail := s.clickRenew(ctx, session)
	if status == renew.StatusUnknown {
		// no usable ajax response, fall back to comparing expiry dates
		status, detail = s.verifyByExpiry(ctx, session, info.Expiry, &outcome)
	}
	outcome.Status = status
	outcome.Detail = detail
	if status != renew.StatusRenewed && status != renew.StatusSkipped {
		failed := s.failure(session, status, detail)
		failed.ExpiresAt = outcome.ExpiresAt
		failed.DaysLeft = outcome.DaysLeft
		return []renew.Outcome{failed}, nil
	}

	if status == renew.StatusRenewed && outcome.ExpiresAt.IsZero() {
		s.verifyByExpiry(ctx, session, info.Expiry, &outcome)
		outcome.Status = renew.StatusRenewed
	}
	if status == renew.StatusRenewed {
		if shot, err := session.Screenshot(); err == nil {
			outcome.Screenshot = shot
		}
	}
	return []renew.Outcome{outcome}, nil
}

// clickRenew presses the renew button and interprets the captured ajax
// response. Returns StatusUnknown when the panel never answered.
func (s Scraper) clickRenew(ctx context.Context, session *browser.Session) (renew.Status, string) {
	ctx, span := tracer.Start(ctx, "clickRenew")
	defer span.End()

	capture := session.CaptureResponses("/buy_months/")

	var clicked bool
	for _, selector := range renewButtonSelectors {
		button := session.Page.Locator(selector).First()
		count, err := session.Page.Locator(selector).Count()
		if err != nil || count == 0 {
			continue
		}

		disabled, _ := button.GetAttribute("disabled")
		if disabled != "" {
			span.SetStatus(codes.Error, "renew button is disabled")
			return renew.StatusFailed, "renew button is disabled"
		}

		err = button.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(5000)})
		if err != nil {
			slog.WarnContext(ctx, "renew button click failed", "selector", selector, "err", err)
			continue
		}
		clicked = true
		break
	}
	if !clicked {
		// some layouts hide the button behind javascript
		result, err := session.Page.Evaluate(`typeof freePay === 'function' ? (freePay(), true) : false`)
		invoked, ok := result.(bool)
		if err != nil || !ok || !invoked {
			span.SetStatus(codes.Error, "renew button not found")
			return renew.StatusFailed, "renew button not found"
		}
	}

	// the ajax answer usually lands within a couple seconds
	deadline := time.Now().Add(time.Second * 10)
	for time.Now().Before(deadline) {
		res, ok := capture.Last()
		if ok {
			return classifyRenewalBody(res.Body)
		}
		select {
		case <-ctx.Done():
			return renew.StatusUnknown, ctx.Err().Error()
		case <-time.After(time.Millisecond * 500):
		}
	}

	// no ajax response, check for a flash message on the page
	session.Page.WaitForTimeout(3000)
	body, err := session.Page.InnerText("body")
	if err != nil {
		return renew.StatusUnknown, "no renewal response captured"
	}
	if strings.Contains(body, "24 час") {
		return renew.StatusCooldown, "renewable once per 24 hours"
	}
	if successRe.MatchString(body) {
		return renew.StatusRenewed, ""
	}
	return renew.StatusUnknown, "no renewal response captured"
}

// verifyByExpiry reloads the page and compares expiration dates, the
// only signal left when the panel's response was inconclusive.
func (s Scraper) verifyByExpiry(ctx context.Context, session *browser.Session, before time.Time, outcome *renew.Outcome) (renew.Status, string) {
	_, span := tracer.Start(ctx, "verifyByExpiry")
	defer span.End()

	_, err := session.Page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	})
	if err != nil {
		return renew.StatusUnknown, "could not reload to verify expiry"
	}
	session.Page.WaitForTimeout(2000)

	body, err := session.Page.InnerText("body")
	if err != nil {
		return renew.StatusUnknown, "could not reload to verify expiry"
	}
	after, ok := extractExpiry(body)
	if !ok {
		return renew.StatusUnknown, "expiry not visible after renewal"
	}

	outcome.ExpiresAt = after
	outcome.DaysLeft = expiry.DaysUntil(after)
	if !before.IsZero() && after.After(before) {
		added := expiry.DaysBetween(before, after)
		return renew.StatusRenewed, fmt.Sprintf("expiry moved %d days", added)
	}
	return renew.StatusUnknown, "expiry did not change"
}
