// Package katabump renews servers on dashboard.katabump.com. Login is
// email/password, renewal lives in a modal guarded by a cloudflare
// turnstile widget that sometimes needs an external solver.
package katabump

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/uzx-v/renewbot/lib/browser"
	"github.com/uzx-v/renewbot/lib/captcha/capsolver"
	"github.com/uzx-v/renewbot/lib/expiry"
	"github.com/uzx-v/renewbot/lib/renew"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/katabump")

var LoginFailed = fmt.Errorf("katabump rejected the credentials")

const turnstileSiteKey = "0x4AAAAAAA1IssKDXD0TRMjP"

type Options struct {
	Email    string
	Password string
	ServerId string
	// Solver is optional; without it a stuck turnstile ends the attempt.
	Solver *capsolver.Client
	// BaseUrl defaults to the production dashboard.
	BaseUrl string
}

type Scraper struct {
	opts Options
}

func New(opts Options) Scraper {
	if opts.BaseUrl == "" {
		opts.BaseUrl = "https://dashboard.katabump.com"
	}
	return Scraper{opts: opts}
}

func (s Scraper) Name() string {
	return "katabump"
}

func (s Scraper) serverUrl() string {
	return fmt.Sprintf("%s/servers/edit?id=%s", s.opts.BaseUrl, s.opts.ServerId)
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

	err = s.login(ctx, session)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return []renew.Outcome{s.failure(session, renew.StatusLoginFailed, err.Error())}, nil
	}

	err = session.Goto(s.serverUrl(), time.Second*90)
	if err != nil {
		return nil, fmt.Errorf("open server page: %w", err)
	}
	session.Page.WaitForTimeout(2000)

	html, err := session.Page.Content()
	if err != nil {
		return nil, fmt.Errorf("read server page: %w", err)
	}
	before, haveBefore := extractExpiry(html)

	outcome := renew.Outcome{Target: s.opts.ServerId}
	if haveBefore {
		outcome.ExpiresAt = before
		outcome.DaysLeft = expiry.DaysUntil(before)
		slog.InfoContext(
			ctx, "read server state",
			"provider", s.Name(),
			"server_id", s.opts.ServerId,
			"expires", before.Format("2006-01-02"),
			"days_left", outcome.DaysLeft,
		)
		if !params.Force && outcome.DaysLeft > params.Threshold() {
			outcome.Status = renew.StatusSkipped
			outcome.Detail = fmt.Sprintf("%d days left, renewing within %d", outcome.DaysLeft, params.Threshold())
			return []renew.Outcome{outcome}, nil
		}
	}

	status, detail := s.renewThroughModal(ctx, session, before, haveBefore, &outcome)
	outcome.Status = status
	outcome.Detail = detail
	if status != renew.StatusRenewed && status != renew.StatusSkipped {
		failed := s.failure(session, status, detail)
		failed.ExpiresAt = outcome.ExpiresAt
		failed.DaysLeft = outcome.DaysLeft
		return []renew.Outcome{failed}, nil
	}
	if status == renew.StatusRenewed {
		if shot, err := session.Screenshot(); err == nil {
			outcome.Screenshot = shot
		}
	}
	return []renew.Outcome{outcome}, nil
}

func (s Scraper) login(ctx context.Context, session *browser.Session) error {
	ctx, span := tracer.Start(ctx, "login")
	defer span.End()

	err := session.Goto(s.opts.BaseUrl+"/auth/login", time.Second*60)
	if err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	err = browser.WaitForCloudflare(ctx, session.Page, time.Second*120)
	if err != nil {
		return err
	}

	err = session.Page.Locator(`input[name="email"], input[type="email"]`).First().Fill(s.opts.Email)
	if err != nil {
		return fmt.Errorf("fill email: %w", err)
	}
	err = session.Page.Locator(`input[name="password"], input[type="password"]`).First().Fill(s.opts.Password)
	if err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	err = session.Page.Locator(`button[type="submit"], input[type="submit"]`).First().Click()
	if err != nil {
		return fmt.Errorf("submit login: %w", err)
	}

	session.Page.WaitForTimeout(3000)
	browser.SettleAfterAction(session.Page)

	if strings.Contains(session.Page.URL(), "/auth/login") {
		return LoginFailed
	}
	return nil
}

// renewThroughModal opens the renew modal, clears the turnstile and
// submits. The panel reports the result through a redirect query
// parameter, page content, or not at all.
func (s Scraper) renewThroughModal(ctx context.Context, session *browser.Session, before time.Time, haveBefore bool, outcome *renew.Outcome) (renew.Status, string) {
	ctx, span := tracer.Start(ctx, "renewThroughModal")
	defer span.End()

	button := session.Page.Locator(`button[data-bs-target="#renew-modal"]`)
	count, err := button.Count()
	if err != nil || count == 0 {
		button = session.Page.Locator(`button.btn-outline-primary:has-text("Renew")`)
		count, err = button.Count()
		if err != nil || count == 0 {
			span.SetStatus(codes.Error, "renew button not found")
			return renew.StatusFailed, "renew button not found"
		}
	}
	err = button.First().Click()
	if err != nil {
		return renew.StatusFailed, fmt.Sprintf("renew button click failed: %s", err)
	}
	session.Page.WaitForTimeout(1500)

	err = session.Page.Locator("#renew-modal").WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(5000),
	})
	if err != nil {
		return renew.StatusFailed, "renew modal did not open"
	}

	status, detail := s.clearTurnstile(ctx, session)
	if status != "" {
		return status, detail
	}

	submit := session.Page.Locator(`#renew-modal button[type="submit"]`)
	count, err = submit.Count()
	if err != nil || count == 0 {
		submit = session.Page.Locator("#renew-modal .modal-footer button.btn-primary")
	}
	err = submit.First().Click()
	if err != nil {
		return renew.StatusFailed, fmt.Sprintf("submit click failed: %s", err)
	}
	session.Page.WaitForTimeout(3000)
	browser.SettleAfterAction(session.Page)

	currentUrl := session.Page.URL()
	html, _ := session.Page.Content()

	if urlError, ok := extractUrlError(currentUrl); ok {
		return renew.Classify(urlError), urlError
	}
	if strings.Contains(currentUrl, "renew=success") || strings.Contains(strings.ToLower(html), "success") {
		after, ok := extractExpiry(html)
		if ok {
			outcome.ExpiresAt = after
			outcome.DaysLeft = expiry.DaysUntil(after)
		}
		return renew.StatusRenewed, ""
	}

	// no explicit verdict, reload and compare expiry dates
	err = session.Goto(s.serverUrl(), time.Second*60)
	if err != nil {
		return renew.StatusUnknown, "could not reload to verify expiry"
	}
	html, err = session.Page.Content()
	if err != nil {
		return renew.StatusUnknown, "could not reload to verify expiry"
	}
	after, ok := extractExpiry(html)
	if !ok {
		return renew.StatusUnknown, "expiry not visible after renewal"
	}
	outcome.ExpiresAt = after
	outcome.DaysLeft = expiry.DaysUntil(after)
	if haveBefore && after.After(before) {
		return renew.StatusRenewed, fmt.Sprintf("expiry moved %d days", expiry.DaysBetween(before, after))
	}
	return renew.StatusUnknown, "expiry did not change"
}

// clearTurnstile waits for the widget to solve itself, then falls back to
// capsolver. Returns an empty status when the path is clear.
func (s Scraper) clearTurnstile(ctx context.Context, session *browser.Session) (renew.Status, string) {
	ctx, span := tracer.Start(ctx, "clearTurnstile")
	defer span.End()

	widget := session.Page.Locator(".cf-turnstile, [data-sitekey]")
	count, err := widget.Count()
	if err != nil || count == 0 {
		return "", ""
	}
	slog.InfoContext(ctx, "turnstile widget present, waiting for it to solve", "provider", s.Name())

	token, err := browser.WaitForTurnstile(ctx, session.Page, time.Second*15)
	if err == nil && token != "" {
		return "", ""
	}

	if s.opts.Solver == nil {
		span.SetStatus(codes.Error, "turnstile unsolved and no solver configured")
		return renew.StatusCaptchaRequired, "turnstile unsolved and no solver configured"
	}

	token, err = s.opts.Solver.SolveTurnstile(ctx, s.serverUrl(), turnstileSiteKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "capsolver failed")
		return renew.StatusCaptchaRequired, fmt.Sprintf("capsolver failed: %s", err)
	}
	err = browser.InjectTurnstileToken(session.Page, token)
	if err != nil {
		return renew.StatusCaptchaRequired, fmt.Sprintf("token injection failed: %s", err)
	}
	slog.InfoContext(ctx, "injected solved turnstile token", "provider", s.Name())
	return "", ""
}
