// Package pella renews servers on pella.app. Login goes through a
// clerk.dev two-step form, renewal is a set of one-shot links on the
// server page, and expiry is a live countdown rather than a date.
package pella

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mazen160/go-random"
	"github.com/uzx-v/renewbot/lib/browser"
	"github.com/uzx-v/renewbot/lib/renew"
	"github.com/uzx-v/renewbot/lib/timezone"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/pella")

var LoginFailed = fmt.Errorf("pella login never reached the home page")

type Options struct {
	Accounts []Account
	// BaseUrl defaults to the production site.
	BaseUrl string
}

type Scraper struct {
	opts Options
}

func New(opts Options) Scraper {
	if opts.BaseUrl == "" {
		opts.BaseUrl = "https://www.pella.app"
	}
	return Scraper{opts: opts}
}

func (s Scraper) Name() string {
	return "pella"
}

// continueButtonSelectors cover the clerk form's primary button across
// its markup variants.
var continueButtonSelectors = []string{
	"button.cl-formButtonPrimary",
	`button[data-localization-key="formButtonPrimary"]`,
	`button[type="submit"]`,
	"form button",
}

// Renew runs every configured account in sequence, one fresh browser
// session each, with a short random pause between accounts so the runs
// don't look scripted.
func (s Scraper) Renew(ctx context.Context, newSession browser.Factory, params renew.Params) ([]renew.Outcome, error) {
	ctx, span := tracer.Start(ctx, "Renew")
	defer span.End()
	span.SetAttributes(attribute.Int("accounts", len(s.opts.Accounts)))

	var outcomes []renew.Outcome
	for i, account := range s.opts.Accounts {
		if i > 0 {
			pause, err := random.IntRange(3, 10)
			if err != nil {
				pause = 5
			}
			select {
			case <-ctx.Done():
				return outcomes, ctx.Err()
			case <-time.After(time.Second * time.Duration(pause)):
			}
		}

		outcome := s.renewAccount(ctx, newSession, account, params)
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (s Scraper) renewAccount(ctx context.Context, newSession browser.Factory, account Account, params renew.Params) renew.Outcome {
	ctx, span := tracer.Start(ctx, "renewAccount")
	defer span.End()

	target := maskEmail(account.Email)
	span.SetAttributes(attribute.String("account", target))

	session, err := newSession(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open browser session")
		return renew.Outcome{Target: target, Status: renew.StatusFailed, Detail: err.Error()}
	}
	defer session.Close()

	fail := func(status renew.Status, detail string) renew.Outcome {
		span.SetStatus(codes.Error, detail)
		outcome := renew.Outcome{Target: target, Status: status, Detail: detail}
		shot, err := session.Screenshot()
		if err == nil {
			outcome.Screenshot = shot
		}
		return outcome
	}

	err = s.login(ctx, session, account)
	if err != nil {
		return fail(renew.StatusLoginFailed, err.Error())
	}

	serverUrl, err := s.findServerUrl(ctx, session)
	if err != nil {
		return fail(renew.StatusFailed, err.Error())
	}

	source, err := session.Page.Content()
	if err != nil {
		return fail(renew.StatusFailed, fmt.Sprintf("read server page: %s", err))
	}
	remaining, haveRemaining := extractRemaining(source)
	if !haveRemaining {
		return fail(renew.StatusFailed, "expiry countdown not found on server page")
	}

	outcome := renew.Outcome{
		Target:    target,
		ExpiresAt: timezone.Now().Add(remaining),
		DaysLeft:  int(remaining / (24 * time.Hour)),
	}
	slog.InfoContext(
		ctx, "read server state",
		"provider", s.Name(),
		"account", target,
		"remaining", remaining.String(),
	)
	if !params.Force && outcome.DaysLeft > params.Threshold() {
		outcome.Status = renew.StatusSkipped
		outcome.Detail = fmt.Sprintf("%d days left, renewing within %d", outcome.DaysLeft, params.Threshold())
		return outcome
	}

	status, detail := s.followRenewLinks(ctx, session, serverUrl, remaining, &outcome)
	outcome.Status = status
	outcome.Detail = detail
	if status != renew.StatusRenewed && status != renew.StatusSkipped && status != renew.StatusCooldown {
		failed := fail(status, detail)
		failed.ExpiresAt = outcome.ExpiresAt
		failed.DaysLeft = outcome.DaysLeft
		return failed
	}
	if status == renew.StatusRenewed {
		if shot, err := session.Screenshot(); err == nil {
			outcome.Screenshot = shot
		}
	}
	return outcome
}

// login drives the clerk two-step form: identifier, continue, password,
// continue, then poll for the home page.
func (s Scraper) login(ctx context.Context, session *browser.Session, account Account) error {
	ctx, span := tracer.Start(ctx, "login")
	defer span.End()

	err := session.Goto(s.opts.BaseUrl+"/login", time.Second*60)
	if err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	session.Page.WaitForTimeout(3000)

	err = s.fillByScript(session, `input[name="identifier"]`, account.Email)
	if err != nil {
		return fmt.Errorf("fill email: %w", err)
	}
	err = s.clickContinue(session)
	if err != nil {
		return fmt.Errorf("continue after email: %w", err)
	}
	session.Page.WaitForTimeout(2000)

	err = s.fillByScript(session, `input[type="password"]`, account.Password)
	if err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	err = s.clickContinue(session)
	if err != nil {
		return fmt.Errorf("continue after password: %w", err)
	}

	deadline := time.Now().Add(time.Second * 20)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second * 2):
		}

		currentUrl := session.Page.URL()
		if strings.Contains(currentUrl, "/home") {
			return nil
		}
		if !strings.Contains(currentUrl, "/login") && !strings.Contains(currentUrl, "/sign-in") {
			session.Goto(s.opts.BaseUrl+"/home", time.Second*30)
			if strings.Contains(session.Page.URL(), "/home") {
				return nil
			}
		}
	}
	span.SetStatus(codes.Error, LoginFailed.Error())
	return LoginFailed
}

// fillByScript sets an input's value through javascript and fires the
// input/change events clerk listens for. Typing into clerk inputs from
// automation is flaky.
func (s Scraper) fillByScript(session *browser.Session, selector, value string) error {
	script := `([selector, value]) => {
		const el = document.querySelector(selector);
		if (!el) return false;
		el.value = value;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	}`
	result, err := session.Page.Evaluate(script, []string{selector, value})
	if err != nil {
		return err
	}
	filled, ok := result.(bool)
	if !ok || !filled {
		return fmt.Errorf("%s not found", selector)
	}
	return nil
}

func (s Scraper) clickContinue(session *browser.Session) error {
	for _, selector := range continueButtonSelectors {
		locator := session.Page.Locator(selector).First()
		count, err := session.Page.Locator(selector).Count()
		if err != nil || count == 0 {
			continue
		}
		_, err = session.Page.Evaluate(
			`(selector) => { document.querySelector(selector).click(); }`, selector,
		)
		if err == nil {
			return nil
		}
		err = locator.Click()
		if err == nil {
			return nil
		}
	}
	// last resort, submit the form directly
	_, err := session.Page.Evaluate(`() => { document.querySelector('form').submit(); }`)
	if err != nil {
		return fmt.Errorf("no clickable continue button")
	}
	return nil
}

func (s Scraper) findServerUrl(ctx context.Context, session *browser.Session) (string, error) {
	_, span := tracer.Start(ctx, "findServerUrl")
	defer span.End()

	if !strings.Contains(session.Page.URL(), "/home") {
		err := session.Goto(s.opts.BaseUrl+"/home", time.Second*30)
		if err != nil {
			return "", fmt.Errorf("open home page: %w", err)
		}
	}

	link := session.Page.Locator(`a[href*="/server/"]`).First()
	err := link.Click()
	if err != nil {
		return "", fmt.Errorf("no server link on home page: %w", err)
	}
	session.Page.WaitForTimeout(2000)
	browser.SettleAfterAction(session.Page)

	serverUrl := session.Page.URL()
	if !strings.Contains(serverUrl, "/server/") {
		return "", fmt.Errorf("server link led to %s", serverUrl)
	}
	return serverUrl, nil
}

const activeRenewLinks = `a[href*="/renew/"]:not(.opacity-50):not(.pointer-events-none)`
const disabledRenewLinks = `a[href*="/renew/"].opacity-50`

// followRenewLinks visits every active renew link, then verifies the
// countdown moved. Disabled links mean today's renewal already happened.
func (s Scraper) followRenewLinks(ctx context.Context, session *browser.Session, serverUrl string, before time.Duration, outcome *renew.Outcome) (renew.Status, string) {
	ctx, span := tracer.Start(ctx, "followRenewLinks")
	defer span.End()

	renewed := 0
	// each renewal consumes its link; cap the loop in case the page
	// keeps serving fresh ones
	for renewed < 10 {
		select {
		case <-ctx.Done():
			return renew.StatusFailed, ctx.Err().Error()
		default:
		}

		links := session.Page.Locator(activeRenewLinks)
		count, err := links.Count()
		if err != nil || count == 0 {
			break
		}

		href, err := links.First().GetAttribute("href")
		if err != nil || href == "" {
			break
		}
		if strings.HasPrefix(href, "/") {
			href = s.opts.BaseUrl + href
		}

		slog.InfoContext(ctx, "following renew link", "provider", s.Name(), "n", renewed+1)
		err = session.Goto(href, time.Second*30)
		if err != nil {
			slog.WarnContext(ctx, "renew link failed", "err", err)
		}
		session.Page.WaitForTimeout(8000)
		renewed++

		err = session.Goto(serverUrl, time.Second*30)
		if err != nil {
			return renew.StatusUnknown, "could not return to server page"
		}
		session.Page.WaitForTimeout(3000)
	}

	if renewed == 0 {
		disabled, err := session.Page.Locator(disabledRenewLinks).Count()
		if err == nil && disabled > 0 {
			return renew.StatusCooldown, "already renewed today"
		}
		return renew.StatusFailed, "no renew links on server page"
	}

	session.Page.WaitForTimeout(2000)
	source, err := session.Page.Content()
	if err != nil {
		return renew.StatusUnknown, "could not verify countdown"
	}
	after, ok := extractRemaining(source)
	if !ok {
		return renew.StatusUnknown, "countdown not visible after renewal"
	}

	outcome.ExpiresAt = timezone.Now().Add(after)
	outcome.DaysLeft = int(after / (24 * time.Hour))
	if after > before {
		return renew.StatusRenewed, fmt.Sprintf("countdown moved from %s to %s", before, after)
	}
	return renew.StatusUnknown, fmt.Sprintf("countdown did not move (%s)", after)
}
