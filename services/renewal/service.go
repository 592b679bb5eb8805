// Package renewal orchestrates a renewal run: it walks the configured
// providers, opens browser sessions over each network route until one
// yields a conclusive outcome, persists attempts, rotates reissued
// session secrets and reports to the notification channels.
package renewal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/uzx-v/renewbot/lib/browser"
	"github.com/uzx-v/renewbot/lib/expiry"
	"github.com/uzx-v/renewbot/lib/ghsecrets"
	"github.com/uzx-v/renewbot/lib/notify"
	"github.com/uzx-v/renewbot/lib/proxy"
	"github.com/uzx-v/renewbot/lib/renew"
	"github.com/uzx-v/renewbot/lib/renewstore"
	"github.com/uzx-v/renewbot/lib/timezone"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/renewal")

// Provider is one hosting panel scraper.
type Provider interface {
	Name() string
	Renew(ctx context.Context, newSession browser.Factory, params renew.Params) ([]renew.Outcome, error)
}

// Registration binds a provider to its run policy.
type Registration struct {
	Provider Provider
	// SecretName is the repository actions secret holding this provider's
	// session cookie. Rotated when a run reports a reissued value. Empty
	// disables rotation.
	SecretName string
	// ProxyOnly skips the direct route, for panels that block the
	// runner's region outright.
	ProxyOnly bool
}

type Options struct {
	Providers []Registration
	Chain     proxy.Chain
	// Browser is the base launch profile, the chain fills in ProxyServer.
	Browser  browser.Options
	Store    renewstore.Store
	Notifier notify.Notifier
	// Secrets is nil when cookie rotation is not configured.
	Secrets *ghsecrets.Client
	Params  renew.Params
	// ScreenshotDir keeps failure screenshots on disk. Empty disables
	// persistence, screenshots still travel with notifications.
	ScreenshotDir string
}

type Service struct {
	opts Options
}

func NewService(opts Options) Service {
	return Service{opts: opts}
}

// RunAll renews every registered provider. A provider failing never stops
// the run; the joined error reports which ones did.
func (s Service) RunAll(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "RunAll")
	defer span.End()

	var errs []error
	for _, reg := range s.opts.Providers {
		err := s.RunProvider(ctx, reg)
		if err != nil {
			slog.ErrorContext(ctx, "provider run failed", "provider", reg.Provider.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", reg.Provider.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Prober is implemented by providers that can read the current
// expiration over plain http, without paying for a browser launch.
type Prober interface {
	Probe(ctx context.Context) (target string, expiresAt time.Time, err error)
}

type ProbeResult struct {
	Provider  string
	Target    string
	ExpiresAt time.Time
	Err       error
}

// ProbeAll checks the live expiration of every provider that supports
// the http fast path.
func (s Service) ProbeAll(ctx context.Context) []ProbeResult {
	ctx, span := tracer.Start(ctx, "ProbeAll")
	defer span.End()

	var out []ProbeResult
	for _, reg := range s.opts.Providers {
		prober, ok := reg.Provider.(Prober)
		if !ok {
			continue
		}
		target, expiresAt, err := prober.Probe(ctx)
		if err != nil {
			span.RecordError(err)
		}
		out = append(out, ProbeResult{
			Provider:  reg.Provider.Name(),
			Target:    target,
			ExpiresAt: expiresAt,
			Err:       err,
		})
	}
	return out
}

// probeSkip decides over plain http whether the renewal can be skipped
// without launching a browser. Probe failures just fall through to the
// browser path.
func (s Service) probeSkip(ctx context.Context, reg Registration) (renew.Outcome, bool) {
	prober, ok := reg.Provider.(Prober)
	if !ok || s.opts.Params.Force {
		return renew.Outcome{}, false
	}

	target, expiresAt, err := prober.Probe(ctx)
	if err != nil {
		slog.DebugContext(ctx, "probe failed, using the browser path",
			"provider", reg.Provider.Name(), "err", err)
		return renew.Outcome{}, false
	}

	daysLeft := expiry.DaysUntil(expiresAt)
	if daysLeft <= s.opts.Params.Threshold() {
		return renew.Outcome{}, false
	}
	slog.InfoContext(
		ctx, "probe shows enough days left, skipping browser run",
		"provider", reg.Provider.Name(),
		"target", target,
		"days_left", daysLeft,
	)
	return renew.Outcome{
		Target:    target,
		Status:    renew.StatusSkipped,
		Detail:    fmt.Sprintf("%d days left, renewing within %d", daysLeft, s.opts.Params.Threshold()),
		ExpiresAt: expiresAt,
		DaysLeft:  daysLeft,
	}, true
}

// RunNamed renews a single provider by name.
func (s Service) RunNamed(ctx context.Context, name string) error {
	for _, reg := range s.opts.Providers {
		if reg.Provider.Name() == name {
			return s.RunProvider(ctx, reg)
		}
	}
	return fmt.Errorf("no enabled provider named %q", name)
}

func (s Service) routesFor(reg Registration) []string {
	routes := s.opts.Chain.Routes()
	if !reg.ProxyOnly {
		return routes
	}
	var filtered []string
	for _, name := range routes {
		if name != "direct" {
			filtered = append(filtered, name)
		}
	}
	if len(filtered) == 0 {
		// no proxy configured, the direct route is all there is
		return routes
	}
	return filtered
}

// RunProvider renews one provider, walking the route chain until the
// outcomes stop being retryable.
func (s Service) RunProvider(ctx context.Context, reg Registration) error {
	ctx, span := tracer.Start(ctx, "RunProvider")
	defer span.End()
	span.SetAttributes(attribute.String("provider", reg.Provider.Name()))

	if outcome, ok := s.probeSkip(ctx, reg); ok {
		s.finalize(ctx, reg, []renew.Outcome{outcome})
		return nil
	}

	routes := s.routesFor(reg)

	var outcomes []renew.Outcome
	var lastErr error
	for i, routeName := range routes {
		slog.InfoContext(
			ctx, "attempting renewal",
			"provider", reg.Provider.Name(),
			"route", routeName,
			"attempt", i+1,
		)

		route, err := s.opts.Chain.Open(ctx, routeName)
		if err != nil {
			lastErr = fmt.Errorf("open route %q: %w", routeName, err)
			slog.WarnContext(ctx, "route unavailable", "route", routeName, "err", err)
			continue
		}

		browserOpts := s.opts.Browser
		browserOpts.ProxyServer = route.Server
		factory := func(ctx context.Context) (*browser.Session, error) {
			return browser.NewSession(ctx, browserOpts)
		}

		outcomes, err = reg.Provider.Renew(ctx, factory, s.opts.Params)
		route.Close()
		if err != nil {
			lastErr = err
			slog.WarnContext(
				ctx, "renewal attempt errored",
				"provider", reg.Provider.Name(),
				"route", routeName,
				"err", err,
			)
			continue
		}
		lastErr = nil

		if !anyRetryable(outcomes) || i == len(routes)-1 {
			break
		}
		slog.InfoContext(
			ctx, "outcome may improve on another route",
			"provider", reg.Provider.Name(),
			"route", routeName,
		)
	}

	if lastErr != nil && len(outcomes) == 0 {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
		s.finalize(ctx, reg, []renew.Outcome{{
			Status: renew.StatusFailed,
			Detail: lastErr.Error(),
		}})
		return lastErr
	}
	s.finalize(ctx, reg, outcomes)

	if failed := failedTargets(outcomes); len(failed) > 0 {
		err := fmt.Errorf("renewal failed for %s", strings.Join(failed, ", "))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func anyRetryable(outcomes []renew.Outcome) bool {
	for _, o := range outcomes {
		if o.Status.Retryable() {
			return true
		}
	}
	return false
}

func failedTargets(outcomes []renew.Outcome) []string {
	var failed []string
	for _, o := range outcomes {
		switch o.Status {
		case renew.StatusFailed, renew.StatusLoginFailed, renew.StatusCaptchaRequired:
			target := o.Target
			if target == "" {
				target = "unknown target"
			}
			failed = append(failed, target)
		}
	}
	return failed
}

// finalize persists, notifies and rotates secrets for a provider's
// outcomes. Failures here are logged, the renewal itself already
// happened.
func (s Service) finalize(ctx context.Context, reg Registration, outcomes []renew.Outcome) {
	ctx, span := tracer.Start(ctx, "finalize")
	defer span.End()

	for _, outcome := range outcomes {
		_, err := s.opts.Store.RecordAttempt(ctx, renewstore.Attempt{
			Provider:  reg.Provider.Name(),
			Target:    outcome.Target,
			Status:    string(outcome.Status),
			Detail:    outcome.Detail,
			ExpiresAt: outcome.ExpiresAt,
			DaysLeft:  int64(outcome.DaysLeft),
		})
		if err != nil {
			span.RecordError(err)
			slog.ErrorContext(ctx, "failed to record attempt", "provider", reg.Provider.Name(), "err", err)
		}

		if outcome.RotatedCookies != "" {
			s.rotateSecret(ctx, reg, outcome.RotatedCookies)
		}

		if len(outcome.Screenshot) > 0 {
			s.saveScreenshot(ctx, reg.Provider.Name(), outcome)
		}
	}

	if s.opts.Notifier == nil || len(outcomes) == 0 {
		return
	}
	event := eventFor(reg.Provider.Name(), outcomes[0])
	if len(outcomes) > 1 {
		event = combinedEvent(reg.Provider.Name(), outcomes)
	}
	err := s.opts.Notifier.Notify(ctx, event)
	if err != nil {
		span.RecordError(err)
	}
}

// saveScreenshot writes a failure screenshot under ScreenshotDir,
// named after the provider, target and attempt time.
func (s Service) saveScreenshot(ctx context.Context, provider string, outcome renew.Outcome) {
	if s.opts.ScreenshotDir == "" {
		return
	}
	err := os.MkdirAll(s.opts.ScreenshotDir, 0755)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create screenshot directory", "err", err)
		return
	}
	name := fmt.Sprintf(
		"%s-%s-%s.png",
		provider,
		sanitizeName(outcome.Target),
		timezone.Now().Format("20060102-150405"),
	)
	path := filepath.Join(s.opts.ScreenshotDir, name)
	err = os.WriteFile(path, outcome.Screenshot, 0644)
	if err != nil {
		slog.ErrorContext(ctx, "failed to write screenshot", "path", path, "err", err)
		return
	}
	slog.InfoContext(ctx, "saved screenshot", "path", path)
}

func sanitizeName(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' {
			return r
		}
		return '_'
	}, s)
}

func (s Service) rotateSecret(ctx context.Context, reg Registration, value string) {
	if s.opts.Secrets == nil || reg.SecretName == "" {
		slog.DebugContext(ctx, "session cookie rotated but secret updates are not configured",
			"provider", reg.Provider.Name())
		return
	}
	err := s.opts.Secrets.UpdateSecret(ctx, reg.SecretName, value)
	if err != nil {
		slog.ErrorContext(
			ctx, "failed to rotate session secret",
			"provider", reg.Provider.Name(),
			"secret", reg.SecretName,
			"err", err,
		)
		return
	}
	slog.InfoContext(
		ctx, "rotated session secret",
		"provider", reg.Provider.Name(),
		"secret", reg.SecretName,
	)
}

func eventFor(provider string, outcome renew.Outcome) notify.Event {
	event := notify.Event{
		Provider:   provider,
		Target:     outcome.Target,
		Status:     string(outcome.Status),
		Screenshot: outcome.Screenshot,
		At:         timezone.Now(),
	}

	switch outcome.Status {
	case renew.StatusRenewed:
		event.Subject = "renewed"
		event.Message = "Renewal confirmed."
	case renew.StatusSkipped:
		event.Subject = "no renewal needed"
		event.Message = outcome.Detail
	case renew.StatusCooldown, renew.StatusAlreadyRenewed:
		event.Subject = "already renewed"
		event.Message = outcome.Detail
	default:
		event.Subject = "renewal failed"
		event.Message = outcome.Detail
	}

	if !outcome.ExpiresAt.IsZero() {
		event.Message += fmt.Sprintf(
			"\nExpires %s (%s left)",
			outcome.ExpiresAt.Format("2006-01-02 15:04"),
			expiry.Humanize(outcome.ExpiresAt.Sub(timezone.Now())),
		)
	}
	return event
}

// combinedEvent folds a multi-server run into a single notification,
// one line per target. The first failure screenshot wins.
func combinedEvent(provider string, outcomes []renew.Outcome) notify.Event {
	event := notify.Event{
		Provider: provider,
		Status:   string(aggregateStatus(outcomes)),
		Subject:  fmt.Sprintf("%d servers processed", len(outcomes)),
		At:       timezone.Now(),
	}

	var lines []string
	for _, outcome := range outcomes {
		line := fmt.Sprintf("%s: %s", outcome.Target, outcome.Status)
		if outcome.Detail != "" {
			line += " (" + outcome.Detail + ")"
		}
		if !outcome.ExpiresAt.IsZero() {
			line += ", expires " + outcome.ExpiresAt.Format("2006-01-02")
		}
		lines = append(lines, line)

		if outcome.Status.Retryable() || outcome.Status == renew.StatusLoginFailed {
			event.Subject = fmt.Sprintf("%d servers processed, some failed", len(outcomes))
			if event.Screenshot == nil {
				event.Screenshot = outcome.Screenshot
			}
		}
	}
	event.Message = strings.Join(lines, "\n")
	return event
}

// aggregateStatus summarizes a multi-server run: any failure wins, then
// any confirmed renewal, otherwise the first outcome speaks for all.
func aggregateStatus(outcomes []renew.Outcome) renew.Status {
	status := outcomes[0].Status
	renewed := false
	for _, o := range outcomes {
		if o.Status.Retryable() || o.Status == renew.StatusLoginFailed {
			return o.Status
		}
		if o.Status == renew.StatusRenewed {
			renewed = true
		}
	}
	if renewed {
		return renew.StatusRenewed
	}
	return status
}
