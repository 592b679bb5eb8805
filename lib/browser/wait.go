package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

var ErrCloudflareTimeout = fmt.Errorf("cloudflare challenge did not clear")
var ErrTurnstileTimeout = fmt.Errorf("turnstile token never appeared")

// onCloudflareInterstitial reports whether the page is still the cloudflare
// "Checking your browser" interstitial rather than panel content.
const cloudflareCheckScript = `() => {
	if (document.querySelector('#challenge-running')) return true;
	const title = document.title || '';
	if (title.includes('Just a moment')) return true;
	const body = document.body ? document.body.innerText : '';
	return body.includes('Checking your browser') || body.includes('Verifying you are human');
}`

// WaitForCloudflare polls until the cloudflare interstitial clears or the
// deadline passes. The interstitial reloads the page on its own, so this
// only observes.
func WaitForCloudflare(ctx context.Context, page playwright.Page, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		result, err := page.Evaluate(cloudflareCheckScript)
		if err == nil {
			blocked, ok := result.(bool)
			if ok && !blocked {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return ErrCloudflareTimeout
}

const turnstileTokenScript = `() => {
	const input = document.querySelector('input[name="cf-turnstile-response"]');
	return input ? input.value : '';
}`

// WaitForTurnstile polls the hidden turnstile response input until the
// widget solves itself. Tokens are long strings, anything 10 chars or
// shorter is the placeholder some panels prefill.
func WaitForTurnstile(ctx context.Context, page playwright.Page, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		result, err := page.Evaluate(turnstileTokenScript)
		if err == nil {
			token, ok := result.(string)
			if ok && len(token) > 10 {
				return token, nil
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return "", ErrTurnstileTimeout
}

// InjectTurnstileToken writes an externally solved token into the hidden
// response input and fires the callback the widget would have fired.
func InjectTurnstileToken(page playwright.Page, token string) error {
	script := `(token) => {
		const input = document.querySelector('input[name="cf-turnstile-response"]');
		if (input) input.value = token;
		if (window.turnstileCallback) window.turnstileCallback(token);
	}`
	_, err := page.Evaluate(script, token)
	return err
}

// WaitForText polls the page body for a substring. Useful when a panel
// swaps content in with javascript after load.
func WaitForText(ctx context.Context, page playwright.Page, text string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		body, err := page.InnerText("body")
		if err == nil && strings.Contains(body, text) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return fmt.Errorf("%q never appeared on the page", text)
}

// SettleAfterAction waits for the network to go idle after a click,
// falling back to a fixed delay when the page never settles. Some panels
// keep a websocket open which defeats networkidle.
func SettleAfterAction(page playwright.Page) {
	err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(10_000),
	})
	if err != nil {
		slog.Debug("page never settled after action, continuing", "err", err)
		page.WaitForTimeout(2_000)
	}
}
