// Package browser wraps playwright-go with the launch profile the hosting
// panels tolerate: hardened chromium flags, a desktop user agent and the
// navigator.webdriver patch. Panels behind cloudflare reject anything that
// looks like a stock headless browser.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/browser")

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var launchArgs = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-blink-features=AutomationControlled",
	"--disable-gpu",
}

const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
window.chrome = { runtime: {} };
`

type Options struct {
	// Headless defaults to true, set Headful to run with a window.
	Headful bool
	// ExecutablePath overrides the bundled chromium. Falls back to
	// $PLAYWRIGHT_EXECUTABLE_PATH, then the bundled browser.
	ExecutablePath string
	// ProxyServer routes all browser traffic, e.g. "socks5://127.0.0.1:10808".
	ProxyServer string
	UserAgent   string
}

// Factory creates sessions on demand. Scrapers that cycle through
// multiple accounts open one session per account.
type Factory func(ctx context.Context) (*Session, error)

// Session owns one playwright runtime, one chromium instance and one page.
// The scrapers drive Page directly; Session handles lifecycle, cookies and
// screenshots.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	Page    playwright.Page
}

func NewSession(ctx context.Context, opts Options) (*Session, error) {
	ctx, span := tracer.Start(ctx, "NewSession")
	defer span.End()

	pw, err := playwright.Run()
	if err != nil {
		span.SetStatus(codes.Error, "start playwright")
		span.RecordError(err)
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	launchOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(!opts.Headful),
		Args:     launchArgs,
	}
	executablePath := opts.ExecutablePath
	if executablePath == "" {
		executablePath = os.Getenv("PLAYWRIGHT_EXECUTABLE_PATH")
	}
	if executablePath != "" {
		launchOptions.ExecutablePath = &executablePath
	}
	if opts.ProxyServer != "" {
		launchOptions.Proxy = &playwright.Proxy{Server: opts.ProxyServer}
		slog.InfoContext(ctx, "launching browser through proxy", "server", opts.ProxyServer)
	}

	chromium, err := pw.Chromium.Launch(launchOptions)
	if err != nil {
		pw.Stop()
		span.SetStatus(codes.Error, "launch chromium")
		span.RecordError(err)
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	page, err := chromium.NewPage(playwright.BrowserNewPageOptions{
		UserAgent: &userAgent,
		Viewport:  &playwright.Size{Width: 1280, Height: 720},
	})
	if err != nil {
		chromium.Close()
		pw.Stop()
		span.SetStatus(codes.Error, "create page")
		span.RecordError(err)
		return nil, fmt.Errorf("create page: %w", err)
	}
	err = page.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)})
	if err != nil {
		chromium.Close()
		pw.Stop()
		return nil, fmt.Errorf("add stealth script: %w", err)
	}
	page.SetDefaultTimeout(30_000)

	return &Session{pw: pw, browser: chromium, Page: page}, nil
}

func (s *Session) Close() {
	if err := s.browser.Close(); err != nil {
		slog.Warn("failed to close browser", "err", err)
	}
	if err := s.pw.Stop(); err != nil {
		slog.Warn("failed to stop playwright", "err", err)
	}
}

// AddCookies injects cookies for the given domain before navigation.
func (s *Session) AddCookies(domain string, cookies []*http.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	path := "/"
	optional := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		d := domain
		if c.Domain != "" {
			d = c.Domain
		}
		optional = append(optional, playwright.OptionalCookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: &d,
			Path:   &path,
		})
	}
	return s.Page.Context().AddCookies(optional)
}

// CookieString renders the session's live cookies for a domain back into
// "name=value; ..." form, used to rotate stored secrets after a panel
// refreshes them.
func (s *Session) CookieString(domain string) (string, error) {
	cookies, err := s.Page.Context().Cookies()
	if err != nil {
		return "", err
	}
	var parts []string
	for _, c := range cookies {
		if !strings.HasSuffix(c.Domain, domain) {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", c.Name, c.Value))
	}
	return strings.Join(parts, "; "), nil
}

// Screenshot captures the full page as png. Used for failure reports.
func (s *Session) Screenshot() ([]byte, error) {
	return s.Page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	})
}

// Goto navigates and waits for the network to settle. Panels behind
// cloudflare can take a while on first load.
func (s *Session) Goto(url string, timeout time.Duration) error {
	_, err := s.Page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	return err
}

// Install downloads the chromium revision playwright-go expects. Exposed
// for the cli's setup path.
func Install() error {
	return playwright.Install(&playwright.RunOptions{
		Browsers: []string{"chromium"},
	})
}
