// Package webclient builds the resty clients the panel scrapers use for
// their no-browser fast path. Every client carries a cookie jar, a
// cloudflare-friendly transport and tracing.
package webclient

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	browser "github.com/EDDYCJY/fake-useragent"
	"github.com/go-resty/resty/v2"
	"github.com/uzx-v/renewbot/lib/restyutil"
	"github.com/uzx-v/renewbot/lib/telemetry"
)

const fallbackUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var instrumentOutput restyutil.InstrumentOutput

func SetInstrumentOutput(output restyutil.InstrumentOutput) {
	instrumentOutput = output
}

type Options struct {
	BaseUrl string
	// UserAgent overrides the randomly picked chrome user agent.
	UserAgent string
	// Cookies are seeded into the jar under BaseUrl's host.
	Cookies []*http.Cookie
	// Timeout defaults to 30 seconds.
	Timeout time.Duration
}

func New(opts Options) (*resty.Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if len(opts.Cookies) > 0 {
		jar.SetCookies(baseUrl, opts.Cookies)
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = browser.Chrome()
	}
	if userAgent == "" {
		userAgent = fallbackUserAgent
	}
	client.SetHeader("user-agent", userAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 30
	}
	client.SetTimeout(timeout)

	telemetry.InstrumentResty(client, "webclient/http")
	restyutil.DumpClient(client, instrumentOutput)

	return client, nil
}
