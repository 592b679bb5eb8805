package castlehost

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/uzx-v/renewbot/lib/webclient"
	"go.opentelemetry.io/otel/codes"
)

// Probe reads the current expiration over plain http, no browser. Cheap
// enough to run between renewal passes; falls over to the browser path
// whenever cloudflare intercepts the request.
func (s Scraper) Probe(ctx context.Context) (string, time.Time, error) {
	ctx, span := tracer.Start(ctx, "Probe")
	defer span.End()

	client, err := webclient.New(webclient.Options{
		BaseUrl: s.opts.BaseUrl,
		Cookies: webclient.ParseCookieString(s.opts.CookieString),
	})
	if err != nil {
		return s.opts.ServerId, time.Time{}, err
	}

	res, err := client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/servers/pay/index/%s", s.opts.ServerId))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe request failed")
		return s.opts.ServerId, time.Time{}, err
	}
	if !res.IsSuccess() {
		err := fmt.Errorf("probe %s: status %d", s.opts.ServerId, res.StatusCode())
		span.RecordError(err)
		return s.opts.ServerId, time.Time{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.String()))
	if err != nil {
		return s.opts.ServerId, time.Time{}, fmt.Errorf("parse server page: %w", err)
	}
	if doc.Find(`form[action*="login"], input[name="password"]`).Length() > 0 {
		span.SetStatus(codes.Error, LoginFailed.Error())
		return s.opts.ServerId, time.Time{}, LoginFailed
	}

	expiresAt, ok := extractExpiry(doc.Find("body").Text())
	if !ok {
		return s.opts.ServerId, time.Time{}, fmt.Errorf("expiration not visible on the server page")
	}
	return s.opts.ServerId, expiresAt, nil
}
