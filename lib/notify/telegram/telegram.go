// Package telegram sends renewal reports through the telegram bot api.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/uzx-v/renewbot/lib/notify"
	"github.com/uzx-v/renewbot/lib/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/notify/telegram")

type Options struct {
	Token  string
	ChatId string
	// BaseUrl overrides the bot api host, mainly for tests.
	BaseUrl string
}

type Client struct {
	http   *resty.Client
	chatId string
}

func NewClient(opts Options) *Client {
	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = "https://api.telegram.org"
	}

	client := resty.New()
	client.SetBaseURL(fmt.Sprintf("%s/bot%s", baseUrl, opts.Token))
	client.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(client, "notify/telegram/http")

	return &Client{http: client, chatId: opts.ChatId}
}

type apiResponse struct {
	Ok          bool   `json:"ok"`
	Description string `json:"description"`
}

func (c *Client) SendMessage(ctx context.Context, text string) error {
	ctx, span := tracer.Start(ctx, "SendMessage")
	defer span.End()

	var body apiResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id": c.chatId,
			"text":    text,
		}).
		SetResult(&body).
		SetError(&body).
		Post("/sendMessage")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send message")
		return err
	}
	if !res.IsSuccess() || !body.Ok {
		err := fmt.Errorf("telegram sendMessage: status %d: %s", res.StatusCode(), body.Description)
		span.RecordError(err)
		span.SetStatus(codes.Error, "telegram rejected message")
		return err
	}
	return nil
}

func (c *Client) SendPhoto(ctx context.Context, caption string, photo []byte) error {
	ctx, span := tracer.Start(ctx, "SendPhoto")
	defer span.End()

	var body apiResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetFileReader("photo", "screenshot.png", bytes.NewReader(photo)).
		SetFormData(map[string]string{
			"chat_id": c.chatId,
			"caption": caption,
		}).
		SetResult(&body).
		SetError(&body).
		Post("/sendPhoto")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send photo")
		return err
	}
	if !res.IsSuccess() || !body.Ok {
		err := fmt.Errorf("telegram sendPhoto: status %d: %s", res.StatusCode(), body.Description)
		span.RecordError(err)
		span.SetStatus(codes.Error, "telegram rejected photo")
		return err
	}
	return nil
}

// Notifier adapts Client to notify.Notifier. Events with a screenshot go
// out as a photo with the report as caption, the rest as plain messages.
type Notifier struct {
	Client *Client
}

func (n Notifier) Notify(ctx context.Context, event notify.Event) error {
	text := formatEvent(event)
	if len(event.Screenshot) > 0 {
		return n.Client.SendPhoto(ctx, text, event.Screenshot)
	}
	return n.Client.SendMessage(ctx, text)
}

func formatEvent(event notify.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", event.Subject)
	fmt.Fprintf(&b, "Provider: %s\n", event.Provider)
	if event.Target != "" {
		fmt.Fprintf(&b, "Target: %s\n", event.Target)
	}
	fmt.Fprintf(&b, "Status: %s\n", event.Status)
	if event.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", event.Message)
	}
	fmt.Fprintf(&b, "\n%s", event.At.Format("2006-01-02 15:04:05 MST"))
	return b.String()
}
