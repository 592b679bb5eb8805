// Package capsolver solves cloudflare turnstile challenges through the
// capsolver api when the widget refuses to solve itself in a headless
// browser.
package capsolver

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/uzx-v/renewbot/lib/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/captcha/capsolver")

var ErrNoToken = fmt.Errorf("capsolver did not produce a token in time")

type Options struct {
	ClientKey string
	// BaseUrl overrides the api host, mainly for tests.
	BaseUrl string
	// PollInterval defaults to 3 seconds, PollBudget to 60 seconds.
	PollInterval time.Duration
	PollBudget   time.Duration
}

type Client struct {
	http *resty.Client
	opts Options
}

func NewClient(opts Options) *Client {
	if opts.BaseUrl == "" {
		opts.BaseUrl = "https://api.capsolver.com"
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Second * 3
	}
	if opts.PollBudget == 0 {
		opts.PollBudget = time.Second * 60
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	client.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(client, "captcha/capsolver/http")

	return &Client{http: client, opts: opts}
}

type task struct {
	Type       string `json:"type"`
	WebsiteURL string `json:"websiteURL"`
	WebsiteKey string `json:"websiteKey"`
}

type createTaskRequest struct {
	ClientKey string `json:"clientKey"`
	Task      task   `json:"task"`
}

type createTaskResponse struct {
	ErrorId          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	TaskId           string `json:"taskId"`
}

type taskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskId    string `json:"taskId"`
}

type taskResultResponse struct {
	ErrorId          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	Status           string `json:"status"`
	Solution         struct {
		Token string `json:"token"`
	} `json:"solution"`
}

// SolveTurnstile submits a proxyless turnstile task and polls until a
// token comes back or the poll budget runs out.
func (c *Client) SolveTurnstile(ctx context.Context, pageUrl, siteKey string) (string, error) {
	ctx, span := tracer.Start(ctx, "SolveTurnstile")
	defer span.End()

	var created createTaskResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(createTaskRequest{
			ClientKey: c.opts.ClientKey,
			Task: task{
				Type:       "AntiTurnstileTaskProxyLess",
				WebsiteURL: pageUrl,
				WebsiteKey: siteKey,
			},
		}).
		SetResult(&created).
		Post("/createTask")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "createTask request failed")
		return "", err
	}
	if !res.IsSuccess() || created.ErrorId != 0 {
		err := fmt.Errorf("capsolver createTask: status %d: %s", res.StatusCode(), created.ErrorDescription)
		span.RecordError(err)
		span.SetStatus(codes.Error, "createTask rejected")
		return "", err
	}

	deadline := time.Now().Add(c.opts.PollBudget)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.opts.PollInterval):
		}

		var result taskResultResponse
		res, err := c.http.R().
			SetContext(ctx).
			SetBody(taskResultRequest{ClientKey: c.opts.ClientKey, TaskId: created.TaskId}).
			SetResult(&result).
			Post("/getTaskResult")
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "getTaskResult request failed")
			return "", err
		}
		if !res.IsSuccess() || result.ErrorId != 0 {
			err := fmt.Errorf("capsolver getTaskResult: status %d: %s", res.StatusCode(), result.ErrorDescription)
			span.RecordError(err)
			span.SetStatus(codes.Error, "getTaskResult rejected")
			return "", err
		}
		if result.Status == "ready" {
			return result.Solution.Token, nil
		}
	}

	span.SetStatus(codes.Error, ErrNoToken.Error())
	return "", ErrNoToken
}
