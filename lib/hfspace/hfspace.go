// Package hfspace provisions docker spaces on hugging face. A space runs
// the renewal daemon on free compute, recreated from scratch whenever its
// configuration drifts.
package hfspace

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/uzx-v/renewbot/lib/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/hfspace")

type Options struct {
	Token string
	// BaseUrl overrides the hub host, mainly for tests.
	BaseUrl string
}

type Client struct {
	http *resty.Client
}

func NewClient(opts Options) *Client {
	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = "https://huggingface.co"
	}

	client := resty.New()
	client.SetBaseURL(baseUrl)
	client.SetAuthToken(opts.Token)
	client.SetTimeout(time.Second * 60)
	telemetry.InstrumentResty(client, "hfspace/http")

	return &Client{http: client}
}

type whoamiResponse struct {
	Name string `json:"name"`
}

// Whoami resolves the token's username, which namespaces every space.
func (c *Client) Whoami(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "Whoami")
	defer span.End()

	var body whoamiResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/api/whoami-v2")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "whoami request failed")
		return "", err
	}
	if !res.IsSuccess() {
		err := fmt.Errorf("whoami: status %d: %s", res.StatusCode(), res.String())
		span.RecordError(err)
		span.SetStatus(codes.Error, "whoami rejected")
		return "", err
	}
	if body.Name == "" {
		return "", fmt.Errorf("whoami returned no username")
	}
	return body.Name, nil
}

type deleteRepoRequest struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// DeleteSpace removes a space if it exists. A 404 is not an error, the
// caller recreates spaces idempotently.
func (c *Client) DeleteSpace(ctx context.Context, fullName string) error {
	ctx, span := tracer.Start(ctx, "DeleteSpace")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(deleteRepoRequest{Type: "space", Name: fullName}).
		Delete("/api/repos/delete")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete request failed")
		return err
	}
	if !res.IsSuccess() && res.StatusCode() != 404 {
		err := fmt.Errorf("delete space %s: status %d: %s", fullName, res.StatusCode(), res.String())
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete rejected")
		return err
	}
	return nil
}

type createRepoRequest struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Sdk     string `json:"sdk"`
	Private bool   `json:"private"`
}

// CreateSpace creates a private docker space under the token's namespace.
func (c *Client) CreateSpace(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "CreateSpace")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(createRepoRequest{Type: "space", Name: name, Sdk: "docker", Private: true}).
		Post("/api/repos/create")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create request failed")
		return err
	}
	if !res.IsSuccess() {
		err := fmt.Errorf("create space %s: status %d: %s", name, res.StatusCode(), res.String())
		span.RecordError(err)
		span.SetStatus(codes.Error, "create rejected")
		return err
	}
	return nil
}

type secretRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SetSecret writes one runtime secret into a space.
func (c *Client) SetSecret(ctx context.Context, fullName, key, value string) error {
	ctx, span := tracer.Start(ctx, "SetSecret")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(secretRequest{Key: key, Value: value}).
		Post(fmt.Sprintf("/api/spaces/%s/secrets", fullName))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "secret request failed")
		return err
	}
	if !res.IsSuccess() {
		err := fmt.Errorf("set secret %s on %s: status %d: %s", key, fullName, res.StatusCode(), res.String())
		span.RecordError(err)
		span.SetStatus(codes.Error, "secret rejected")
		return err
	}
	return nil
}

type File struct {
	Path    string
	Content string
}

// UploadFiles commits files to a space through the hub's ndjson commit
// endpoint.
func (c *Client) UploadFiles(ctx context.Context, fullName string, files []File) error {
	ctx, span := tracer.Start(ctx, "UploadFiles")
	defer span.End()

	var payload strings.Builder
	payload.WriteString(`{"key":"header","value":{"summary":"deploy","description":""}}` + "\n")
	for _, f := range files {
		encoded := base64.StdEncoding.EncodeToString([]byte(f.Content))
		payload.WriteString(fmt.Sprintf(
			`{"key":"file","value":{"path":%q,"content":%q,"encoding":"base64"}}`+"\n",
			f.Path, encoded,
		))
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-ndjson").
		SetBody(payload.String()).
		Post(fmt.Sprintf("/api/spaces/%s/commit/main", fullName))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit request failed")
		return err
	}
	if !res.IsSuccess() {
		err := fmt.Errorf("commit to %s: status %d: %s", fullName, res.StatusCode(), res.String())
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit rejected")
		return err
	}
	return nil
}

type ProvisionOptions struct {
	// SpaceName without the username prefix.
	SpaceName string
	Secrets   map[string]string
	Files     []File
	// Recreate deletes an existing space first.
	Recreate bool
}

// Provision builds a space end to end: resolve the user, optionally
// delete the old space, create, set secrets, upload files.
func (c *Client) Provision(ctx context.Context, opts ProvisionOptions) (string, error) {
	ctx, span := tracer.Start(ctx, "Provision")
	defer span.End()

	user, err := c.Whoami(ctx)
	if err != nil {
		return "", err
	}
	fullName := fmt.Sprintf("%s/%s", user, opts.SpaceName)

	if opts.Recreate {
		err = c.DeleteSpace(ctx, fullName)
		if err != nil {
			return "", err
		}
	}
	err = c.CreateSpace(ctx, opts.SpaceName)
	if err != nil {
		return "", err
	}
	for key, value := range opts.Secrets {
		err = c.SetSecret(ctx, fullName, key, value)
		if err != nil {
			return "", err
		}
	}
	err = c.UploadFiles(ctx, fullName, opts.Files)
	if err != nil {
		return "", err
	}
	return fullName, nil
}
