// Package ghsecrets rotates github actions secrets. Panels that refresh
// session cookies on login would otherwise invalidate the stored secret
// after every run.
package ghsecrets

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/uzx-v/renewbot/lib/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/nacl/box"
)

var tracer = otel.Tracer("lib/ghsecrets")

type Options struct {
	Token string
	// Repo in "owner/name" form.
	Repo string
	// BaseUrl overrides the api host, mainly for tests.
	BaseUrl string
}

type Client struct {
	http *resty.Client
	repo string
}

func NewClient(opts Options) *Client {
	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = "https://api.github.com"
	}

	client := resty.New()
	client.SetBaseURL(baseUrl)
	client.SetAuthToken(opts.Token)
	client.SetHeader("Accept", "application/vnd.github+json")
	client.SetHeader("X-GitHub-Api-Version", "2022-11-28")
	client.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(client, "ghsecrets/http")

	return &Client{http: client, repo: opts.Repo}
}

type publicKey struct {
	KeyId string `json:"key_id"`
	Key   string `json:"key"`
}

func (c *Client) fetchPublicKey(ctx context.Context) (publicKey, error) {
	var key publicKey
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&key).
		Get(fmt.Sprintf("/repos/%s/actions/secrets/public-key", c.repo))
	if err != nil {
		return publicKey{}, err
	}
	if !res.IsSuccess() {
		return publicKey{}, fmt.Errorf("fetch repo public key: status %d: %s", res.StatusCode(), res.String())
	}
	return key, nil
}

// sealSecret encrypts a secret value for github with an anonymous nacl
// sealed box, the libsodium construction their api expects.
func sealSecret(value string, repoKey publicKey) (encrypted string, keyId string, err error) {
	rawKey, err := base64.StdEncoding.DecodeString(repoKey.Key)
	if err != nil {
		return "", "", fmt.Errorf("decode repo public key: %w", err)
	}
	if len(rawKey) != 32 {
		return "", "", fmt.Errorf("repo public key is %d bytes, want 32", len(rawKey))
	}
	var recipient [32]byte
	copy(recipient[:], rawKey)

	sealed, err := box.SealAnonymous(nil, []byte(value), &recipient, rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("seal secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), repoKey.KeyId, nil
}

type putSecretRequest struct {
	EncryptedValue string `json:"encrypted_value"`
	KeyId          string `json:"key_id"`
}

// UpdateSecret encrypts and writes one repository secret.
func (c *Client) UpdateSecret(ctx context.Context, name, value string) error {
	ctx, span := tracer.Start(ctx, "UpdateSecret")
	defer span.End()

	key, err := c.fetchPublicKey(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch repo public key")
		return err
	}

	encrypted, keyId, err := sealSecret(value, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to seal secret")
		return err
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(putSecretRequest{EncryptedValue: encrypted, KeyId: keyId}).
		Put(fmt.Sprintf("/repos/%s/actions/secrets/%s", c.repo, name))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put secret")
		return err
	}
	if !res.IsSuccess() {
		err := fmt.Errorf("put secret %s: status %d: %s", name, res.StatusCode(), res.String())
		span.RecordError(err)
		span.SetStatus(codes.Error, "github rejected secret update")
		return err
	}
	return nil
}
