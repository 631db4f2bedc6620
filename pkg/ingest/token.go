package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TokenProvider supplies bearer tokens for platform requests.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken satisfies TokenProvider with a fixed token, useful for tests
// and for environments where a token is minted out of band.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// ClientCredentials obtains access tokens from an OAuth2 token endpoint using
// the client-credentials grant and caches them until shortly before expiry.
type ClientCredentials struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// Token returns the cached access token, refreshing it when less than a
// minute of validity remains.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.expiry) > time.Minute {
		return c.token, nil
	}
	if err := c.refresh(ctx); err != nil {
		return "", err
	}
	return c.token, nil
}

func (c *ClientCredentials) refresh(ctx context.Context) error {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"scope":         {c.ClientID + "/.default openid profile offline_access"},
		"client_id":     {c.ClientID},
		"client_secret": {c.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 250))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return fmt.Errorf("token endpoint returned no access_token")
	}

	c.token = payload.AccessToken
	c.expiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
