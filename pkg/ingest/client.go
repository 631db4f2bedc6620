// Package ingest submits generated manifests to a data platform: workflow
// runs for manifest ingestion, dataset uploads through signed URLs, and
// search-based verification of what landed.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Config carries the service endpoints and request metadata for one
// platform connection.
type Config struct {
	WorkflowURL string `yaml:"workflow_url"`
	StorageURL  string `yaml:"storage_url"`
	SearchURL   string `yaml:"search_url"`
	FileURL     string `yaml:"file_url"`
	LegalURL    string `yaml:"legal_url"`

	DataPartition string `yaml:"data_partition_id"`
	LegalTag      string `yaml:"legal_tag"`
	ACLViewer     string `yaml:"acl_viewer"`
	ACLOwner      string `yaml:"acl_owner"`

	Retries int           `yaml:"retries"`
	Backoff time.Duration `yaml:"backoff"`
	Timeout time.Duration `yaml:"timeout"`
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Retries <= 0 {
		out.Retries = 5
	}
	if out.Backoff <= 0 {
		out.Backoff = 1500 * time.Millisecond
	}
	if out.Timeout <= 0 {
		out.Timeout = 10 * time.Second
	}
	return out
}

// StatusError reports a non-2xx response the client gave up on.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, truncate(e.Body, 250))
}

// Client is a retrying JSON client for the platform services.
type Client struct {
	cfg    Config
	tokens TokenProvider
	http   *http.Client
	log    *slog.Logger
}

func NewClient(cfg Config, tokens TokenProvider, log *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:    cfg,
		tokens: tokens,
		http:   &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

func (c *Client) Config() Config { return c.cfg }

func (c *Client) headers(ctx context.Context) (http.Header, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire token: %w", err)
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Authorization", "Bearer "+token)
	h.Set("data-partition-id", c.cfg.DataPartition)
	h.Set("correlation-id", "workflow-create-"+uuid.NewString())
	return h, nil
}

func retriable(code int) bool {
	switch code {
	case http.StatusNotFound, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// doJSON sends one JSON request with retries and backoff, decoding the
// response body into out when out is non-nil. Statuses that usually clear
// up on their own (429, 5xx, eventual-consistency 404s) are retried; other
// failures return a *StatusError immediately.
func (c *Client) doJSON(ctx context.Context, method, rawURL string, body any, out any) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.Retries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * c.cfg.Backoff
			c.log.Debug("retrying request", "url", rawURL, "attempt", attempt, "wait", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		headers, err := c.headers(ctx)
		if err != nil {
			return err
		}

		var reader io.Reader
		if encoded != nil {
			reader = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header = headers

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s %s: %w", method, rawURL, err)
			continue
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out != nil {
				if err := json.Unmarshal(respBody, out); err != nil {
					return fmt.Errorf("decode response from %s: %w", rawURL, err)
				}
			}
			return nil
		}

		lastErr = &StatusError{Code: resp.StatusCode, Body: string(respBody)}
		if !retriable(resp.StatusCode) {
			return lastErr
		}
	}
	return fmt.Errorf("%s %s failed after %d attempts: %w", method, rawURL, c.cfg.Retries, lastErr)
}

// VerifyLegalTag checks that the configured legal tag exists before any
// records are submitted, so a typo fails the run up front.
func (c *Client) VerifyLegalTag(ctx context.Context) error {
	endpoint := c.cfg.LegalURL + "/legaltags/" + url.PathEscape(c.cfg.LegalTag)
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, nil); err != nil {
		return fmt.Errorf("legal tag %q: %w", c.cfg.LegalTag, err)
	}
	return nil
}
