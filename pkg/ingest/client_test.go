package ingest

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testClient(cfg Config) *Client {
	cfg.Retries = 2
	cfg.Backoff = time.Millisecond
	cfg.Timeout = 2 * time.Second
	if cfg.DataPartition == "" {
		cfg.DataPartition = "opendes"
	}
	return NewClient(cfg, StaticToken("test-token"), testLogger())
}

func TestClientHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := testClient(Config{LegalURL: srv.URL, LegalTag: "tag"})
	if err := c.VerifyLegalTag(context.Background()); err != nil {
		t.Fatalf("VerifyLegalTag: %v", err)
	}
	if got.Get("Authorization") != "Bearer test-token" {
		t.Errorf("Authorization = %q", got.Get("Authorization"))
	}
	if got.Get("data-partition-id") != "opendes" {
		t.Errorf("data-partition-id = %q", got.Get("data-partition-id"))
	}
	if got.Get("correlation-id") == "" {
		t.Error("correlation-id missing")
	}
}

func TestClientRetriesTransientErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := testClient(Config{LegalURL: srv.URL, LegalTag: "tag"})
	if err := c.VerifyLegalTag(context.Background()); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d", calls)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := testClient(Config{LegalURL: srv.URL, LegalTag: "tag"})
	if err := c.VerifyLegalTag(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("401 must not be retried, calls = %d", calls)
	}
}

func TestTokenProviderClientCredentials(t *testing.T) {
	refreshes := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes++
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		w.Write([]byte(`{"access_token": "abc", "expires_in": 3600}`))
	}))
	defer srv.Close()

	cc := &ClientCredentials{Endpoint: srv.URL, ClientID: "id", ClientSecret: "secret"}
	for i := 0; i < 3; i++ {
		token, err := cc.Token(context.Background())
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if token != "abc" {
			t.Errorf("token = %q", token)
		}
	}
	if refreshes != 1 {
		t.Errorf("token must be cached, refreshes = %d", refreshes)
	}
}
