package qbsync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type stubTokenProvider struct {
	token     string
	refreshed atomic.Int32
	failAuth  bool
}

func (s *stubTokenProvider) AccessToken(ctx context.Context, realmID string) (string, error) {
	if s.failAuth {
		return "", ErrNoActiveConnection
	}
	return s.token, nil
}

func (s *stubTokenProvider) Refresh(ctx context.Context, realmID string) (string, error) {
	s.refreshed.Add(1)
	s.token = "refreshed-token"
	return s.token, nil
}

func newTestClient(baseURL string, auth tokenProvider) *Client {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return &Client{
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		baseURL:      baseURL,
		minorVersion: "65",
		auth:         auth,
		limiter:      NewRateLimiter(1000, 100, 10),
		maxAttempts:  3,
		baseDelay:    time.Millisecond,
		logger:       logger,
	}
}

func TestClient_RefreshOn401(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer refreshed-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	auth := &stubTokenProvider{token: "stale-token"}
	c := newTestClient(srv.URL, auth)

	body, err := c.Request(context.Background(), "realm-1", http.MethodGet, "/query", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "ok") {
		t.Fatalf("body = %s", body)
	}
	if auth.refreshed.Load() != 1 {
		t.Fatalf("expected exactly one refresh, got %d", auth.refreshed.Load())
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 requests (401 then success), got %d", calls.Load())
	}
}

func TestClient_RetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"QueryResponse": {}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, &stubTokenProvider{token: "tok"})
	if _, err := c.Request(context.Background(), "realm-1", http.MethodGet, "/query", nil, nil); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestClient_FailsFastOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"Fault": {"Error": [{"Message": "Invalid query", "Detail": "bad column", "code": "4000"}], "type": "ValidationFault"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, &stubTokenProvider{token: "tok"})
	_, err := c.Request(context.Background(), "realm-1", http.MethodGet, "/query", nil, nil)
	if !errors.Is(err, ErrRemoteRequestFailed) {
		t.Fatalf("expected ErrRemoteRequestFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid query") || !strings.Contains(err.Error(), "bad column") {
		t.Fatalf("fault message not extracted: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", calls.Load())
	}
}

func TestClient_ExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, &stubTokenProvider{token: "tok"})
	_, err := c.Request(context.Background(), "realm-1", http.MethodGet, "/query", nil, nil)
	if !errors.Is(err, ErrRemoteRequestFailed) {
		t.Fatalf("expected ErrRemoteRequestFailed after exhausting retries, got %v", err)
	}
}

func TestClient_TransportErrorWrapsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := newTestClient(srv.URL, &stubTokenProvider{token: "tok"})
	_, err := c.Request(context.Background(), "realm-1", http.MethodGet, "/query", nil, nil)
	if err == nil {
		t.Fatal("expected error from unreachable server")
	}
	if !errors.Is(err, ErrRemoteRequestFailed) {
		t.Fatalf("expected transport failure to wrap ErrRemoteRequestFailed, got %v", err)
	}
}

func TestClient_CDCRequestShape(t *testing.T) {
	var gotQuery string
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"CDCResponse": []}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, &stubTokenProvider{token: "tok"})
	since := time.Date(2024, 3, 5, 14, 30, 45, 0, time.UTC)
	if _, err := c.CDC(context.Background(), "realm-1", []string{"Customer", "Invoice"}, since); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/v3/company/realm-1/cdc" {
		t.Fatalf("path = %s", gotPath)
	}
	if !strings.Contains(gotQuery, "entities=Customer%2CInvoice") {
		t.Fatalf("entities param missing: %s", gotQuery)
	}
	if !strings.Contains(gotQuery, "changedSince=2024-03-05T14%3A30%3A45%2B00%3A00") {
		t.Fatalf("changedSince not in the exact required format: %s", gotQuery)
	}
	if !strings.Contains(gotQuery, "minorversion=65") {
		t.Fatalf("minorversion missing: %s", gotQuery)
	}
}

func TestClient_AuthFailurePropagates(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0", &stubTokenProvider{failAuth: true})
	_, err := c.Request(context.Background(), "realm-1", http.MethodGet, "/query", nil, nil)
	if !errors.Is(err, ErrNoActiveConnection) {
		t.Fatalf("expected ErrNoActiveConnection, got %v", err)
	}
}
