package qbsync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newExchangeManager(tokenURL string) *TokenManager {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return &TokenManager{
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		tokenURL:     tokenURL,
		clientID:     "client-id",
		clientSecret: "client-secret",
		logger:       logger,
	}
}

func TestExchangeRefreshToken_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("refresh_token") != "old-refresh" {
			t.Errorf("refresh_token = %q", r.PostForm.Get("refresh_token"))
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			t.Errorf("basic auth = %q/%q", user, pass)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "new-access",
			"refresh_token": "new-refresh",
			"expires_in": 3600,
			"token_type": "bearer"
		}`))
	}))
	defer srv.Close()

	tm := newExchangeManager(srv.URL)
	resp, err := tm.exchangeRefreshToken(context.Background(), "old-refresh")
	if err != nil {
		t.Fatal(err)
	}
	if resp.AccessToken != "new-access" || resp.RefreshToken != "new-refresh" || resp.ExpiresIn != 3600 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestExchangeRefreshToken_InvalidGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant", "error_description": "Token revoked"}`))
	}))
	defer srv.Close()

	tm := newExchangeManager(srv.URL)
	_, err := tm.exchangeRefreshToken(context.Background(), "revoked")
	if !errors.Is(err, errInvalidGrant) {
		t.Fatalf("expected errInvalidGrant, got %v", err)
	}
}

func TestExchangeRefreshToken_EmptyAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"refresh_token": "x", "expires_in": 3600}`))
	}))
	defer srv.Close()

	tm := newExchangeManager(srv.URL)
	if _, err := tm.exchangeRefreshToken(context.Background(), "rt"); err == nil {
		t.Fatal("expected error for empty access_token")
	}
}

func TestAcquireRefreshLock_LocalFallback(t *testing.T) {
	// Without a redis locker the manager serializes refreshes in-process.
	tm := newExchangeManager("http://unused")
	release, err := tm.acquireRefreshLock(context.Background(), "realm-1")
	if err != nil {
		t.Fatal(err)
	}
	locked := make(chan struct{})
	go func() {
		r, err := tm.acquireRefreshLock(context.Background(), "realm-1")
		if err != nil {
			t.Error(err)
			return
		}
		close(locked)
		r()
	}()

	select {
	case <-locked:
		t.Fatal("second acquisition must block until release")
	case <-time.After(20 * time.Millisecond):
	}
	release()
	select {
	case <-locked:
	case <-time.After(time.Second):
		t.Fatal("second acquisition never proceeded after release")
	}
}
