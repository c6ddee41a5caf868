package qbsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/utils"
)

const defaultAPIBaseURL = "https://quickbooks.api.intuit.com"

// tokenProvider is the slice of TokenManager the client needs. Tests swap in
// a stub so no database or OAuth endpoint is involved.
type tokenProvider interface {
	AccessToken(ctx context.Context, realmID string) (string, error)
	Refresh(ctx context.Context, realmID string) (string, error)
}

// Client executes QuickBooks API calls with rate limiting, bounded retries
// and transparent token refresh on 401.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	minorVersion string
	auth         tokenProvider
	limiter      *RateLimiter
	maxAttempts  int
	baseDelay    time.Duration
	logger       *logrus.Logger
}

func NewClient(auth tokenProvider, limiter *RateLimiter, logger *logrus.Logger) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		baseURL:      strings.TrimRight(utils.StringFromEnv("QBO_API_BASE_URL", defaultAPIBaseURL), "/"),
		minorVersion: utils.StringFromEnv("QBO_MINOR_VERSION", "65"),
		auth:         auth,
		limiter:      limiter,
		maxAttempts:  utils.IntFromEnv("QBO_MAX_ATTEMPTS", 3),
		baseDelay:    time.Duration(utils.IntFromEnv("QBO_RETRY_BASE_DELAY_MS", 500)) * time.Millisecond,
		logger:       logger,
	}
}

// qbFault is the API's error envelope.
type qbFault struct {
	Fault struct {
		Error []struct {
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
			Code    string `json:"code"`
		} `json:"Error"`
		Type string `json:"type"`
	} `json:"Fault"`
}

func faultMessage(body []byte) string {
	var f qbFault
	if err := json.Unmarshal(body, &f); err == nil && len(f.Fault.Error) > 0 {
		msg := f.Fault.Error[0].Message
		if detail := f.Fault.Error[0].Detail; detail != "" {
			msg = msg + ": " + detail
		}
		return msg
	}
	return strings.TrimSpace(string(body))
}

// CDC fetches all changes to the given entity types since changedSince in a
// single call.
func (c *Client) CDC(ctx context.Context, realmID string, entityTypes []string, changedSince time.Time) ([]byte, error) {
	q := url.Values{}
	q.Set("entities", strings.Join(entityTypes, ","))
	q.Set("changedSince", FormatChangedSince(changedSince))
	return c.Request(ctx, realmID, http.MethodGet, "/cdc", q, nil)
}

// Query runs a QuickBooks SQL-ish query, e.g. "SELECT COUNT(*) FROM Invoice".
func (c *Client) Query(ctx context.Context, realmID string, query string) ([]byte, error) {
	q := url.Values{}
	q.Set("query", query)
	return c.Request(ctx, realmID, http.MethodGet, "/query", q, nil)
}

// CreateInvoice posts a new invoice to QuickBooks.
func (c *Client) CreateInvoice(ctx context.Context, realmID string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.Request(ctx, realmID, http.MethodPost, "/invoice", nil, body)
}

// Request executes one API call against /v3/company/{realm}{apiPath}.
// Transport errors, 429 and 5xx responses are retried with exponential
// backoff; a 401 triggers one token refresh without consuming an attempt;
// any other 4xx fails immediately with the extracted fault message.
func (c *Client) Request(ctx context.Context, realmID string, method string, apiPath string, query url.Values, body []byte) ([]byte, error) {
	endpoint := c.baseURL + "/v3/company/" + url.PathEscape(realmID) + apiPath

	accessToken, err := c.auth.AccessToken(ctx, realmID)
	if err != nil {
		return nil, err
	}

	var lastErr error
	refreshed := false
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay * (1 << (attempt - 1))
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		var respBody []byte
		var status int
		err := c.limiter.Schedule(ctx, func() error {
			var doErr error
			status, respBody, doErr = c.doOnce(ctx, method, endpoint, query, body, accessToken)
			return doErr
		})
		if err != nil {
			// Transport-level failure; retry.
			lastErr = err
			config.LogError(c.logger, "qbsync", "Request", fmt.Sprintf("attempt %d %s %s", attempt+1, method, apiPath), realmID, err)
			continue
		}

		switch {
		case status >= 200 && status < 300:
			return respBody, nil
		case status == http.StatusUnauthorized && !refreshed:
			refreshed = true
			accessToken, err = c.auth.Refresh(ctx, realmID)
			if err != nil {
				return nil, err
			}
			// The 401 round trip does not count as an attempt.
			attempt--
		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = fmt.Errorf("%w: status %d: %s", ErrRemoteRequestFailed, status, faultMessage(respBody))
			c.logger.WithFields(logrus.Fields{
				"realm_id": realmID,
				"status":   status,
				"path":     apiPath,
				"attempt":  attempt + 1,
			}).Warn("quickbooks request throttled or failed upstream, retrying")
		default:
			return nil, fmt.Errorf("%w: status %d: %s", ErrRemoteRequestFailed, status, faultMessage(respBody))
		}
	}
	switch {
	case lastErr == nil:
		lastErr = ErrRemoteRequestFailed
	case !errors.Is(lastErr, ErrRemoteRequestFailed):
		lastErr = fmt.Errorf("%w: %v", ErrRemoteRequestFailed, lastErr)
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method string, endpoint string, query url.Values, body []byte, accessToken string) (int, []byte, error) {
	q := url.Values{}
	for k, vs := range query {
		q[k] = vs
	}
	q.Set("minorversion", c.minorVersion)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint+"?"+q.Encode(), reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}
