package qbsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/models"
	"bitbucket.org/mmdatafocus/qbsync_backend/utils"
)

const (
	defaultTokenURL = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"

	// accessTokenSkew treats a token expiring within this window as already
	// expired, so a request never goes out with a token about to lapse.
	accessTokenSkew = 60 * time.Second

	refreshLockTTL = 30 * time.Second
)

// TokenManager owns the per-realm OAuth credentials. Refreshes are
// serialized across instances with a redis lock; after acquiring it the
// row is re-read, so a refresh finished by another instance is reused
// instead of burning the (single-use) refresh token again.
type TokenManager struct {
	db           func() *gorm.DB
	locker       *redislock.Client
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	logger       *logrus.Logger

	mu sync.Mutex
}

func NewTokenManager(db func() *gorm.DB, locker *redislock.Client, logger *logrus.Logger) *TokenManager {
	return &TokenManager{
		db:           db,
		locker:       locker,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		tokenURL:     utils.StringFromEnv("QBO_TOKEN_URL", defaultTokenURL),
		clientID:     utils.StringFromEnv("QBO_CLIENT_ID", ""),
		clientSecret: utils.StringFromEnv("QBO_CLIENT_SECRET", ""),
		logger:       logger,
	}
}

// GetActiveToken returns the active connection row for the realm.
func (tm *TokenManager) GetActiveToken(ctx context.Context, realmID string) (*models.QuickbooksToken, error) {
	var token models.QuickbooksToken
	err := tm.db().WithContext(ctx).
		Where("realm_id = ? AND is_active = ?", realmID, true).
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: realm %s", ErrNoActiveConnection, realmID)
		}
		return nil, err
	}
	return &token, nil
}

// AccessToken returns a bearer token valid for at least accessTokenSkew,
// refreshing first when needed.
func (tm *TokenManager) AccessToken(ctx context.Context, realmID string) (string, error) {
	token, err := tm.GetActiveToken(ctx, realmID)
	if err != nil {
		return "", err
	}
	if time.Until(token.AccessTokenExpiresAt) > accessTokenSkew {
		return token.AccessToken, nil
	}
	return tm.Refresh(ctx, realmID)
}

// Refresh exchanges the stored refresh token for a new token pair and
// persists it. Safe to call concurrently for the same realm.
func (tm *TokenManager) Refresh(ctx context.Context, realmID string) (string, error) {
	release, err := tm.acquireRefreshLock(ctx, realmID)
	if err != nil {
		return "", err
	}
	defer release()

	// Another instance may have finished a refresh while this one waited
	// on the lock.
	token, err := tm.GetActiveToken(ctx, realmID)
	if err != nil {
		return "", err
	}
	if time.Until(token.AccessTokenExpiresAt) > accessTokenSkew {
		return token.AccessToken, nil
	}

	refreshed, err := tm.exchangeRefreshToken(ctx, token.RefreshToken)
	if err != nil {
		if errors.Is(err, errInvalidGrant) {
			// The refresh token is dead; the connection needs re-auth.
			if dbErr := tm.db().WithContext(ctx).Model(&models.QuickbooksToken{}).
				Where("id = ?", token.ID).
				Update("is_active", false).Error; dbErr != nil {
				config.LogError(tm.logger, "qbsync", "Refresh", "Failed to deactivate rejected connection", realmID, dbErr)
			}
			config.LogError(tm.logger, "qbsync", "Refresh", "refresh token rejected, connection deactivated", realmID, err)
			return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
		}
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	// Persist before handing the token out: a crash after the remote
	// exchange but before the write must not lose the new refresh token
	// longer than necessary.
	updates := map[string]any{
		"access_token":            refreshed.AccessToken,
		"refresh_token":           refreshed.RefreshToken,
		"access_token_expires_at": time.Now().Add(time.Duration(refreshed.ExpiresIn) * time.Second),
	}
	if err := tm.db().WithContext(ctx).Model(&models.QuickbooksToken{}).
		Where("id = ?", token.ID).
		Updates(updates).Error; err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

func (tm *TokenManager) acquireRefreshLock(ctx context.Context, realmID string) (func(), error) {
	if tm.locker == nil {
		// Single-instance fallback.
		tm.mu.Lock()
		return tm.mu.Unlock, nil
	}
	lock, err := tm.locker.Obtain(ctx, "qbo:refresh:"+realmID, refreshLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(200*time.Millisecond), 50),
	})
	if err != nil {
		return nil, fmt.Errorf("acquire refresh lock: %w", err)
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			config.LogError(tm.logger, "qbsync", "acquireRefreshLock", "release refresh lock", realmID, err)
		}
	}, nil
}

var errInvalidGrant = errors.New("invalid_grant")

type oauthTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

type oauthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (tm *TokenManager) exchangeRefreshToken(ctx context.Context, refreshToken string) (*oauthTokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(tm.clientID, tm.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := tm.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var oErr oauthErrorResponse
		if json.Unmarshal(body, &oErr) == nil && oErr.Error == "invalid_grant" {
			return nil, fmt.Errorf("%w: %s", errInvalidGrant, oErr.ErrorDescription)
		}
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}
	var tokenResp oauthTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, err
	}
	if tokenResp.AccessToken == "" {
		return nil, errors.New("token endpoint returned empty access_token")
	}
	return &tokenResp, nil
}
