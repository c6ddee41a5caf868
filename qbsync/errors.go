package qbsync

import "errors"

var (
	// ErrNoActiveConnection means the realm has no usable OAuth token stored.
	// Fatal for a run; the operator must (re)connect the company.
	ErrNoActiveConnection = errors.New("no active quickbooks connection for realm")

	// ErrRefreshFailed means the OAuth refresh exchange was rejected, e.g. the
	// refresh token was revoked. Not retried; the realm must re-authorize.
	ErrRefreshFailed = errors.New("quickbooks token refresh failed")

	// ErrRemoteRequestFailed is a transport or API-level failure that survived
	// all retry attempts.
	ErrRemoteRequestFailed = errors.New("quickbooks request failed")

	// ErrUnsupportedEntityType means an entity type with no registered
	// normalizer was requested.
	ErrUnsupportedEntityType = errors.New("unsupported quickbooks entity type")
)
