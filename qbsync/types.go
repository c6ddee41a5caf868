package qbsync

import (
	"encoding/json"
	"fmt"
	"time"
)

// SyncOptions tunes one incremental run.
type SyncOptions struct {
	// EntityTypes restricts the run; empty means every supported type.
	EntityTypes []string `json:"entity_types,omitempty"`
	// Verify runs the count verification after applying changes.
	Verify bool `json:"verify,omitempty"`
	// TriggeredBy records what started the run (manual, retry, system).
	TriggeredBy string `json:"triggered_by,omitempty"`
	// ParentLogId links a retry to the failed run it repeats.
	ParentLogId *uint `json:"parent_log_id,omitempty"`
}

const (
	JobStateQueued    = "queued"
	JobStateRunning   = "running"
	JobStateCompleted = "completed"
	JobStateFailed    = "failed"
)

// JobStatus is the redis-cached view of a sync job, served to pollers that
// are not attached to the progress stream.
type JobStatus struct {
	JobId        string     `json:"job_id"`
	RealmId      string     `json:"realm_id"`
	State        string     `json:"state"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ChangedSince *time.Time `json:"changed_since,omitempty"`
	Created      int        `json:"created"`
	Updated      int        `json:"updated"`
	Deleted      int        `json:"deleted"`
	Errors       int        `json:"errors"`
	TotalChanges int        `json:"total_changes"`
	Error        string     `json:"error,omitempty"`
}

func jobStatusKey(jobID string) string {
	return "qbo:job:" + jobID
}

const (
	ConnectionStatusConnected    = "connected"
	ConnectionStatusDisconnected = "disconnected"
)

type ConnectRequest struct {
	RealmId      string `json:"realm_id"`
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
	ExpiresIn    int    `json:"expires_in" validate:"required,gt=0"`
}

type StartSyncRequest struct {
	EntityTypes []string `json:"entity_types"`
	Verify      bool     `json:"verify"`
}

type BackfillRequest struct {
	EntityTypes []string `json:"entity_types"`
	From        string   `json:"from"` // YYYY-MM-DD
	To          string   `json:"to"`
}

func (r *BackfillRequest) dateRange() (*DateRange, error) {
	if r.From == "" && r.To == "" {
		return nil, nil
	}
	var dr DateRange
	var err error
	if r.From != "" {
		if dr.From, err = time.Parse("2006-01-02", r.From); err != nil {
			return nil, fmt.Errorf("invalid from date: %s", r.From)
		}
	}
	if r.To != "" {
		if dr.To, err = time.Parse("2006-01-02", r.To); err != nil {
			return nil, fmt.Errorf("invalid to date: %s", r.To)
		}
	}
	return &dr, nil
}

type ConnectionStatusResponse struct {
	RealmId           string  `json:"realm_id"`
	Status            string  `json:"status"`
	ConnectedAt       *string `json:"connected_at,omitempty"`
	LastSyncAt        *string `json:"last_sync_at,omitempty"`
	LastSuccessSyncAt *string `json:"last_success_sync_at,omitempty"`
}

type SyncLogResponse struct {
	ID           uint    `json:"id"`
	JobId        string  `json:"job_id"`
	Status       string  `json:"status"`
	TriggeredBy  string  `json:"triggered_by"`
	StartedAt    *string `json:"started_at"`
	CompletedAt  *string `json:"completed_at"`
	ChangedSince *string `json:"changed_since"`
	Created      int     `json:"created"`
	Updated      int     `json:"updated"`
	Deleted      int     `json:"deleted"`
	Errors       int     `json:"errors"`
	TotalChanges int     `json:"total_changes"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

type SyncHistoryResponse struct {
	Items []SyncLogResponse `json:"items"`
}

type SyncRunDetailResponse struct {
	SyncLogResponse
	Stats        json.RawMessage    `json:"stats,omitempty"`
	Verification json.RawMessage    `json:"verification,omitempty"`
	Deletions    []DeletionResponse `json:"deletions"`
}

type DeletionResponse struct {
	ID              uint    `json:"id"`
	EntityType      string  `json:"entity_type"`
	QbId            string  `json:"qb_id"`
	RemoteDeletedAt *string `json:"remote_deleted_at"`
}
