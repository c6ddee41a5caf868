package models

import "time"

const (
	SyncLogStatusInProgress = "in_progress"
	SyncLogStatusCompleted  = "completed"
	SyncLogStatusSuccess    = "success"
	SyncLogStatusFailed     = "failed"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredRetry  = "retry"
	SyncTriggeredSystem = "system"
)

// QuickbooksSyncLog is one row per sync attempt for a realm. Rows are
// inserted at run start and updated once at run completion; history is never
// rewritten after that. Checkpoint is only set on successful runs and seeds
// the next run's changedSince lookup.
type QuickbooksSyncLog struct {
	ID               uint       `gorm:"primary_key" json:"id"`
	RealmId          string     `gorm:"index;size:64;not null" json:"realm_id"`
	JobId            string     `gorm:"index;size:64" json:"job_id"`
	Status           string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy      string     `gorm:"size:20" json:"triggered_by"`
	SyncStartedAt    time.Time  `json:"sync_started_at"`
	ChangedSince     time.Time  `json:"changed_since"`
	CompletedAt      *time.Time `json:"completed_at"`
	Checkpoint       *time.Time `json:"checkpoint"`
	CreatedCount     int        `json:"created_count"`
	UpdatedCount     int        `json:"updated_count"`
	DeletedCount     int        `json:"deleted_count"`
	ErrorCount       int        `json:"error_count"`
	TotalChanges     int        `json:"total_changes"`
	ErrorMessage     string     `gorm:"type:text" json:"error_message"`
	StatsJSON        []byte     `gorm:"type:json" json:"stats"`
	VerificationJSON []byte     `gorm:"type:json" json:"verification"`
	ParentLogId      *uint      `gorm:"index" json:"parent_log_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
