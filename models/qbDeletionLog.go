package models

import "time"

// QuickbooksDeletionLog is an append-only audit trail of entities QuickBooks
// reported as deleted. The entity row itself is only soft-deleted.
type QuickbooksDeletionLog struct {
	ID              uint       `gorm:"primary_key" json:"id"`
	RealmId         string     `gorm:"index;size:64;not null" json:"realm_id"`
	EntityType      string     `gorm:"index;size:50;not null" json:"entity_type"`
	QbId            string     `gorm:"size:64;not null" json:"qb_id"`
	RemoteDeletedAt *time.Time `json:"remote_deleted_at"`
	SyncLogId       uint       `gorm:"index" json:"sync_log_id"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
