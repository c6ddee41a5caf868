package qbsync

import (
	"context"
	"time"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/qbsync_backend/models"
)

// checkpointFloor bounds how far back an incremental sync may reach; the CDC
// endpoint serves at most 30 days of history.
const checkpointFloor = 30 * 24 * time.Hour

// ResolveStartPoint picks the changedSince value for an incremental run.
// Preference order: checkpoint of the last successful run, then the newest
// updated_at across the realm's synced tables, then the floor itself. All
// candidates are clamped to now minus 30 days so a long-dormant realm never
// asks CDC for history it cannot serve.
func ResolveStartPoint(ctx context.Context, db *gorm.DB, realmID string, now time.Time) (time.Time, string) {
	var checkpoint *time.Time
	var lastLog models.QuickbooksSyncLog
	err := db.WithContext(ctx).
		Where("realm_id = ? AND status IN ? AND checkpoint IS NOT NULL",
			realmID, []string{models.SyncLogStatusSuccess, models.SyncLogStatusCompleted}).
		Order("sync_started_at DESC").
		First(&lastLog).Error
	if err == nil {
		checkpoint = lastLog.Checkpoint
	}

	return chooseStartPoint(checkpoint, latestLocalUpdate(ctx, db, realmID), now)
}

// chooseStartPoint applies the preference order to the two candidates.
// Either may be nil when that source has nothing to offer.
func chooseStartPoint(checkpoint, localMax *time.Time, now time.Time) (time.Time, string) {
	floor := now.Add(-checkpointFloor)
	if checkpoint != nil {
		return clampToFloor(*checkpoint, floor), "sync_log"
	}
	if localMax != nil {
		return clampToFloor(*localMax, floor), "max_updated_at"
	}
	return floor, "floor"
}

// latestLocalUpdate scans every registered table for the realm's newest
// updated_at. Nil means the realm has no synced rows at all.
func latestLocalUpdate(ctx context.Context, db *gorm.DB, realmID string) *time.Time {
	var latest *time.Time
	for _, reg := range entityRegistry {
		var ts *time.Time
		err := db.WithContext(ctx).
			Table(reg.Table).
			Where("realm_id = ?", realmID).
			Select("MAX(updated_at)").
			Scan(&ts).Error
		if err != nil || ts == nil {
			continue
		}
		if latest == nil || ts.After(*latest) {
			latest = ts
		}
	}
	return latest
}

func clampToFloor(candidate, floor time.Time) time.Time {
	if candidate.Before(floor) {
		return floor
	}
	return candidate
}
