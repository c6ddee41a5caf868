package qbsync

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/qbsync_backend/models"
)

func TestSyncLogFinalization(t *testing.T) {
	startedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	completedAt := startedAt.Add(45 * time.Second)
	total := ApplyResult{Created: 3, Updated: 5, Deleted: 1, Errors: 2}

	success := successSyncLogUpdates(startedAt, completedAt, total, []byte("[]"))
	if success["status"] != models.SyncLogStatusSuccess {
		t.Fatalf("success status = %v", success["status"])
	}
	cp, ok := success["checkpoint"].(time.Time)
	if !ok || !cp.Equal(startedAt) {
		t.Fatalf("successful run must advance checkpoint to the run start, got %v", success["checkpoint"])
	}
	if success["total_changes"] != 9 {
		t.Fatalf("total_changes = %v", success["total_changes"])
	}

	failure := failureSyncLogUpdates(completedAt, errors.New("fetch cdc changes: boom"))
	if failure["status"] != models.SyncLogStatusFailed {
		t.Fatalf("failure status = %v", failure["status"])
	}
	if _, present := failure["checkpoint"]; present {
		t.Fatal("failed run must not advance the checkpoint")
	}
	if failure["error_message"] != "fetch cdc changes: boom" {
		t.Fatalf("error_message = %v", failure["error_message"])
	}
}
