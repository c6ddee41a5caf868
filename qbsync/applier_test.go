package qbsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/qbsync_backend/models"
)

type fakeStore struct {
	upserts     []any
	batchSizes  []int
	batchErrs   []error // popped per UpsertBatch call; nil entries succeed
	deletes     []string
	deleteTimes map[string]time.Time
	deletions   []*models.QuickbooksDeletionLog
	failQbIds   map[string]bool
}

func (f *fakeStore) Upsert(ctx context.Context, entityType string, row any) error {
	if customer, ok := row.(*models.QuickbooksCustomer); ok && f.failQbIds[customer.QbId] {
		return fmt.Errorf("upsert rejected for %s", customer.QbId)
	}
	f.upserts = append(f.upserts, row)
	return nil
}

func (f *fakeStore) UpsertBatch(ctx context.Context, entityType string, rows []any) error {
	if len(f.batchErrs) > 0 {
		err := f.batchErrs[0]
		f.batchErrs = f.batchErrs[1:]
		if err != nil {
			return err
		}
	}
	f.batchSizes = append(f.batchSizes, len(rows))
	f.upserts = append(f.upserts, rows...)
	return nil
}

func (f *fakeStore) SoftDelete(ctx context.Context, entityType string, realmID string, qbID string, deletedAt time.Time) error {
	if f.failQbIds[qbID] {
		return errors.New("soft delete failed")
	}
	f.deletes = append(f.deletes, entityType+"/"+qbID)
	if f.deleteTimes == nil {
		f.deleteTimes = make(map[string]time.Time)
	}
	f.deleteTimes[qbID] = deletedAt
	return nil
}

func (f *fakeStore) LogDeletion(ctx context.Context, entry *models.QuickbooksDeletionLog) error {
	f.deletions = append(f.deletions, entry)
	return nil
}

func newTestApplier(store entityStore) *Applier {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return &Applier{store: store, logger: logger, now: time.Now}
}

func upsertEvent(qbID string) ChangeEvent {
	raw := json.RawMessage(fmt.Sprintf(`{"Id": %q, "DisplayName": "C%s"}`, qbID, qbID))
	return ChangeEvent{Kind: ChangeKindUpsert, QbId: qbID, Raw: raw}
}

func TestApplier_CountsNonDeletionsAsCreated(t *testing.T) {
	store := &fakeStore{}
	a := newTestApplier(store)

	events := []ChangeEvent{upsertEvent("1"), upsertEvent("2"), upsertEvent("3")}
	result, err := a.Apply(context.Background(), "realm-1", "Customer", events, 10)
	if err != nil {
		t.Fatal(err)
	}
	if result.Created != 3 || result.Updated != 0 || result.Errors != 0 {
		t.Fatalf("result = %+v", result)
	}
	if len(store.upserts) != 3 {
		t.Fatalf("upserts = %d", len(store.upserts))
	}
}

func TestApplier_PerRecordFailureIsolation(t *testing.T) {
	// One bad record out of N must leave N-1 successes and 1 error.
	store := &fakeStore{failQbIds: map[string]bool{"2": true}}
	a := newTestApplier(store)

	events := []ChangeEvent{upsertEvent("1"), upsertEvent("2"), upsertEvent("3"), upsertEvent("4")}
	result, err := a.Apply(context.Background(), "realm-1", "Customer", events, 10)
	if err != nil {
		t.Fatal(err)
	}
	if result.Created != 3 || result.Errors != 1 {
		t.Fatalf("result = %+v", result)
	}
}

func TestApplier_MalformedPayloadCountsAsError(t *testing.T) {
	store := &fakeStore{}
	a := newTestApplier(store)

	events := []ChangeEvent{
		upsertEvent("1"),
		{Kind: ChangeKindUpsert, QbId: "bad", Raw: json.RawMessage(`{"Balance": "not-a-number"`)},
	}
	result, err := a.Apply(context.Background(), "realm-1", "Customer", events, 10)
	if err != nil {
		t.Fatal(err)
	}
	if result.Created != 1 || result.Errors != 1 {
		t.Fatalf("result = %+v", result)
	}
}

func TestApplier_DeletionSoftDeletesAndLogs(t *testing.T) {
	store := &fakeStore{}
	a := newTestApplier(store)

	deletedAt := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	events := []ChangeEvent{
		{Kind: ChangeKindDelete, QbId: "7", RemoteDeletedAt: &deletedAt},
	}
	result, err := a.Apply(context.Background(), "realm-1", "Customer", events, 42)
	if err != nil {
		t.Fatal(err)
	}
	if result.Deleted != 1 {
		t.Fatalf("result = %+v", result)
	}
	if len(store.deletes) != 1 || store.deletes[0] != "Customer/7" {
		t.Fatalf("deletes = %v", store.deletes)
	}
	if len(store.deletions) != 1 {
		t.Fatalf("deletion log entries = %d", len(store.deletions))
	}
	entry := store.deletions[0]
	if entry.RealmId != "realm-1" || entry.QbId != "7" || entry.SyncLogId != 42 {
		t.Fatalf("deletion log entry = %+v", entry)
	}
	if entry.RemoteDeletedAt == nil || !entry.RemoteDeletedAt.Equal(deletedAt) {
		t.Fatalf("remote deleted at = %v", entry.RemoteDeletedAt)
	}
	// The soft-deleted row's updated_at mirrors the remote deletion time.
	if got := store.deleteTimes["7"]; !got.Equal(deletedAt) {
		t.Fatalf("soft delete stamped %v, want remote time %v", got, deletedAt)
	}
}

func TestApplier_FailedDeletionCountsAsError(t *testing.T) {
	store := &fakeStore{failQbIds: map[string]bool{"7": true}}
	a := newTestApplier(store)

	events := []ChangeEvent{{Kind: ChangeKindDelete, QbId: "7"}}
	result, err := a.Apply(context.Background(), "realm-1", "Customer", events, 1)
	if err != nil {
		t.Fatal(err)
	}
	if result.Deleted != 0 || result.Errors != 1 {
		t.Fatalf("a failed soft delete counts as an error, not a deletion: %+v", result)
	}
	if len(store.deletions) != 0 {
		t.Fatal("no deletion log entry should be written when the soft delete fails")
	}
}

func TestApplier_UnsupportedType(t *testing.T) {
	a := newTestApplier(&fakeStore{})
	_, err := a.Apply(context.Background(), "realm-1", "TimeActivity", []ChangeEvent{upsertEvent("1")}, 1)
	if !errors.Is(err, ErrUnsupportedEntityType) {
		t.Fatalf("expected ErrUnsupportedEntityType, got %v", err)
	}
}
