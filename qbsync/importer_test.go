package qbsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestPlanPages(t *testing.T) {
	pages := planPages(2500, 1000)
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	if pages[0].Start != 1 || pages[0].Size != 1000 {
		t.Fatalf("page 0 = %+v", pages[0])
	}
	if pages[1].Start != 1001 || pages[1].Size != 1000 {
		t.Fatalf("page 1 = %+v", pages[1])
	}
	if pages[2].Start != 2001 || pages[2].Size != 500 {
		t.Fatalf("last page must shrink to the remainder: %+v", pages[2])
	}

	if got := planPages(0, 1000); got != nil {
		t.Fatalf("zero total means no pages, got %v", got)
	}
	if got := planPages(1000, 1000); len(got) != 1 {
		t.Fatalf("exact fit means one page, got %d", len(got))
	}
}

func TestQueryBuilders(t *testing.T) {
	if got := countQuery("Invoice", nil); got != "SELECT COUNT(*) FROM Invoice" {
		t.Fatalf("countQuery = %q", got)
	}
	dr := &DateRange{
		From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	want := "SELECT COUNT(*) FROM Invoice WHERE TxnDate >= '2024-01-01' AND TxnDate <= '2024-06-30'"
	if got := countQuery("Invoice", dr); got != want {
		t.Fatalf("countQuery = %q", got)
	}

	sel := selectQuery("Invoice", nil, pageDescriptor{Start: 1001, Size: 1000})
	if sel != "SELECT * FROM Invoice STARTPOSITION 1001 MAXRESULTS 1000" {
		t.Fatalf("selectQuery = %q", sel)
	}
}

func TestIsTransientNetError(t *testing.T) {
	transient := []error{
		syscall.ECONNRESET,
		syscall.ECONNREFUSED,
		fmt.Errorf("wrapped: %w", syscall.EPIPE),
		&net.OpError{Op: "read", Err: &timeoutErr{}},
		errors.New("read tcp 1.2.3.4: connection reset by peer"),
	}
	for _, err := range transient {
		if !isTransientNetError(err) {
			t.Errorf("expected %v to be transient", err)
		}
	}

	permanent := []error{
		nil,
		errors.New("Error 1062: Duplicate entry"),
		ErrUnsupportedEntityType,
	}
	for _, err := range permanent {
		if isTransientNetError(err) {
			t.Errorf("expected %v not to be transient", err)
		}
	}
}

type timeoutErr struct{}

func (*timeoutErr) Error() string   { return "i/o timeout" }
func (*timeoutErr) Timeout() bool   { return true }
func (*timeoutErr) Temporary() bool { return true }

type fakeQuerier struct {
	responses map[string][]byte
	queries   []string
}

func (f *fakeQuerier) Query(ctx context.Context, realmID string, query string) ([]byte, error) {
	f.queries = append(f.queries, query)
	body, ok := f.responses[query]
	if !ok {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
	return body, nil
}

func TestImporter_ImportEntityType(t *testing.T) {
	querier := &fakeQuerier{responses: map[string][]byte{
		"SELECT COUNT(*) FROM Customer": []byte(`{"QueryResponse": {"totalCount": 2}}`),
		"SELECT * FROM Customer STARTPOSITION 1 MAXRESULTS 2": []byte(`{
			"QueryResponse": {
				"Customer": [
					{"Id": "1", "DisplayName": "A"},
					{"Id": "2", "DisplayName": "B"}
				],
				"totalCount": 2
			}
		}`),
	}}
	store := &fakeStore{}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	im := &Importer{client: querier, store: store, logger: logger, now: time.Now}

	result, err := im.ImportEntityType(context.Background(), "realm-1", "Customer", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.RemoteTotal != 2 || result.Imported != 2 || result.Errors != 0 {
		t.Fatalf("result = %+v", result)
	}
	if len(store.upserts) != 2 {
		t.Fatalf("upserts = %d", len(store.upserts))
	}
	// Both rows fit one sub-chunk and must arrive as a single batched write.
	if len(store.batchSizes) != 1 || store.batchSizes[0] != 2 {
		t.Fatalf("batch sizes = %v, want one batch of 2", store.batchSizes)
	}
}

func TestImporter_ChunkRetriedOnTransientError(t *testing.T) {
	store := &fakeStore{batchErrs: []error{&net.OpError{Op: "write", Err: &timeoutErr{}}}}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	im := &Importer{client: &fakeQuerier{}, store: store, logger: logger, now: time.Now}

	rows := []json.RawMessage{
		json.RawMessage(`{"Id": "1", "DisplayName": "A"}`),
		json.RawMessage(`{"Id": "2", "DisplayName": "B"}`),
	}
	imported, errored := im.upsertPage(context.Background(), "realm-1", "Customer", rows)
	if imported != 2 || errored != 0 {
		t.Fatalf("imported=%d errored=%d, want the retried chunk to succeed", imported, errored)
	}
	if len(store.batchSizes) != 1 || store.batchSizes[0] != 2 {
		t.Fatalf("batch sizes = %v", store.batchSizes)
	}
}

func TestImporter_ChunkNotRetriedOnPermanentError(t *testing.T) {
	// A constraint violation fails the whole chunk without retries.
	store := &fakeStore{batchErrs: []error{
		errors.New("Error 1062: Duplicate entry"),
		errors.New("Error 1062: Duplicate entry"),
		errors.New("Error 1062: Duplicate entry"),
	}}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	im := &Importer{client: &fakeQuerier{}, store: store, logger: logger, now: time.Now}

	rows := []json.RawMessage{
		json.RawMessage(`{"Id": "1", "DisplayName": "A"}`),
		json.RawMessage(`{"Id": "2", "DisplayName": "B"}`),
	}
	imported, errored := im.upsertPage(context.Background(), "realm-1", "Customer", rows)
	if imported != 0 || errored != 2 {
		t.Fatalf("imported=%d errored=%d, want the whole chunk errored", imported, errored)
	}
	if len(store.batchErrs) != 2 {
		t.Fatalf("%d queued errors left, want 2: permanent failures must not be retried", len(store.batchErrs))
	}
}

func TestImporter_DateRangeIgnoredForNonTransactional(t *testing.T) {
	querier := &fakeQuerier{responses: map[string][]byte{
		"SELECT COUNT(*) FROM Customer": []byte(`{"QueryResponse": {"totalCount": 0}}`),
	}}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	im := &Importer{client: querier, store: &fakeStore{}, logger: logger, now: time.Now}

	dr := &DateRange{From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	if _, err := im.ImportEntityType(context.Background(), "realm-1", "Customer", dr); err != nil {
		t.Fatal(err)
	}
	// Customer is a list kind, not transactional: no WHERE TxnDate clause.
	if querier.queries[0] != "SELECT COUNT(*) FROM Customer" {
		t.Fatalf("query = %q", querier.queries[0])
	}
}

func TestImporter_UnsupportedType(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	im := &Importer{client: &fakeQuerier{}, store: &fakeStore{}, logger: logger, now: time.Now}
	_, err := im.ImportEntityType(context.Background(), "realm-1", "TimeActivity", nil)
	if !errors.Is(err, ErrUnsupportedEntityType) {
		t.Fatalf("expected ErrUnsupportedEntityType, got %v", err)
	}
}
