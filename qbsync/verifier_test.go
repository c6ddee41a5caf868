package qbsync

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestVerifier_RemoteCount(t *testing.T) {
	querier := &fakeQuerier{responses: map[string][]byte{
		"SELECT COUNT(*) FROM Customer": []byte(`{"QueryResponse": {"totalCount": 17}}`),
	}}
	v := NewVerifier(querier, nil, logrus.New())

	got, err := v.remoteCount(context.Background(), "realm-1", "Customer")
	if err != nil {
		t.Fatalf("remoteCount: %v", err)
	}
	if got != 17 {
		t.Fatalf("remoteCount = %d, want 17", got)
	}
}

func TestVerifier_DegradesPerType(t *testing.T) {
	// No responses registered: every remote count fails, and verification
	// must still produce one errored row per requested type.
	querier := &fakeQuerier{responses: map[string][]byte{}}
	v := NewVerifier(querier, nil, logrus.New())

	results := v.VerifyCounts(context.Background(), "realm-1", []string{"Widget", "Customer"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].EntityType != "Widget" || results[0].Error == "" {
		t.Errorf("unsupported type must surface as an errored row: %+v", results[0])
	}
	if results[1].EntityType != "Customer" || results[1].Error == "" {
		t.Errorf("remote failure must surface as an errored row: %+v", results[1])
	}
	if results[0].Match || results[1].Match {
		t.Error("errored rows must not report a match")
	}
}
