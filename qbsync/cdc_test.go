package qbsync

import (
	"testing"
	"time"
)

const mixedCDCBody = `{
	"CDCResponse": [
		{
			"QueryResponse": [
				{
					"Customer": [
						{"Id": "1", "DisplayName": "Kept", "SyncToken": "0"},
						{"Id": "2", "status": "Deleted", "MetaData": {"LastUpdatedTime": "2024-04-01T10:00:00+00:00"}}
					],
					"startPosition": 1,
					"maxResults": 2
				},
				{
					"DeletedVendor": [
						{"Id": "9", "status": "Deleted", "MetaData": {"LastUpdatedTime": "2024-04-02T11:00:00+00:00"}}
					]
				}
			]
		}
	],
	"time": "2024-04-03T00:00:00.000-07:00"
}`

func TestParseCDCBody_BothDeletionConventions(t *testing.T) {
	events, err := ParseCDCBody([]byte(mixedCDCBody), []string{"Customer", "Vendor", "Invoice"})
	if err != nil {
		t.Fatal(err)
	}

	customers := events["Customer"]
	if len(customers) != 2 {
		t.Fatalf("expected 2 customer events, got %d", len(customers))
	}
	if customers[0].Kind != ChangeKindUpsert || customers[0].QbId != "1" {
		t.Fatalf("first customer event wrong: %+v", customers[0])
	}
	if customers[1].Kind != ChangeKindDelete || customers[1].QbId != "2" {
		t.Fatalf("inline status Deleted must yield a delete event: %+v", customers[1])
	}
	if customers[1].RemoteDeletedAt == nil ||
		!customers[1].RemoteDeletedAt.Equal(time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("remote deleted at = %v", customers[1].RemoteDeletedAt)
	}

	vendors := events["Vendor"]
	if len(vendors) != 1 || vendors[0].Kind != ChangeKindDelete || vendors[0].QbId != "9" {
		t.Fatalf("DeletedVendor sibling array must yield a delete event: %+v", vendors)
	}

	if len(events["Invoice"]) != 0 {
		t.Fatalf("absent type key must mean no events, got %d", len(events["Invoice"]))
	}
}

func TestParseCDCBody_EmptyResponse(t *testing.T) {
	events, err := ParseCDCBody([]byte(`{"CDCResponse": [{"QueryResponse": []}]}`), []string{"Customer"})
	if err != nil {
		t.Fatal(err)
	}
	if len(events["Customer"]) != 0 {
		t.Fatalf("expected no events, got %d", len(events["Customer"]))
	}
}

func TestParseCDCBody_MultipleBlocksAccumulate(t *testing.T) {
	body := `{
		"CDCResponse": [
			{"QueryResponse": [{"Item": [{"Id": "1", "Name": "A"}]}]},
			{"QueryResponse": [{"Item": [{"Id": "2", "Name": "B"}]}]}
		]
	}`
	events, err := ParseCDCBody([]byte(body), []string{"Item"})
	if err != nil {
		t.Fatal(err)
	}
	if len(events["Item"]) != 2 {
		t.Fatalf("events across blocks must accumulate, got %d", len(events["Item"]))
	}
}

func TestParseCDCBody_Malformed(t *testing.T) {
	if _, err := ParseCDCBody([]byte(`not json`), []string{"Customer"}); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

func TestChangeSetTotal(t *testing.T) {
	cs := &ChangeSet{Events: map[string][]ChangeEvent{
		"Customer": {{}, {}},
		"Invoice":  {{}},
	}}
	if cs.Total() != 3 {
		t.Fatalf("total = %d", cs.Total())
	}
}
