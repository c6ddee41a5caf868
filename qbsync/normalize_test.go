package qbsync

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/qbsync_backend/models"
)

func TestNormalize_UnsupportedEntityType(t *testing.T) {
	_, err := Normalize("TimeActivity", json.RawMessage(`{}`), "realm-1")
	if !errors.Is(err, ErrUnsupportedEntityType) {
		t.Fatalf("expected ErrUnsupportedEntityType, got %v", err)
	}
}

func TestNormalizeCustomer_FullPayload(t *testing.T) {
	raw := json.RawMessage(`{
		"Id": "42",
		"SyncToken": "3",
		"DisplayName": "Acme GmbH",
		"CompanyName": "Acme",
		"PrimaryEmailAddr": {"Address": "billing@acme.test"},
		"PrimaryPhone": {"FreeFormNumber": "+49 30 1234"},
		"Balance": 1250.50,
		"CurrencyRef": {"value": "EUR"},
		"Active": true,
		"MetaData": {"CreateTime": "2023-01-10T08:00:00-08:00", "LastUpdatedTime": "2024-02-20T09:30:00-08:00"}
	}`)
	row, err := Normalize("Customer", raw, "realm-1")
	if err != nil {
		t.Fatal(err)
	}
	customer, ok := row.(*models.QuickbooksCustomer)
	if !ok {
		t.Fatalf("unexpected row type %T", row)
	}
	if customer.RealmId != "realm-1" || customer.QbId != "42" || customer.SyncToken != "3" {
		t.Fatalf("base fields wrong: %+v", customer.QBEntityBase)
	}
	if customer.DisplayName != "Acme GmbH" || customer.Email != "billing@acme.test" {
		t.Fatalf("fields wrong: %+v", customer)
	}
	if customer.Balance.String() != "1250.5" {
		t.Fatalf("balance = %s", customer.Balance)
	}
	if customer.CurrencyRef != "EUR" {
		t.Fatalf("currency = %s", customer.CurrencyRef)
	}
	wantUpdated := time.Date(2024, 2, 20, 17, 30, 0, 0, time.UTC)
	if !customer.UpdatedAt.Equal(wantUpdated) {
		t.Fatalf("updated_at should mirror remote LastUpdatedTime, got %v", customer.UpdatedAt)
	}
	if customer.IsDeleted {
		t.Fatal("normalized rows are never deleted")
	}
}

func TestNormalizeCustomer_MissingFieldsDefault(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	row, err := NormalizeAt("Customer", json.RawMessage(`{"Id": "7"}`), "realm-1", now)
	if err != nil {
		t.Fatal(err)
	}
	customer := row.(*models.QuickbooksCustomer)
	if customer.DisplayName != "Unknown" {
		t.Fatalf("missing DisplayName should default to Unknown, got %q", customer.DisplayName)
	}
	if !customer.Active {
		t.Fatal("missing Active should default to true")
	}
	if !customer.Balance.IsZero() {
		t.Fatalf("missing Balance should default to zero, got %s", customer.Balance)
	}
	// No MetaData: both timestamps fall back to the observation time.
	if !customer.CreatedAt.Equal(now) || !customer.UpdatedAt.Equal(now) {
		t.Fatalf("timestamps should default to now, got %v / %v", customer.CreatedAt, customer.UpdatedAt)
	}
}

func TestNormalize_UpdatedAtDefaultsToCreatedAt(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	raw := json.RawMessage(`{"Id": "9", "MetaData": {"CreateTime": "2023-06-01T00:00:00+00:00"}}`)
	row, err := NormalizeAt("Vendor", raw, "realm-1", now)
	if err != nil {
		t.Fatal(err)
	}
	vendor := row.(*models.QuickbooksVendor)
	if !vendor.UpdatedAt.Equal(vendor.CreatedAt) {
		t.Fatalf("missing LastUpdatedTime should fall back to CreateTime, got %v vs %v",
			vendor.UpdatedAt, vendor.CreatedAt)
	}
}

func TestNormalizeInvoice(t *testing.T) {
	raw := json.RawMessage(`{
		"Id": "310",
		"SyncToken": "1",
		"DocNumber": "RENT-2024-018",
		"TxnDate": "2024-03-01",
		"DueDate": "2024-03-15",
		"CustomerRef": {"value": "42", "name": "Acme GmbH"},
		"TotalAmt": 500,
		"Balance": 0,
		"Line": [{"Amount": 500, "DetailType": "SalesItemLineDetail"}]
	}`)
	row, err := Normalize("Invoice", raw, "realm-1")
	if err != nil {
		t.Fatal(err)
	}
	invoice := row.(*models.QuickbooksInvoice)
	if invoice.CustomerQbId != "42" {
		t.Fatalf("customer ref = %q", invoice.CustomerQbId)
	}
	if invoice.TxnDate == nil || invoice.TxnDate.Day() != 1 {
		t.Fatalf("txn date = %v", invoice.TxnDate)
	}
	if invoice.TotalAmt.String() != "500" {
		t.Fatalf("total = %s", invoice.TotalAmt)
	}
	var lines []json.RawMessage
	if err := json.Unmarshal(invoice.LinesJSON, &lines); err != nil || len(lines) != 1 {
		t.Fatalf("lines json round trip failed: %v %d", err, len(lines))
	}
}

func TestNormalizeCompanyInfo_FiscalMonth(t *testing.T) {
	cases := map[string]int{
		"January":  1,
		"april":    4,
		"DECEMBER": 12,
		"7":        7,
		"":         1,
		"Unknown":  1,
		"13":       1,
	}
	for input, want := range cases {
		if got := fiscalMonthNumber(input); got != want {
			t.Errorf("fiscalMonthNumber(%q) = %d, want %d", input, got, want)
		}
	}

	raw := json.RawMessage(`{"Id": "1", "CompanyName": "Test Co", "FiscalYearStartMonth": "April"}`)
	row, err := Normalize("CompanyInfo", raw, "realm-1")
	if err != nil {
		t.Fatal(err)
	}
	info := row.(*models.QuickbooksCompanyInfo)
	if info.FiscalYearStartMonth != 4 {
		t.Fatalf("fiscal month = %d", info.FiscalYearStartMonth)
	}
}

func TestSupportedEntityTypes_CoversRegistry(t *testing.T) {
	types := SupportedEntityTypes()
	if len(types) != len(entityRegistry) {
		t.Fatalf("got %d types, registry has %d", len(types), len(entityRegistry))
	}
	// Every registered type must normalize a minimal payload.
	for _, entityType := range types {
		if _, err := Normalize(entityType, json.RawMessage(`{"Id": "1"}`), "realm-1"); err != nil {
			t.Errorf("Normalize(%s) minimal payload: %v", entityType, err)
		}
	}
}
