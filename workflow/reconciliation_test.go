package workflow

import (
	"testing"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/qbsync_backend/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestClassifyMatch_ExactAmount(t *testing.T) {
	invoices := []InvoiceMatch{
		{QbId: "310", ServiceType: "rent", Total: dec("500.00"), Balance: dec("0")},
	}
	got := ClassifyMatch(dec("500.00"), models.ExpectationStatusActive, "rent", invoices)
	if got.Status != models.MatchStatusMatched {
		t.Fatalf("status = %s", got.Status)
	}
	if !got.AmountDiff.IsZero() {
		t.Fatalf("diff = %s", got.AmountDiff)
	}
	if len(got.MatchedIds) != 1 || got.MatchedIds[0] != "310" {
		t.Fatalf("matched ids = %v", got.MatchedIds)
	}
}

func TestClassifyMatch_AmountMismatch(t *testing.T) {
	invoices := []InvoiceMatch{
		{QbId: "310", ServiceType: "rent", Total: dec("450.00"), Balance: dec("450.00")},
	}
	got := ClassifyMatch(dec("500.00"), models.ExpectationStatusActive, "rent", invoices)
	if got.Status != models.MatchStatusAmountMismatch {
		t.Fatalf("status = %s", got.Status)
	}
	if got.AmountDiff.String() != "-50" {
		t.Fatalf("diff = %s, want -50 (qb total minus expected)", got.AmountDiff)
	}
	if got.QbTotal.String() != "450" {
		t.Fatalf("qb total = %s", got.QbTotal)
	}
}

func TestClassifyMatch_NoInvoice(t *testing.T) {
	got := ClassifyMatch(dec("500.00"), models.ExpectationStatusActive, "rent", nil)
	if got.Status != models.MatchStatusNoQbInvoice {
		t.Fatalf("status = %s", got.Status)
	}
	if got.AmountDiff.String() != "-500" {
		t.Fatalf("diff = %s", got.AmountDiff)
	}
}

func TestClassifyMatch_MultipleInvoicesSummingExactly(t *testing.T) {
	invoices := []InvoiceMatch{
		{QbId: "310", ServiceType: "rent", Total: dec("300.00")},
		{QbId: "311", ServiceType: "rent", Total: dec("200.00")},
	}
	got := ClassifyMatch(dec("500.00"), models.ExpectationStatusActive, "rent", invoices)
	if got.Status != models.MatchStatusMatchedMultiple {
		t.Fatalf("status = %s", got.Status)
	}
	if len(got.MatchedIds) != 2 {
		t.Fatalf("matched ids = %v", got.MatchedIds)
	}
}

func TestClassifyMatch_ServiceMismatch(t *testing.T) {
	invoices := []InvoiceMatch{
		{QbId: "310", ServiceType: "cleaning", Total: dec("500.00")},
	}
	got := ClassifyMatch(dec("500.00"), models.ExpectationStatusActive, "rent", invoices)
	if got.Status != models.MatchStatusServiceMismatched {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestClassifyMatch_LtVoidedWinsOverEverything(t *testing.T) {
	invoices := []InvoiceMatch{
		{QbId: "310", ServiceType: "rent", Total: dec("500.00")},
	}
	got := ClassifyMatch(dec("500.00"), models.ExpectationStatusLtVoided, "rent", invoices)
	if got.Status != models.MatchStatusLtVoided {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestClassifyMatch_ServiceTypeCaseInsensitive(t *testing.T) {
	invoices := []InvoiceMatch{
		{QbId: "310", ServiceType: "Rent", Total: dec("500.00")},
	}
	got := ClassifyMatch(dec("500.00"), models.ExpectationStatusActive, "RENT", invoices)
	if got.Status != models.MatchStatusMatched {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestInvoiceServiceType(t *testing.T) {
	inv := models.QuickbooksInvoice{DocNumber: "RENT-2024-018"}
	if got := invoiceServiceType(inv); got != "rent" {
		t.Fatalf("service type = %q", got)
	}
	inv = models.QuickbooksInvoice{PrivateNote: "cleaning"}
	if got := invoiceServiceType(inv); got != "cleaning" {
		t.Fatalf("service type = %q", got)
	}
}
