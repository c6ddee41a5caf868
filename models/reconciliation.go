package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MatchStatusMatched           = "matched"
	MatchStatusMatchedMultiple   = "matched_multiple"
	MatchStatusAmountMismatch    = "amount_mismatch"
	MatchStatusServiceMismatched = "service_mismatched"
	MatchStatusNoQbInvoice       = "no_qb_invoice"
	MatchStatusLtVoided          = "lt_voided"
)

const (
	ExpectationStatusActive   = "active"
	ExpectationStatusLtVoided = "lt_voided"
)

// InvoiceExpectation is one locally generated billing expectation (what we
// believe should have been invoiced for an apartment/service/month) joined
// against whatever QuickBooks invoices the reconciliation pass matched.
// MatchStatus and the amount columns are recomputed by the reconciliation
// workflow only; they are never edited directly.
type InvoiceExpectation struct {
	ID                  uint            `gorm:"primary_key" json:"id"`
	RealmId             string          `gorm:"index;size:64;not null" json:"realm_id"`
	CustomerQbId        string          `gorm:"index;size:64;not null" json:"customer_qb_id"`
	Apartment           string          `gorm:"size:100" json:"apartment"`
	ServiceType         string          `gorm:"size:50" json:"service_type"`
	Month               string          `gorm:"size:7;index;not null" json:"month"` // YYYY-MM
	ExpectedAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"expected_amount"`
	LocalStatus         string          `gorm:"size:20;default:'active'" json:"local_status"`
	MatchStatus         string          `gorm:"size:30" json:"match_status"`
	MatchedInvoiceIds   []byte          `gorm:"type:json" json:"matched_invoice_ids"`
	QbTotal             decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qb_total"`
	QbBalance           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qb_balance"`
	AmountDiff          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_diff"`
	ApprovedForCreation bool            `gorm:"default:false" json:"approved_for_creation"`
	ReconciledAt        *time.Time      `json:"reconciled_at"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
