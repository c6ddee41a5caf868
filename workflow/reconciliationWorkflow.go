package workflow

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/models"
)

// InvoiceMatch is the slice of a QuickBooks invoice the classifier needs.
type InvoiceMatch struct {
	QbId        string
	DocNumber   string
	ServiceType string
	Total       decimal.Decimal
	Balance     decimal.Decimal
}

type Classification struct {
	Status     string
	QbTotal    decimal.Decimal
	QbBalance  decimal.Decimal
	AmountDiff decimal.Decimal
	MatchedIds []string
}

// ClassifyMatch computes the match status for one expectation. It is a pure
// function of the expected amount, the local status and the matched invoice
// set; the reconciliation pass calls it and persists the result, nothing
// else writes match_status.
func ClassifyMatch(expected decimal.Decimal, localStatus string, serviceType string, invoices []InvoiceMatch) Classification {
	result := Classification{
		QbTotal:    decimal.Zero,
		QbBalance:  decimal.Zero,
		AmountDiff: expected.Neg(),
	}
	if localStatus == models.ExpectationStatusLtVoided {
		result.Status = models.MatchStatusLtVoided
		return result
	}
	if len(invoices) == 0 {
		result.Status = models.MatchStatusNoQbInvoice
		return result
	}

	for _, inv := range invoices {
		result.QbTotal = result.QbTotal.Add(inv.Total)
		result.QbBalance = result.QbBalance.Add(inv.Balance)
		result.MatchedIds = append(result.MatchedIds, inv.QbId)
	}
	result.AmountDiff = result.QbTotal.Sub(expected)

	if serviceType != "" && !anyServiceMatches(invoices, serviceType) {
		result.Status = models.MatchStatusServiceMismatched
		return result
	}
	if !result.AmountDiff.IsZero() {
		result.Status = models.MatchStatusAmountMismatch
		return result
	}
	if len(invoices) > 1 {
		result.Status = models.MatchStatusMatchedMultiple
		return result
	}
	result.Status = models.MatchStatusMatched
	return result
}

func anyServiceMatches(invoices []InvoiceMatch, serviceType string) bool {
	want := strings.ToLower(strings.TrimSpace(serviceType))
	for _, inv := range invoices {
		if strings.ToLower(strings.TrimSpace(inv.ServiceType)) == want {
			return true
		}
	}
	return false
}

// RecomputeReconciliation refreshes every active expectation for the realm
// against the currently synced invoices. Expectation rows that fail to
// update are logged and skipped; the pass always covers the full set.
func RecomputeReconciliation(tx *gorm.DB, logger *logrus.Logger, realmId string) (int, error) {
	var expectations []models.InvoiceExpectation
	if err := tx.Where("realm_id = ?", realmId).Find(&expectations).Error; err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "RecomputeReconciliation", "querying expectations", realmId, err)
		return 0, err
	}

	updated := 0
	now := time.Now().UTC()
	for _, exp := range expectations {
		invoices, err := matchInvoices(tx, exp)
		if err != nil {
			config.LogError(logger, "reconciliationWorkflow.go", "RecomputeReconciliation", "matching invoices", exp.ID, err)
			continue
		}
		classification := ClassifyMatch(exp.ExpectedAmount, exp.LocalStatus, exp.ServiceType, invoices)
		matchedIds, _ := json.Marshal(classification.MatchedIds)
		err = tx.Model(&models.InvoiceExpectation{}).
			Where("id = ?", exp.ID).
			Updates(map[string]any{
				"match_status":        classification.Status,
				"matched_invoice_ids": matchedIds,
				"qb_total":            classification.QbTotal,
				"qb_balance":          classification.QbBalance,
				"amount_diff":         classification.AmountDiff,
				"reconciled_at":       now,
			}).Error
		if err != nil {
			config.LogError(logger, "reconciliationWorkflow.go", "RecomputeReconciliation", "updating expectation", exp.ID, err)
			continue
		}
		updated++
	}
	return updated, nil
}

// matchInvoices finds the realm's non-deleted invoices for the expectation's
// customer whose transaction date falls in the expectation's month.
func matchInvoices(tx *gorm.DB, exp models.InvoiceExpectation) ([]InvoiceMatch, error) {
	monthStart, err := time.Parse("2006-01", exp.Month)
	if err != nil {
		return nil, err
	}
	monthEnd := monthStart.AddDate(0, 1, 0)

	var invoices []models.QuickbooksInvoice
	err = tx.Where("realm_id = ? AND customer_qb_id = ? AND is_deleted = ? AND txn_date >= ? AND txn_date < ?",
		exp.RealmId, exp.CustomerQbId, false, monthStart, monthEnd).
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}

	matches := make([]InvoiceMatch, 0, len(invoices))
	for _, inv := range invoices {
		matches = append(matches, InvoiceMatch{
			QbId:        inv.QbId,
			DocNumber:   inv.DocNumber,
			ServiceType: invoiceServiceType(inv),
			Total:       inv.TotalAmt,
			Balance:     inv.Balance,
		})
	}
	return matches, nil
}

// invoiceServiceType recovers the service tag from an invoice. Invoices we
// issue carry it as the doc number prefix ("RENT-2024-018"); older ones only
// mention it in the private note.
func invoiceServiceType(inv models.QuickbooksInvoice) string {
	if idx := strings.Index(inv.DocNumber, "-"); idx > 0 {
		return strings.ToLower(inv.DocNumber[:idx])
	}
	return strings.ToLower(strings.TrimSpace(inv.PrivateNote))
}

// invoiceCreator is satisfied by the sync client; split out so the creation
// path can be tested without HTTP.
type invoiceCreator interface {
	CreateInvoice(ctx context.Context, realmID string, payload any) ([]byte, error)
}

// CreateMissingInvoice pushes a QuickBooks invoice for an approved
// expectation classified as having none. Gated twice: the per-row approval
// flag and the QBO_RECONCILE_CREATE_INVOICES feature flag.
func CreateMissingInvoice(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, creator invoiceCreator, expectationId uint) error {
	if !config.ReconcileCreateInvoices() {
		return ErrInvoiceCreationDisabled
	}

	var exp models.InvoiceExpectation
	if err := tx.Where("id = ?", expectationId).Take(&exp).Error; err != nil {
		return err
	}
	if !exp.ApprovedForCreation {
		return ErrNotApproved
	}
	if exp.MatchStatus != models.MatchStatusNoQbInvoice {
		return ErrNotMissing
	}

	payload := map[string]any{
		"CustomerRef": map[string]string{"value": exp.CustomerQbId},
		"DocNumber":   buildDocNumber(exp),
		"Line": []map[string]any{
			{
				"DetailType": "SalesItemLineDetail",
				"Amount":     exp.ExpectedAmount,
				"Description": strings.TrimSpace(strings.Join([]string{
					exp.ServiceType, exp.Apartment, exp.Month,
				}, " ")),
				"SalesItemLineDetail": map[string]any{},
			},
		},
	}
	if _, err := creator.CreateInvoice(ctx, exp.RealmId, payload); err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "CreateMissingInvoice", "creating quickbooks invoice", exp.ID, err)
		return err
	}

	logger.WithFields(logrus.Fields{
		"realm_id":       exp.RealmId,
		"expectation_id": exp.ID,
		"customer_qb_id": exp.CustomerQbId,
		"amount":         exp.ExpectedAmount.String(),
	}).Info("quickbooks invoice created from expectation")

	// The next sync picks the new invoice up and the next recompute flips
	// the status; clearing the approval keeps the action single-shot.
	return tx.Model(&models.InvoiceExpectation{}).
		Where("id = ?", exp.ID).
		Update("approved_for_creation", false).Error
}

func buildDocNumber(exp models.InvoiceExpectation) string {
	parts := []string{}
	if exp.ServiceType != "" {
		parts = append(parts, strings.ToUpper(exp.ServiceType))
	}
	parts = append(parts, exp.Month)
	return strings.Join(parts, "-")
}
