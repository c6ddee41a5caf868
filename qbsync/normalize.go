package qbsync

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/qbsync_backend/models"
)

// NormalizerFunc maps one raw QuickBooks entity payload onto the row type of
// that entity's table. Normalizers are pure: missing nested structure becomes
// a default, never a panic or an error. The only errors are malformed JSON.
type NormalizerFunc func(raw json.RawMessage, realmID string, now time.Time) (any, error)

type entityRegistration struct {
	// Name is the QuickBooks entity type name as used by the CDC and query
	// endpoints ("Customer", "Invoice", ...).
	Name string
	// Table is the local table for this entity kind.
	Table string
	// Transactional kinds support WHERE TxnDate filters on full imports.
	Transactional bool
	NewModel      func() any
	Normalize     NormalizerFunc
}

// entityRegistry holds one registration per supported kind, in the order the
// incremental sync processes them. Adding a kind means adding a registration,
// never editing a conditional.
var entityRegistry = []entityRegistration{
	{Name: "CompanyInfo", Table: "quickbooks_company_infos", NewModel: func() any { return &models.QuickbooksCompanyInfo{} }, Normalize: normalizeCompanyInfo},
	{Name: "Account", Table: "quickbooks_accounts", NewModel: func() any { return &models.QuickbooksAccount{} }, Normalize: normalizeAccount},
	{Name: "TaxCode", Table: "quickbooks_tax_codes", NewModel: func() any { return &models.QuickbooksTaxCode{} }, Normalize: normalizeTaxCode},
	{Name: "Term", Table: "quickbooks_terms", NewModel: func() any { return &models.QuickbooksTerm{} }, Normalize: normalizeTerm},
	{Name: "Customer", Table: "quickbooks_customers", NewModel: func() any { return &models.QuickbooksCustomer{} }, Normalize: normalizeCustomer},
	{Name: "Vendor", Table: "quickbooks_vendors", NewModel: func() any { return &models.QuickbooksVendor{} }, Normalize: normalizeVendor},
	{Name: "Employee", Table: "quickbooks_employees", NewModel: func() any { return &models.QuickbooksEmployee{} }, Normalize: normalizeEmployee},
	{Name: "Item", Table: "quickbooks_items", NewModel: func() any { return &models.QuickbooksItem{} }, Normalize: normalizeItem},
	{Name: "Invoice", Table: "quickbooks_invoices", Transactional: true, NewModel: func() any { return &models.QuickbooksInvoice{} }, Normalize: normalizeInvoice},
	{Name: "Payment", Table: "quickbooks_payments", Transactional: true, NewModel: func() any { return &models.QuickbooksPayment{} }, Normalize: normalizePayment},
	{Name: "Bill", Table: "quickbooks_bills", Transactional: true, NewModel: func() any { return &models.QuickbooksBill{} }, Normalize: normalizeBill},
	{Name: "BillPayment", Table: "quickbooks_bill_payments", Transactional: true, NewModel: func() any { return &models.QuickbooksBillPayment{} }, Normalize: normalizeBillPayment},
	{Name: "CreditMemo", Table: "quickbooks_credit_memos", Transactional: true, NewModel: func() any { return &models.QuickbooksCreditMemo{} }, Normalize: normalizeCreditMemo},
	{Name: "VendorCredit", Table: "quickbooks_vendor_credits", Transactional: true, NewModel: func() any { return &models.QuickbooksVendorCredit{} }, Normalize: normalizeVendorCredit},
	{Name: "JournalEntry", Table: "quickbooks_journal_entries", Transactional: true, NewModel: func() any { return &models.QuickbooksJournalEntry{} }, Normalize: normalizeJournalEntry},
	{Name: "Deposit", Table: "quickbooks_deposits", Transactional: true, NewModel: func() any { return &models.QuickbooksDeposit{} }, Normalize: normalizeDeposit},
	{Name: "Purchase", Table: "quickbooks_purchases", Transactional: true, NewModel: func() any { return &models.QuickbooksPurchase{} }, Normalize: normalizePurchase},
	{Name: "PurchaseOrder", Table: "quickbooks_purchase_orders", Transactional: true, NewModel: func() any { return &models.QuickbooksPurchaseOrder{} }, Normalize: normalizePurchaseOrder},
	{Name: "SalesReceipt", Table: "quickbooks_sales_receipts", Transactional: true, NewModel: func() any { return &models.QuickbooksSalesReceipt{} }, Normalize: normalizeSalesReceipt},
	{Name: "RefundReceipt", Table: "quickbooks_refund_receipts", Transactional: true, NewModel: func() any { return &models.QuickbooksRefundReceipt{} }, Normalize: normalizeRefundReceipt},
	{Name: "Transfer", Table: "quickbooks_transfers", Transactional: true, NewModel: func() any { return &models.QuickbooksTransfer{} }, Normalize: normalizeTransfer},
}

var registryByName = func() map[string]entityRegistration {
	m := make(map[string]entityRegistration, len(entityRegistry))
	for _, reg := range entityRegistry {
		m[reg.Name] = reg
	}
	return m
}()

// SupportedEntityTypes returns the registered kinds in sync order.
func SupportedEntityTypes() []string {
	out := make([]string, 0, len(entityRegistry))
	for _, reg := range entityRegistry {
		out = append(out, reg.Name)
	}
	return out
}

func lookupEntityType(entityType string) (entityRegistration, error) {
	reg, ok := registryByName[entityType]
	if !ok {
		return entityRegistration{}, fmt.Errorf("%w: %s", ErrUnsupportedEntityType, entityType)
	}
	return reg, nil
}

// Normalize maps a raw payload of the given kind to its row type.
func Normalize(entityType string, raw json.RawMessage, realmID string) (any, error) {
	return NormalizeAt(entityType, raw, realmID, time.Now())
}

func NormalizeAt(entityType string, raw json.RawMessage, realmID string, now time.Time) (any, error) {
	reg, err := lookupEntityType(entityType)
	if err != nil {
		return nil, err
	}
	return reg.Normalize(raw, realmID, now)
}

// newBase builds the columns every entity row shares. CreatedAt/UpdatedAt
// mirror the remote MetaData times; only a first-ever observation with no
// MetaData falls back to local wall clock.
func newBase(h qbEntityHeader, realmID string, raw json.RawMessage, now time.Time) models.QBEntityBase {
	createdAt := now
	if h.MetaData != nil {
		if t := parseQBTime(h.MetaData.CreateTime); t != nil {
			createdAt = *t
		}
	}
	updatedAt := createdAt
	if h.MetaData != nil {
		if t := parseQBTime(h.MetaData.LastUpdatedTime); t != nil {
			updatedAt = *t
		}
	}
	return models.QBEntityBase{
		RealmId:   realmID,
		QbId:      h.Id,
		SyncToken: h.SyncToken,
		IsDeleted: false,
		RawJSON:   append([]byte(nil), raw...),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

func marshalLines(lines []json.RawMessage) []byte {
	if len(lines) == 0 {
		return nil
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return nil
	}
	return b
}

func displayNameOrUnknown(s *string) string {
	name := strings.TrimSpace(stringOrEmpty(s))
	if name == "" {
		return "Unknown"
	}
	return name
}

func normalizeCustomer(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbCustomerWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.QuickbooksCustomer{
		QBEntityBase:     newBase(w.qbEntityHeader, realmID, raw, now),
		DisplayName:      displayNameOrUnknown(w.DisplayName),
		CompanyName:      stringOrEmpty(w.CompanyName),
		Email:            emailAddress(w.PrimaryEmailAddr),
		Phone:            phoneNumber(w.PrimaryPhone),
		Balance:          decimalFromNumber(w.Balance),
		CurrencyRef:      w.CurrencyRef.value(),
		ParentCustomerId: w.ParentRef.value(),
		Active:           boolOrTrue(w.Active),
	}, nil
}

func normalizeVendor(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbVendorWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.QuickbooksVendor{
		QBEntityBase: newBase(w.qbEntityHeader, realmID, raw, now),
		DisplayName:  displayNameOrUnknown(w.DisplayName),
		CompanyName:  stringOrEmpty(w.CompanyName),
		Email:        emailAddress(w.PrimaryEmailAddr),
		Phone:        phoneNumber(w.PrimaryPhone),
		Balance:      decimalFromNumber(w.Balance),
		CurrencyRef:  w.CurrencyRef.value(),
		Active:       boolOrTrue(w.Active),
	}, nil
}

func normalizeEmployee(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbEmployeeWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.QuickbooksEmployee{
		QBEntityBase: newBase(w.qbEntityHeader, realmID, raw, now),
		DisplayName:  displayNameOrUnknown(w.DisplayName),
		GivenName:    stringOrEmpty(w.GivenName),
		FamilyName:   stringOrEmpty(w.FamilyName),
		Email:        emailAddress(w.PrimaryEmailAddr),
		Active:       boolOrTrue(w.Active),
	}, nil
}

func normalizeAccount(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbAccountWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.QuickbooksAccount{
		QBEntityBase:   newBase(w.qbEntityHeader, realmID, raw, now),
		Name:           displayNameOrUnknown(w.Name),
		AcctNum:        stringOrEmpty(w.AcctNum),
		AccountType:    stringOrEmpty(w.AccountType),
		AccountSubType: stringOrEmpty(w.AccountSubType),
		Classification: stringOrEmpty(w.Classification),
		CurrentBalance: decimalFromNumber(w.CurrentBalance),
		CurrencyRef:    w.CurrencyRef.value(),
		Active:         boolOrTrue(w.Active),
	}, nil
}

func normalizeItem(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbItemWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.QuickbooksItem{
		QBEntityBase: newBase(w.qbEntityHeader, realmID, raw, now),
		Name:         displayNameOrUnknown(w.Name),
		Sku:          stringOrEmpty(w.Sku),
		Type:         stringOrEmpty(w.Type),
		UnitPrice:    decimalFromNumber(w.UnitPrice),
		PurchaseCost: decimalFromNumber(w.PurchaseCost),
		Active:       boolOrTrue(w.Active),
	}, nil
}

func normalizeInvoice(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbInvoiceWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.QuickbooksInvoice{
		QBEntityBase: newBase(w.qbEntityHeader, realmID, raw, now),
		DocNumber:    stringOrEmpty(w.DocNumber),
		TxnDate:      parseQBDate(stringOrEmpty(w.TxnDate)),
		DueDate:      parseQBDate(stringOrEmpty(w.DueDate)),
		CustomerQbId: w.CustomerRef.value(),
		TotalAmt:     decimalFromNumber(w.TotalAmt),
		Balance:      decimalFromNumber(w.Balance),
		CurrencyRef:  w.CurrencyRef.value(),
		PrivateNote:  stringOrEmpty(w.PrivateNote),
		LinesJSON:    marshalLines(w.Line),
	}, nil
}

func normalizePayment(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbPaymentWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.QuickbooksPayment{
		QBEntityBase:  newBase(w.qbEntityHeader, realmID, raw, now),
		TxnDate:       parseQBDate(stringOrEmpty(w.TxnDate)),
		CustomerQbId:  w.CustomerRef.value(),
		TotalAmt:      decimalFromNumber(w.TotalAmt),
		UnappliedAmt:  decimalFromNumber(w.UnappliedAmt),
		PaymentRefNum: stringOrEmpty(w.PaymentRefNum),
		LinesJSON:     marshalLines(w.Line),
	}, nil
}

func normalizeBill(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbBillWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.QuickbooksBill{
		QBEntityBase: newBase(w.qbEntityHeader, realmID, raw, now),
		DocNumber:    stringOrEmpty(w.DocNumber),
		TxnDate:      parseQBDate(stringOrEmpty(w.TxnDate)),
		DueDate:      parseQBDate(stringOrEmpty(w.DueDate)),
		VendorQbId:   w.VendorRef.value(),
		TotalAmt:     decimalFromNumber(w.TotalAmt),
		Balance:      decimalFromNumber(w.Balance),
		LinesJSON:    marshalLines(w.Line),
	}, nil
}

func normalizeBillPayment(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbBillPaymentWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.QuickbooksBillPayment{
		QBEntityBase: newBase(w.qbEntityHeader, realmID, raw, now),
		TxnDate:      parseQBDate(stringOrEmpty(w.TxnDate)),
		VendorQbId:   w.VendorRef.value(),
		TotalAmt:     decimalFromNumber(w.TotalAmt),
		PayType:      stringOrEmpty(w.PayType),
	}, nil
}

func normalizeCreditMemo(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbCreditMemoWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.QuickbooksCreditMemo{
		QBEntityBase: newBase(w.qbEntityHeader, realmID, raw, now),
		DocNumber:    stringOrEmpty(w.DocNumber),
		TxnDate:      parseQBDate(stringOrEmpty(w.TxnDate)),
		CustomerQbId: w.CustomerRef.value(),
		TotalAmt:     decimalFromNumber(w.TotalAmt),
		Balance:      decimalFromNumber(w.Balance),
		LinesJSON:    marshalLines(w.Line),
	}, nil
}

func normalizeVendorCredit(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbVendorCreditWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.QuickbooksVendorCredit{
		QBEntityBase: newBase(w.qbEntityHeader, realmID, raw, now),
		DocNumber:    stringOrEmpty(w.DocNumber),
		TxnDate:      parseQBDate(stringOrEmpty(w.TxnDate)),
		VendorQbId:   w.VendorRef.value(),
		TotalAmt:     decimalFromNumber(w.TotalAmt),
	}, nil
}

func normalizeJournalEntry(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbJournalEntryWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	adjustment := false
	if w.Adjustment != nil {
		adjustment = *w.Adjustment
	}
	return &models.QuickbooksJournalEntry{
		QBEntityBase: newBase(w.qbEntityHeader, realmID, raw, now),
		DocNumber:    stringOrEmpty(w.DocNumber),
		TxnDate:      parseQBDate(stringOrEmpty(w.TxnDate)),
		Adjustment:   adjustment,
		LinesJSON:    marshalLines(w.Line),
	}, nil
}

func normalizeDeposit(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbDepositWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.QuickbooksDeposit{
		QBEntityBase:       newBase(w.qbEntityHeader, realmID, raw, now),
		TxnDate:            parseQBDate(stringOrEmpty(w.TxnDate)),
		DepositToAccountId: w.DepositToAccountRef.value(),
		TotalAmt:           decimalFromNumber(w.TotalAmt),
		LinesJSON:          marshalLines(w.Line),
	}, nil
}

func normalizePurchase(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbPurchaseWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.QuickbooksPurchase{
		QBEntityBase: newBase(w.qbEntityHeader, realmID, raw, now),
		TxnDate:      parseQBDate(stringOrEmpty(w.TxnDate)),
		PaymentType:  stringOrEmpty(w.PaymentType),
		AccountQbId:  w.AccountRef.value(),
		EntityQbId:   w.EntityRef.value(),
		TotalAmt:     decimalFromNumber(w.TotalAmt),
		LinesJSON:    marshalLines(w.Line),
	}, nil
}

func normalizePurchaseOrder(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbPurchaseOrderWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.QuickbooksPurchaseOrder{
		QBEntityBase: newBase(w.qbEntityHeader, realmID, raw, now),
		DocNumber:    stringOrEmpty(w.DocNumber),
		TxnDate:      parseQBDate(stringOrEmpty(w.TxnDate)),
		VendorQbId:   w.VendorRef.value(),
		TotalAmt:     decimalFromNumber(w.TotalAmt),
		POStatus:     stringOrEmpty(w.POStatus),
	}, nil
}

func normalizeSalesReceipt(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbSalesReceiptWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.QuickbooksSalesReceipt{
		QBEntityBase: newBase(w.qbEntityHeader, realmID, raw, now),
		DocNumber:    stringOrEmpty(w.DocNumber),
		TxnDate:      parseQBDate(stringOrEmpty(w.TxnDate)),
		CustomerQbId: w.CustomerRef.value(),
		TotalAmt:     decimalFromNumber(w.TotalAmt),
		Balance:      decimalFromNumber(w.Balance),
		LinesJSON:    marshalLines(w.Line),
	}, nil
}

func normalizeRefundReceipt(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbRefundReceiptWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.QuickbooksRefundReceipt{
		QBEntityBase: newBase(w.qbEntityHeader, realmID, raw, now),
		DocNumber:    stringOrEmpty(w.DocNumber),
		TxnDate:      parseQBDate(stringOrEmpty(w.TxnDate)),
		CustomerQbId: w.CustomerRef.value(),
		TotalAmt:     decimalFromNumber(w.TotalAmt),
	}, nil
}

func normalizeTransfer(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbTransferWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.QuickbooksTransfer{
		QBEntityBase:    newBase(w.qbEntityHeader, realmID, raw, now),
		TxnDate:         parseQBDate(stringOrEmpty(w.TxnDate)),
		FromAccountQbId: w.FromAccountRef.value(),
		ToAccountQbId:   w.ToAccountRef.value(),
		Amount:          decimalFromNumber(w.Amount),
	}, nil
}

func normalizeTaxCode(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbTaxCodeWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	taxable := true
	if w.Taxable != nil {
		taxable = *w.Taxable
	}
	taxGroup := false
	if w.TaxGroup != nil {
		taxGroup = *w.TaxGroup
	}
	return &models.QuickbooksTaxCode{
		QBEntityBase: newBase(w.qbEntityHeader, realmID, raw, now),
		Name:         displayNameOrUnknown(w.Name),
		Description:  stringOrEmpty(w.Description),
		Taxable:      taxable,
		TaxGroup:     taxGroup,
		Active:       boolOrTrue(w.Active),
	}, nil
}

func normalizeTerm(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbTermWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	dueDays := 0
	if w.DueDays != nil {
		dueDays = *w.DueDays
	}
	return &models.QuickbooksTerm{
		QBEntityBase:    newBase(w.qbEntityHeader, realmID, raw, now),
		Name:            displayNameOrUnknown(w.Name),
		DueDays:         dueDays,
		DiscountPercent: decimalFromNumber(w.DiscountPercent),
		Active:          boolOrTrue(w.Active),
	}, nil
}

func normalizeCompanyInfo(raw json.RawMessage, realmID string, now time.Time) (any, error) {
	var w qbCompanyInfoWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return &models.QuickbooksCompanyInfo{
		QBEntityBase:         newBase(w.qbEntityHeader, realmID, raw, now),
		CompanyName:          stringOrEmpty(w.CompanyName),
		LegalName:            stringOrEmpty(w.LegalName),
		Country:              stringOrEmpty(w.Country),
		Email:                emailAddress(w.Email),
		FiscalYearStartMonth: fiscalMonthNumber(stringOrEmpty(w.FiscalYearStartMonth)),
	}, nil
}

var monthNumbers = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4,
	"may": 5, "june": 6, "july": 7, "august": 8,
	"september": 9, "october": 10, "november": 11, "december": 12,
}

// fiscalMonthNumber accepts an English month name or a numeric string and
// returns 1..12, defaulting to January.
func fiscalMonthNumber(value string) int {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return 1
	}
	if n, ok := monthNumbers[value]; ok {
		return n
	}
	if n, err := strconv.Atoi(value); err == nil && n >= 1 && n <= 12 {
		return n
	}
	return 1
}
