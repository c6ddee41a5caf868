package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QBEntityBase carries the columns every synced QuickBooks entity table
// shares. Identity is (realm_id, qb_id); sync_token is QuickBooks'
// optimistic-concurrency counter. CreatedAt/UpdatedAt mirror the remote
// MetaData times, so GORM's automatic timestamping is disabled — the
// normalizers set them explicitly.
type QBEntityBase struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	RealmId   string    `gorm:"uniqueIndex:idx_realm_qb,priority:1;size:64;not null" json:"realm_id"`
	QbId      string    `gorm:"uniqueIndex:idx_realm_qb,priority:2;size:64;not null" json:"qb_id"`
	SyncToken string    `gorm:"size:16" json:"sync_token"`
	IsDeleted bool      `gorm:"default:false;index" json:"is_deleted"`
	RawJSON   []byte    `gorm:"type:json" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

type QuickbooksCustomer struct {
	QBEntityBase
	DisplayName      string          `gorm:"size:255;not null" json:"display_name"`
	CompanyName      string          `gorm:"size:255" json:"company_name"`
	Email            string          `gorm:"size:255" json:"email"`
	Phone            string          `gorm:"size:50" json:"phone"`
	Balance          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	CurrencyRef      string          `gorm:"size:8" json:"currency_ref"`
	ParentCustomerId string          `gorm:"size:64" json:"parent_customer_id"`
	Active           bool            `gorm:"default:true" json:"active"`
}

type QuickbooksVendor struct {
	QBEntityBase
	DisplayName string          `gorm:"size:255;not null" json:"display_name"`
	CompanyName string          `gorm:"size:255" json:"company_name"`
	Email       string          `gorm:"size:255" json:"email"`
	Phone       string          `gorm:"size:50" json:"phone"`
	Balance     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	CurrencyRef string          `gorm:"size:8" json:"currency_ref"`
	Active      bool            `gorm:"default:true" json:"active"`
}

type QuickbooksEmployee struct {
	QBEntityBase
	DisplayName string `gorm:"size:255;not null" json:"display_name"`
	GivenName   string `gorm:"size:100" json:"given_name"`
	FamilyName  string `gorm:"size:100" json:"family_name"`
	Email       string `gorm:"size:255" json:"email"`
	Active      bool   `gorm:"default:true" json:"active"`
}

type QuickbooksAccount struct {
	QBEntityBase
	Name           string          `gorm:"size:255;not null" json:"name"`
	AcctNum        string          `gorm:"size:50" json:"acct_num"`
	AccountType    string          `gorm:"size:50" json:"account_type"`
	AccountSubType string          `gorm:"size:50" json:"account_sub_type"`
	Classification string          `gorm:"size:50" json:"classification"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_balance"`
	CurrencyRef    string          `gorm:"size:8" json:"currency_ref"`
	Active         bool            `gorm:"default:true" json:"active"`
}

type QuickbooksItem struct {
	QBEntityBase
	Name         string          `gorm:"size:255;not null" json:"name"`
	Sku          string          `gorm:"size:100" json:"sku"`
	Type         string          `gorm:"size:50" json:"type"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	PurchaseCost decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"purchase_cost"`
	Active       bool            `gorm:"default:true" json:"active"`
}

type QuickbooksInvoice struct {
	QBEntityBase
	DocNumber    string          `gorm:"size:50;index" json:"doc_number"`
	TxnDate      *time.Time      `gorm:"index" json:"txn_date"`
	DueDate      *time.Time      `json:"due_date"`
	CustomerQbId string          `gorm:"size:64;index" json:"customer_qb_id"`
	TotalAmt     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amt"`
	Balance      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	CurrencyRef  string          `gorm:"size:8" json:"currency_ref"`
	PrivateNote  string          `gorm:"type:text" json:"private_note"`
	LinesJSON    []byte          `gorm:"type:json" json:"lines"`
}

type QuickbooksPayment struct {
	QBEntityBase
	TxnDate       *time.Time      `json:"txn_date"`
	CustomerQbId  string          `gorm:"size:64;index" json:"customer_qb_id"`
	TotalAmt      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amt"`
	UnappliedAmt  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unapplied_amt"`
	PaymentRefNum string          `gorm:"size:50" json:"payment_ref_num"`
	LinesJSON     []byte          `gorm:"type:json" json:"lines"`
}

type QuickbooksBill struct {
	QBEntityBase
	DocNumber  string          `gorm:"size:50" json:"doc_number"`
	TxnDate    *time.Time      `json:"txn_date"`
	DueDate    *time.Time      `json:"due_date"`
	VendorQbId string          `gorm:"size:64;index" json:"vendor_qb_id"`
	TotalAmt   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amt"`
	Balance    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	LinesJSON  []byte          `gorm:"type:json" json:"lines"`
}

type QuickbooksBillPayment struct {
	QBEntityBase
	TxnDate    *time.Time      `json:"txn_date"`
	VendorQbId string          `gorm:"size:64;index" json:"vendor_qb_id"`
	TotalAmt   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amt"`
	PayType    string          `gorm:"size:20" json:"pay_type"`
}

type QuickbooksCreditMemo struct {
	QBEntityBase
	DocNumber    string          `gorm:"size:50" json:"doc_number"`
	TxnDate      *time.Time      `json:"txn_date"`
	CustomerQbId string          `gorm:"size:64;index" json:"customer_qb_id"`
	TotalAmt     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amt"`
	Balance      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	LinesJSON    []byte          `gorm:"type:json" json:"lines"`
}

type QuickbooksVendorCredit struct {
	QBEntityBase
	DocNumber  string          `gorm:"size:50" json:"doc_number"`
	TxnDate    *time.Time      `json:"txn_date"`
	VendorQbId string          `gorm:"size:64;index" json:"vendor_qb_id"`
	TotalAmt   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amt"`
}

type QuickbooksJournalEntry struct {
	QBEntityBase
	DocNumber  string     `gorm:"size:50" json:"doc_number"`
	TxnDate    *time.Time `json:"txn_date"`
	Adjustment bool       `gorm:"default:false" json:"adjustment"`
	LinesJSON  []byte     `gorm:"type:json" json:"lines"`
}

type QuickbooksDeposit struct {
	QBEntityBase
	TxnDate            *time.Time      `json:"txn_date"`
	DepositToAccountId string          `gorm:"size:64" json:"deposit_to_account_id"`
	TotalAmt           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amt"`
	LinesJSON          []byte          `gorm:"type:json" json:"lines"`
}

type QuickbooksPurchase struct {
	QBEntityBase
	TxnDate     *time.Time      `json:"txn_date"`
	PaymentType string          `gorm:"size:20" json:"payment_type"`
	AccountQbId string          `gorm:"size:64" json:"account_qb_id"`
	EntityQbId  string          `gorm:"size:64" json:"entity_qb_id"`
	TotalAmt    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amt"`
	LinesJSON   []byte          `gorm:"type:json" json:"lines"`
}

type QuickbooksPurchaseOrder struct {
	QBEntityBase
	DocNumber  string          `gorm:"size:50" json:"doc_number"`
	TxnDate    *time.Time      `json:"txn_date"`
	VendorQbId string          `gorm:"size:64;index" json:"vendor_qb_id"`
	TotalAmt   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amt"`
	POStatus   string          `gorm:"size:20" json:"po_status"`
}

type QuickbooksSalesReceipt struct {
	QBEntityBase
	DocNumber    string          `gorm:"size:50" json:"doc_number"`
	TxnDate      *time.Time      `json:"txn_date"`
	CustomerQbId string          `gorm:"size:64;index" json:"customer_qb_id"`
	TotalAmt     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amt"`
	Balance      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	LinesJSON    []byte          `gorm:"type:json" json:"lines"`
}

type QuickbooksRefundReceipt struct {
	QBEntityBase
	DocNumber    string          `gorm:"size:50" json:"doc_number"`
	TxnDate      *time.Time      `json:"txn_date"`
	CustomerQbId string          `gorm:"size:64;index" json:"customer_qb_id"`
	TotalAmt     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amt"`
}

type QuickbooksTransfer struct {
	QBEntityBase
	TxnDate         *time.Time      `json:"txn_date"`
	FromAccountQbId string          `gorm:"size:64" json:"from_account_qb_id"`
	ToAccountQbId   string          `gorm:"size:64" json:"to_account_qb_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

type QuickbooksTaxCode struct {
	QBEntityBase
	Name        string `gorm:"size:100" json:"name"`
	Description string `gorm:"size:255" json:"description"`
	Taxable     bool   `gorm:"default:true" json:"taxable"`
	TaxGroup    bool   `gorm:"default:false" json:"tax_group"`
	Active      bool   `gorm:"default:true" json:"active"`
}

type QuickbooksTerm struct {
	QBEntityBase
	Name            string          `gorm:"size:100" json:"name"`
	DueDays         int             `gorm:"default:0" json:"due_days"`
	DiscountPercent decimal.Decimal `gorm:"type:decimal(10,4);default:0" json:"discount_percent"`
	Active          bool            `gorm:"default:true" json:"active"`
}

type QuickbooksCompanyInfo struct {
	QBEntityBase
	CompanyName          string `gorm:"size:255" json:"company_name"`
	LegalName            string `gorm:"size:255" json:"legal_name"`
	Country              string `gorm:"size:50" json:"country"`
	Email                string `gorm:"size:255" json:"email"`
	FiscalYearStartMonth int    `gorm:"default:1" json:"fiscal_year_start_month"`
}
