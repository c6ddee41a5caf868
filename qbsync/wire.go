package qbsync

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Wire shapes for QuickBooks payloads. Every nested field is optional —
// QuickBooks omits whole sub-objects freely, so nothing here may be assumed
// present. Money comes as json.Number and defaults to zero.

type qbRef struct {
	Value string `json:"value"`
	Name  string `json:"name"`
}

func (r *qbRef) value() string {
	if r == nil {
		return ""
	}
	return r.Value
}

type qbMetaData struct {
	CreateTime      string `json:"CreateTime"`
	LastUpdatedTime string `json:"LastUpdatedTime"`
}

type qbEmail struct {
	Address string `json:"Address"`
}

type qbPhone struct {
	FreeFormNumber string `json:"FreeFormNumber"`
}

// qbEntityHeader is the projection shared by every entity payload; it is also
// how per-record deletion markers ("status": "Deleted") are detected.
type qbEntityHeader struct {
	Id        string      `json:"Id"`
	SyncToken string      `json:"SyncToken"`
	Status    string      `json:"status"`
	MetaData  *qbMetaData `json:"MetaData"`
}

type qbCustomerWire struct {
	qbEntityHeader
	DisplayName      *string     `json:"DisplayName"`
	CompanyName      *string     `json:"CompanyName"`
	PrimaryEmailAddr *qbEmail    `json:"PrimaryEmailAddr"`
	PrimaryPhone     *qbPhone    `json:"PrimaryPhone"`
	Balance          json.Number `json:"Balance"`
	CurrencyRef      *qbRef      `json:"CurrencyRef"`
	ParentRef        *qbRef      `json:"ParentRef"`
	Active           *bool       `json:"Active"`
}

type qbVendorWire struct {
	qbEntityHeader
	DisplayName      *string     `json:"DisplayName"`
	CompanyName      *string     `json:"CompanyName"`
	PrimaryEmailAddr *qbEmail    `json:"PrimaryEmailAddr"`
	PrimaryPhone     *qbPhone    `json:"PrimaryPhone"`
	Balance          json.Number `json:"Balance"`
	CurrencyRef      *qbRef      `json:"CurrencyRef"`
	Active           *bool       `json:"Active"`
}

type qbEmployeeWire struct {
	qbEntityHeader
	DisplayName      *string  `json:"DisplayName"`
	GivenName        *string  `json:"GivenName"`
	FamilyName       *string  `json:"FamilyName"`
	PrimaryEmailAddr *qbEmail `json:"PrimaryEmailAddr"`
	Active           *bool    `json:"Active"`
}

type qbAccountWire struct {
	qbEntityHeader
	Name           *string     `json:"Name"`
	AcctNum        *string     `json:"AcctNum"`
	AccountType    *string     `json:"AccountType"`
	AccountSubType *string     `json:"AccountSubType"`
	Classification *string     `json:"Classification"`
	CurrentBalance json.Number `json:"CurrentBalance"`
	CurrencyRef    *qbRef      `json:"CurrencyRef"`
	Active         *bool       `json:"Active"`
}

type qbItemWire struct {
	qbEntityHeader
	Name         *string     `json:"Name"`
	Sku          *string     `json:"Sku"`
	Type         *string     `json:"Type"`
	UnitPrice    json.Number `json:"UnitPrice"`
	PurchaseCost json.Number `json:"PurchaseCost"`
	Active       *bool       `json:"Active"`
}

type qbInvoiceWire struct {
	qbEntityHeader
	DocNumber   *string           `json:"DocNumber"`
	TxnDate     *string           `json:"TxnDate"`
	DueDate     *string           `json:"DueDate"`
	CustomerRef *qbRef            `json:"CustomerRef"`
	TotalAmt    json.Number       `json:"TotalAmt"`
	Balance     json.Number       `json:"Balance"`
	CurrencyRef *qbRef            `json:"CurrencyRef"`
	PrivateNote *string           `json:"PrivateNote"`
	Line        []json.RawMessage `json:"Line"`
}

type qbPaymentWire struct {
	qbEntityHeader
	TxnDate       *string           `json:"TxnDate"`
	CustomerRef   *qbRef            `json:"CustomerRef"`
	TotalAmt      json.Number       `json:"TotalAmt"`
	UnappliedAmt  json.Number       `json:"UnappliedAmt"`
	PaymentRefNum *string           `json:"PaymentRefNum"`
	Line          []json.RawMessage `json:"Line"`
}

type qbBillWire struct {
	qbEntityHeader
	DocNumber *string           `json:"DocNumber"`
	TxnDate   *string           `json:"TxnDate"`
	DueDate   *string           `json:"DueDate"`
	VendorRef *qbRef            `json:"VendorRef"`
	TotalAmt  json.Number       `json:"TotalAmt"`
	Balance   json.Number       `json:"Balance"`
	Line      []json.RawMessage `json:"Line"`
}

type qbBillPaymentWire struct {
	qbEntityHeader
	TxnDate   *string     `json:"TxnDate"`
	VendorRef *qbRef      `json:"VendorRef"`
	TotalAmt  json.Number `json:"TotalAmt"`
	PayType   *string     `json:"PayType"`
}

type qbCreditMemoWire struct {
	qbEntityHeader
	DocNumber   *string           `json:"DocNumber"`
	TxnDate     *string           `json:"TxnDate"`
	CustomerRef *qbRef            `json:"CustomerRef"`
	TotalAmt    json.Number       `json:"TotalAmt"`
	Balance     json.Number       `json:"Balance"`
	Line        []json.RawMessage `json:"Line"`
}

type qbVendorCreditWire struct {
	qbEntityHeader
	DocNumber *string     `json:"DocNumber"`
	TxnDate   *string     `json:"TxnDate"`
	VendorRef *qbRef      `json:"VendorRef"`
	TotalAmt  json.Number `json:"TotalAmt"`
}

type qbJournalEntryWire struct {
	qbEntityHeader
	DocNumber  *string           `json:"DocNumber"`
	TxnDate    *string           `json:"TxnDate"`
	Adjustment *bool             `json:"Adjustment"`
	Line       []json.RawMessage `json:"Line"`
}

type qbDepositWire struct {
	qbEntityHeader
	TxnDate             *string           `json:"TxnDate"`
	DepositToAccountRef *qbRef            `json:"DepositToAccountRef"`
	TotalAmt            json.Number       `json:"TotalAmt"`
	Line                []json.RawMessage `json:"Line"`
}

type qbPurchaseWire struct {
	qbEntityHeader
	TxnDate     *string           `json:"TxnDate"`
	PaymentType *string           `json:"PaymentType"`
	AccountRef  *qbRef            `json:"AccountRef"`
	EntityRef   *qbRef            `json:"EntityRef"`
	TotalAmt    json.Number       `json:"TotalAmt"`
	Line        []json.RawMessage `json:"Line"`
}

type qbPurchaseOrderWire struct {
	qbEntityHeader
	DocNumber *string     `json:"DocNumber"`
	TxnDate   *string     `json:"TxnDate"`
	VendorRef *qbRef      `json:"VendorRef"`
	TotalAmt  json.Number `json:"TotalAmt"`
	POStatus  *string     `json:"POStatus"`
}

type qbSalesReceiptWire struct {
	qbEntityHeader
	DocNumber   *string           `json:"DocNumber"`
	TxnDate     *string           `json:"TxnDate"`
	CustomerRef *qbRef            `json:"CustomerRef"`
	TotalAmt    json.Number       `json:"TotalAmt"`
	Balance     json.Number       `json:"Balance"`
	Line        []json.RawMessage `json:"Line"`
}

type qbRefundReceiptWire struct {
	qbEntityHeader
	DocNumber   *string     `json:"DocNumber"`
	TxnDate     *string     `json:"TxnDate"`
	CustomerRef *qbRef      `json:"CustomerRef"`
	TotalAmt    json.Number `json:"TotalAmt"`
}

type qbTransferWire struct {
	qbEntityHeader
	TxnDate        *string     `json:"TxnDate"`
	FromAccountRef *qbRef      `json:"FromAccountRef"`
	ToAccountRef   *qbRef      `json:"ToAccountRef"`
	Amount         json.Number `json:"Amount"`
}

type qbTaxCodeWire struct {
	qbEntityHeader
	Name        *string `json:"Name"`
	Description *string `json:"Description"`
	Taxable     *bool   `json:"Taxable"`
	TaxGroup    *bool   `json:"TaxGroup"`
	Active      *bool   `json:"Active"`
}

type qbTermWire struct {
	qbEntityHeader
	Name            *string     `json:"Name"`
	DueDays         *int        `json:"DueDays"`
	DiscountPercent json.Number `json:"DiscountPercent"`
	Active          *bool       `json:"Active"`
}

type qbCompanyInfoWire struct {
	qbEntityHeader
	CompanyName          *string  `json:"CompanyName"`
	LegalName            *string  `json:"LegalName"`
	Country              *string  `json:"Country"`
	Email                *qbEmail `json:"Email"`
	FiscalYearStartMonth *string  `json:"FiscalYearStartMonth"`
}

func decimalFromNumber(num json.Number) decimal.Decimal {
	if num.String() == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(num.String()); err == nil {
		return d
	}
	return decimal.Zero
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func boolOrTrue(b *bool) bool {
	if b == nil {
		return true
	}
	return *b
}

func emailAddress(e *qbEmail) string {
	if e == nil {
		return ""
	}
	return e.Address
}

func phoneNumber(p *qbPhone) string {
	if p == nil {
		return ""
	}
	return p.FreeFormNumber
}
