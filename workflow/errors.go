package workflow

import "errors"

var (
	ErrInvoiceCreationDisabled = errors.New("invoice creation from reconciliation is disabled")
	ErrNotApproved             = errors.New("expectation is not approved for invoice creation")
	ErrNotMissing              = errors.New("expectation is not classified as missing a quickbooks invoice")
)
