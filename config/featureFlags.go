package config

import (
	"os"
	"strings"
)

// SyncVerifyCounts enables the post-sync count verification pass by default
// for runs that don't specify it explicitly.
//
// Set via env:
// - QBO_SYNC_VERIFY_COUNTS=true
func SyncVerifyCounts() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("QBO_SYNC_VERIFY_COUNTS")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// SyncInlineWorker runs sync jobs inline in a goroutine instead of dispatching
// through Pub/Sub. Intended for local development and single-instance deploys.
//
// Set via env:
// - QBO_SYNC_INLINE_WORKER=true
func SyncInlineWorker() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("QBO_SYNC_INLINE_WORKER")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// ReconcileCreateInvoices allows the approval action to create missing
// invoices on QuickBooks. When off, approvals are recorded but nothing is
// pushed remotely.
//
// Set via env:
// - QBO_RECONCILE_CREATE_INVOICES=true
func ReconcileCreateInvoices() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("QBO_RECONCILE_CREATE_INVOICES")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
