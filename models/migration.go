package models

import (
	"log"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&QuickbooksToken{}, &QuickbooksSyncLog{}, &QuickbooksDeletionLog{},
		&QuickbooksCustomer{}, &QuickbooksVendor{}, &QuickbooksEmployee{},
		&QuickbooksAccount{}, &QuickbooksItem{},
		&QuickbooksInvoice{}, &QuickbooksPayment{}, &QuickbooksBill{}, &QuickbooksBillPayment{},
		&QuickbooksCreditMemo{}, &QuickbooksVendorCredit{}, &QuickbooksJournalEntry{},
		&QuickbooksDeposit{}, &QuickbooksPurchase{}, &QuickbooksPurchaseOrder{},
		&QuickbooksSalesReceipt{}, &QuickbooksRefundReceipt{}, &QuickbooksTransfer{},
		&QuickbooksTaxCode{}, &QuickbooksTerm{}, &QuickbooksCompanyInfo{},
		&InvoiceExpectation{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
