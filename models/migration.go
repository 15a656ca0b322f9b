package models

import (
	"log"

	"bitbucket.org/mmdatafocus/rfid_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Item{}, &User{},
		&PurchaseOrder{}, &PurchaseOrderDetail{},
		&TagRegistration{},
		&ReceiptLedger{}, &IdempotencyRecord{},
		&PresenceState{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
