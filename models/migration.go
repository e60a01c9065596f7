package models

import (
	"log"

	"github.com/givegrip/givegrip_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Campaign{},
		&Donation{}, &PaymentOrder{}, &DonationReceipt{},
		&WebhookEvent{}, &DonationEventRecord{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
