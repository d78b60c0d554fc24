package models

import (
	"log"

	"github.com/inayat82/pos-backoffice/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Admin{},
		&Product{}, &Customer{},
		&Sale{}, &SaleItem{},
		&Counter{},
		&SaleSubmission{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
