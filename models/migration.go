package models

import (
	"log"

	"bitbucket.org/renovalabs/renovations_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Property{}, &ProjectGroup{}, &BudgetRequest{},
		&SyncRun{}, &SyncError{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
