package models

import (
	"log"

	"github.com/conrover/DocFlow/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&DocumentRecord{}, &AuditEntry{},
		&DocumentEventRecord{},
		&Destination{}, &ExportJob{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
