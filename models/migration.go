package models

import (
	"bitbucket.org/mmdatafocus/poultry_backend/config"
	"bitbucket.org/mmdatafocus/poultry_backend/utils"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&LiveBatch{},
		&DressedBatch{},
		&DressedBatchPart{},
		&BatchRelationship{},
		&Order{},
		&History{},
	)
	utils.ErrorPanic(err)
}
