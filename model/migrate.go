package model

import "gorm.io/gorm"

// allModels lists every gorm row to be auto-migrated. Domain entities live
// inside Document; only store plumbing and the audit trail are tables.
var allModels = []interface{}{
	&Document{},
	&AuditLog{},
}

// AutoMigrate creates or updates all tables in the given database.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(allModels...)
}
