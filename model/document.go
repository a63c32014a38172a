package model

import (
	"time"

	"gorm.io/datatypes"
)

// Document is the persisted shape of every remote-store document.
// A document is identified by (collection, doc_id); its payload is a flat
// field map. Collection and field names are an implementation detail of
// the store integration, not a compatibility contract.
type Document struct {
	ID         int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	Collection string            `gorm:"uniqueIndex:idx_doc,priority:1;size:64;not null" json:"collection"`
	DocID      string            `gorm:"uniqueIndex:idx_doc,priority:2;size:64;not null" json:"doc_id"`
	Fields     datatypes.JSONMap `json:"fields"`
	UpdatedAt  time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// Collection names used by the engines.
const (
	CollAccounts    = "accounts"
	CollHandles     = "handles"
	CollDiscussions = "discussions"
	CollSessions    = "sessions"
	CollShops       = "shops"
)
