package models

import (
	"time"
)

// ArchivedEvent is the persisted form of an audit event, written off the
// request path so period reports can aggregate beyond the in-memory buffer.
type ArchivedEvent struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UUID       string    `json:"uuid" gorm:"uniqueIndex"`
	Type       string    `json:"type" gorm:"index"`
	Severity   string    `json:"severity"`
	Identity   string    `json:"identity" gorm:"index"`
	Details    string    `json:"details" gorm:"type:text"`
	OccurredAt time.Time `json:"occurred_at" gorm:"index"`
	CreatedAt  time.Time `json:"created_at"`
}
