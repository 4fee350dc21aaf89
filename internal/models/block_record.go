package models

import (
	"time"
)

// BlockRecord is the persisted history of block decisions so the reporting
// surface can show past enforcement after the in-memory entry is gone.
type BlockRecord struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	UUID      string     `json:"uuid" gorm:"uniqueIndex"`
	Identity  string     `json:"identity" gorm:"index"`
	Reason    string     `json:"reason" gorm:"type:text"`
	BlockedAt time.Time  `json:"blocked_at"`
	LiftedAt  *time.Time `json:"lifted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
