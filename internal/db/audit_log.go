package db

import (
	"time"

	"gorm.io/datatypes"
)

// VoteAuditLog rows are append-only; nothing updates or deletes them.
type VoteAuditLog struct {
	ID         uint           `gorm:"primaryKey"`
	ActionType string         `gorm:"size:32;not null;index"`
	UserID     string         `gorm:"size:64;index;not null"`
	ElectionID *int           `gorm:"index"`
	VoteID     *uint          `gorm:"index"`
	VotingID   *string        `gorm:"size:36;index"`
	IPAddress  string         `gorm:"size:64"`
	UserAgent  string         `gorm:"size:512"`
	Details    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null;index"`
}
