package db

import (
	"time"

	"gorm.io/datatypes"
)

// Vote statuses. A user has at most one valid vote per election; editing
// supersedes the old row instead of mutating it.
const (
	VoteStatusValid   = "valid"
	VoteStatusEdited  = "edited"
	VoteStatusFlagged = "flagged"
)

type Vote struct {
	ID             uint           `gorm:"primaryKey"`
	VotingID       string         `gorm:"size:36;uniqueIndex;not null"`
	UserID         string         `gorm:"size:64;index;not null;uniqueIndex:idx_votes_user_election_valid,where:status = 'valid'"`
	ElectionID     int            `gorm:"index;not null;uniqueIndex:idx_votes_user_election_valid,where:status = 'valid'"`
	Answers        datatypes.JSON `gorm:"type:jsonb;not null"`
	EncryptedVote  string         `gorm:"type:text;not null"`
	VoteHash       string         `gorm:"size:64;index;not null"`
	IPAddress      string         `gorm:"size:64"`
	UserAgent      string         `gorm:"size:512"`
	Status         string         `gorm:"size:16;not null;default:'valid';index"`
	IsEdited       bool           `gorm:"not null;default:false"`
	OriginalVoteID *uint          `gorm:"index"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_votes_election_created"`
	UpdatedAt      time.Time      `gorm:"not null"`
}

type VoteReceipt struct {
	ID               uint      `gorm:"primaryKey"`
	ReceiptID        string    `gorm:"size:36;uniqueIndex;not null"`
	VotingID         string    `gorm:"size:36;uniqueIndex;not null"`
	VoteHash         string    `gorm:"size:64;not null"`
	ElectionID       int       `gorm:"index;not null"`
	UserID           string    `gorm:"size:64;index;not null"`
	VerificationCode string    `gorm:"size:16;not null"`
	CreatedAt        time.Time `gorm:"not null"`
}
