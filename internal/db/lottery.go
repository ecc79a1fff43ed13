package db

import (
	"time"

	"gorm.io/datatypes"
)

const (
	DrawStatusCompleted = "completed"

	PrizeTypeMonetary   = "monetary"
	PrizeTypeCoupon     = "coupon"
	PrizeTypeVoucher    = "voucher"
	PrizeTypeExperience = "experience"
)

// LotteryTicket is issued once per cast vote in a lotterized election.
type LotteryTicket struct {
	ID           uint      `gorm:"primaryKey"`
	UserID       string    `gorm:"size:64;index;not null"`
	ElectionID   int       `gorm:"index;not null"`
	VotingID     string    `gorm:"size:36;uniqueIndex;not null"`
	TicketNumber string    `gorm:"size:64;not null"`
	BallNumber   int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

// LotteryDraw exists at most once per election; the unique index on
// election_id is what makes a second draw fail instead of race.
type LotteryDraw struct {
	ID                uint           `gorm:"primaryKey"`
	ElectionID        int            `gorm:"uniqueIndex;not null"`
	TotalParticipants int            `gorm:"not null"`
	WinnerCount       int            `gorm:"not null"`
	RandomSeed        string         `gorm:"size:64;not null"`
	Status            string         `gorm:"size:16;not null"`
	Metadata          datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt         time.Time      `gorm:"not null"`
}

type LotteryWinner struct {
	ID               uint       `gorm:"primaryKey"`
	ElectionID       int        `gorm:"index;not null;uniqueIndex:idx_winners_election_rank"`
	UserID           string     `gorm:"size:64;index;not null"`
	TicketID         uint       `gorm:"index;not null"`
	Rank             int        `gorm:"not null;uniqueIndex:idx_winners_election_rank"`
	PrizeAmount      float64    `gorm:"not null;default:0"`
	PrizeType        string     `gorm:"size:16;not null"`
	PrizeDescription string     `gorm:"size:255"`
	Claimed          bool       `gorm:"not null;default:false"`
	ClaimedAt        *time.Time
	CreatedAt        time.Time `gorm:"not null"`
}
