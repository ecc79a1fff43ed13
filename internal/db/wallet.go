package db

import (
	"time"

	"gorm.io/datatypes"
)

const (
	TransactionDeposit         = "deposit"
	TransactionWithdraw        = "withdraw"
	TransactionElectionPayment = "election_payment"
	TransactionLotteryPrize    = "prize_won"
	TransactionRefund          = "refund"
	TransactionProcessingFee   = "processing_fee"
	TransactionPlatformFee     = "platform_fee"

	TransactionStatusSuccess   = "success"
	TransactionStatusPending   = "pending"
	TransactionStatusFailed    = "failed"
	TransactionStatusCancelled = "cancelled"
	TransactionStatusRefunded  = "refunded"

	BlockedStatusLocked   = "locked"
	BlockedStatusReleased = "released"
	BlockedStatusRefunded = "refunded"

	WithdrawalStatusPending  = "pending"
	WithdrawalStatusApproved = "approved"
	WithdrawalStatusRejected = "rejected"
)

// PlatformUserID is the reserved wallet owner used for platform-fee
// accounting transactions.
const PlatformUserID = "platform"

type UserWallet struct {
	ID             uint      `gorm:"primaryKey"`
	UserID         string    `gorm:"size:64;uniqueIndex;not null"`
	Balance        float64   `gorm:"not null;default:0"`
	BlockedBalance float64   `gorm:"not null;default:0"`
	Currency       string    `gorm:"size:3;not null;default:'USD'"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// WalletTransaction is an immutable ledger entry; every balance change
// writes one in the same transaction.
type WalletTransaction struct {
	ID              uint           `gorm:"primaryKey"`
	UserID          string         `gorm:"size:64;index;not null"`
	TransactionType string         `gorm:"size:32;not null;index"`
	Amount          float64        `gorm:"not null"`
	Status          string         `gorm:"size:16;not null;index"`
	ElectionID      *int           `gorm:"index"`
	PaymentIntentID string         `gorm:"size:128"`
	Description     string         `gorm:"size:255"`
	Metadata        datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt       time.Time      `gorm:"not null;index"`
	UpdatedAt       time.Time      `gorm:"not null"`
}

// BlockedAccount escrows one voter payment until its election ends or is
// cancelled. Exactly one terminal transition per row.
type BlockedAccount struct {
	ID          uint       `gorm:"primaryKey"`
	UserID      string     `gorm:"size:64;index;not null"`
	ElectionID  int        `gorm:"index;not null"`
	Amount      float64    `gorm:"not null"`
	PlatformFee float64    `gorm:"not null;default:0"`
	Status      string     `gorm:"size:16;not null;index"`
	LockedUntil time.Time  `gorm:"not null"`
	ReleasedAt  *time.Time
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type WithdrawalRequest struct {
	ID             uint           `gorm:"primaryKey"`
	UserID         string         `gorm:"size:64;index;not null"`
	Amount         float64        `gorm:"not null"`
	Status         string         `gorm:"size:16;not null;index"`
	PaymentMethod  string         `gorm:"size:32;not null"`
	PaymentDetails datatypes.JSON `gorm:"type:jsonb"`
	TransactionID  uint           `gorm:"not null;default:0"`
	ApprovedBy     string         `gorm:"size:64"`
	ApprovedAt     *time.Time
	AdminNotes     string    `gorm:"size:512"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}
