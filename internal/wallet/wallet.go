// Package wallet holds user balances, the escrow of vote payments and
// the withdrawal pipeline. Every balance mutation writes a transaction
// row in the same database transaction.
package wallet

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"vottery/internal/db"
)

var (
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrBelowMinimum        = errors.New("amount below minimum withdrawal")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrRequestNotFound     = errors.New("withdrawal request not found")
	ErrRequestNotPending   = errors.New("withdrawal request is not pending")
)

type Service struct {
	db                   *gorm.DB
	currency             string
	minimumWithdrawal    float64
	autoApproveThreshold float64
}

func NewService(conn *gorm.DB, currency string, minimumWithdrawal, autoApproveThreshold float64) *Service {
	return &Service{
		db:                   conn,
		currency:             currency,
		minimumWithdrawal:    minimumWithdrawal,
		autoApproveThreshold: autoApproveThreshold,
	}
}

// GetOrCreateWallet returns the user's wallet, creating an empty one on
// first contact.
func (s *Service) GetOrCreateWallet(userID string) (*db.UserWallet, error) {
	return getOrCreateWallet(s.db, userID, s.currency)
}

func getOrCreateWallet(tx *gorm.DB, userID, currency string) (*db.UserWallet, error) {
	now := time.Now().UTC()
	wallet := db.UserWallet{UserID: userID, Currency: currency, CreatedAt: now, UpdatedAt: now}
	if err := tx.Where(db.UserWallet{UserID: userID}).FirstOrCreate(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// ProcessDeposit credits a confirmed payment to the user's balance.
func (s *Service) ProcessDeposit(userID string, amount float64, paymentIntentID string) (*db.WalletTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	var record db.WalletTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := getOrCreateWallet(tx, userID, s.currency); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.Model(&db.UserWallet{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{
				"balance":    gorm.Expr("balance + ?", amount),
				"updated_at": now,
			}).Error; err != nil {
			return err
		}
		record = db.WalletTransaction{
			UserID:          userID,
			TransactionType: db.TransactionDeposit,
			Amount:          amount,
			Status:          db.TransactionStatusSuccess,
			PaymentIntentID: paymentIntentID,
			Description:     "Wallet deposit",
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// TransactionFilter narrows a transaction history query. Zero values
// mean "no filter".
type TransactionFilter struct {
	Type       string
	Status     string
	ElectionID int
	From       time.Time
	To         time.Time
}

// Transactions pages through a user's ledger entries, newest first.
func (s *Service) Transactions(userID string, filter TransactionFilter, page, perPage int) ([]db.WalletTransaction, int64, error) {
	query := s.db.Model(&db.WalletTransaction{}).Where("user_id = ?", userID)
	if filter.Type != "" {
		query = query.Where("transaction_type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ElectionID != 0 {
		query = query.Where("election_id = ?", filter.ElectionID)
	}
	if !filter.From.IsZero() {
		query = query.Where("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("created_at <= ?", filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var transactions []db.WalletTransaction
	err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&transactions).Error
	if err != nil {
		return nil, 0, err
	}
	return transactions, total, nil
}
