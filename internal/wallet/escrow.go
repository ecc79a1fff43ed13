package wallet

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"vottery/internal/db"
)

// CreateBlockedAccount escrows a voter's confirmed payment for a paid
// election. The money sits in the wallet's blocked balance until the
// election ends (release to creator) or is cancelled (refund).
func (s *Service) CreateBlockedAccount(userID string, electionID int, amount, platformFee float64, lockedUntil time.Time) (*db.BlockedAccount, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	var account db.BlockedAccount
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := getOrCreateWallet(tx, userID, s.currency); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.Model(&db.UserWallet{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{
				"blocked_balance": gorm.Expr("blocked_balance + ?", amount),
				"updated_at":      now,
			}).Error; err != nil {
			return err
		}
		account = db.BlockedAccount{
			UserID:      userID,
			ElectionID:  electionID,
			Amount:      amount,
			PlatformFee: platformFee,
			Status:      db.BlockedStatusLocked,
			LockedUntil: lockedUntil,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(&account).Error; err != nil {
			return err
		}
		eid := electionID
		return tx.Create(&db.WalletTransaction{
			UserID:          userID,
			TransactionType: db.TransactionElectionPayment,
			Amount:          amount,
			Status:          db.TransactionStatusSuccess,
			ElectionID:      &eid,
			Description:     fmt.Sprintf("Vote payment held in escrow for election %d", electionID),
			CreatedAt:       now,
			UpdatedAt:       now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// ReleaseSummary reports one escrow release run.
type ReleaseSummary struct {
	TotalAmount      float64 `json:"totalAmount"`
	CreatorAmount    float64 `json:"creatorAmount"`
	PlatformFee      float64 `json:"platformFee"`
	ParticipantCount int     `json:"participantCount"`
}

// ReleaseBlockedAccounts settles an ended election: every locked escrow
// row flips to released, its voter's blocked balance drops, the creator
// is credited with the pool minus platform fees, and the fee total is
// booked against the platform wallet. Re-running after a full release is
// a no-op because only locked rows are selected.
func (s *Service) ReleaseBlockedAccounts(electionID int, creatorUserID string) (*ReleaseSummary, error) {
	summary := &ReleaseSummary{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var accounts []db.BlockedAccount
		if err := tx.Where("election_id = ? AND status = ?", electionID, db.BlockedStatusLocked).
			Find(&accounts).Error; err != nil {
			return err
		}
		if len(accounts) == 0 {
			return nil
		}

		now := time.Now().UTC()
		for _, account := range accounts {
			if err := tx.Model(&db.BlockedAccount{}).
				Where("id = ? AND status = ?", account.ID, db.BlockedStatusLocked).
				Updates(map[string]any{
					"status":      db.BlockedStatusReleased,
					"released_at": now,
					"updated_at":  now,
				}).Error; err != nil {
				return err
			}
			if err := tx.Model(&db.UserWallet{}).
				Where("user_id = ?", account.UserID).
				Updates(map[string]any{
					"blocked_balance": gorm.Expr("blocked_balance - ?", account.Amount),
					"updated_at":      now,
				}).Error; err != nil {
				return err
			}
			summary.TotalAmount += account.Amount
			summary.PlatformFee += account.PlatformFee
			summary.ParticipantCount++
		}
		summary.CreatorAmount = summary.TotalAmount - summary.PlatformFee

		if _, err := getOrCreateWallet(tx, creatorUserID, s.currency); err != nil {
			return err
		}
		if err := tx.Model(&db.UserWallet{}).
			Where("user_id = ?", creatorUserID).
			Updates(map[string]any{
				"balance":    gorm.Expr("balance + ?", summary.CreatorAmount),
				"updated_at": now,
			}).Error; err != nil {
			return err
		}
		eid := electionID
		if err := tx.Create(&db.WalletTransaction{
			UserID:          creatorUserID,
			TransactionType: db.TransactionElectionPayment,
			Amount:          summary.CreatorAmount,
			Status:          db.TransactionStatusSuccess,
			ElectionID:      &eid,
			Description:     fmt.Sprintf("Escrow release for election %d (%d participants)", electionID, summary.ParticipantCount),
			CreatedAt:       now,
			UpdatedAt:       now,
		}).Error; err != nil {
			return err
		}
		if summary.PlatformFee > 0 {
			if err := tx.Create(&db.WalletTransaction{
				UserID:          db.PlatformUserID,
				TransactionType: db.TransactionPlatformFee,
				Amount:          summary.PlatformFee,
				Status:          db.TransactionStatusSuccess,
				ElectionID:      &eid,
				Description:     fmt.Sprintf("Platform fee for election %d", electionID),
				CreatedAt:       now,
				UpdatedAt:       now,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// RefundSummary reports one escrow refund run.
type RefundSummary struct {
	RefundedCount  int     `json:"refundedCount"`
	RefundedAmount float64 `json:"refundedAmount"`
}

// RefundBlockedAccounts returns escrowed payments to their voters when
// an election is cancelled. Each locked row flips to refunded and its
// full amount moves from blocked balance to spendable balance.
func (s *Service) RefundBlockedAccounts(electionID int) (*RefundSummary, error) {
	summary := &RefundSummary{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var accounts []db.BlockedAccount
		if err := tx.Where("election_id = ? AND status = ?", electionID, db.BlockedStatusLocked).
			Find(&accounts).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		eid := electionID
		for _, account := range accounts {
			if err := tx.Model(&db.BlockedAccount{}).
				Where("id = ? AND status = ?", account.ID, db.BlockedStatusLocked).
				Updates(map[string]any{
					"status":      db.BlockedStatusRefunded,
					"released_at": now,
					"updated_at":  now,
				}).Error; err != nil {
				return err
			}
			if err := tx.Model(&db.UserWallet{}).
				Where("user_id = ?", account.UserID).
				Updates(map[string]any{
					"blocked_balance": gorm.Expr("blocked_balance - ?", account.Amount),
					"balance":         gorm.Expr("balance + ?", account.Amount),
					"updated_at":      now,
				}).Error; err != nil {
				return err
			}
			if err := tx.Create(&db.WalletTransaction{
				UserID:          account.UserID,
				TransactionType: db.TransactionRefund,
				Amount:          account.Amount,
				Status:          db.TransactionStatusSuccess,
				ElectionID:      &eid,
				Description:     fmt.Sprintf("Refund for cancelled election %d", electionID),
				CreatedAt:       now,
				UpdatedAt:       now,
			}).Error; err != nil {
				return err
			}
			summary.RefundedCount++
			summary.RefundedAmount += account.Amount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}
