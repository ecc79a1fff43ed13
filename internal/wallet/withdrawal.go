package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"vottery/internal/db"
)

// RequestWithdrawal deducts the amount from the user's balance up front
// and files a withdrawal request. Requests at or under the auto-approve
// threshold are approved immediately; larger ones wait for an admin.
// A rejected request puts the money back.
func (s *Service) RequestWithdrawal(userID string, amount float64, paymentMethod string, paymentDetails map[string]any) (*db.WithdrawalRequest, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount < s.minimumWithdrawal {
		return nil, ErrBelowMinimum
	}

	var request db.WithdrawalRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		wallet, err := getOrCreateWallet(tx, userID, s.currency)
		if err != nil {
			return err
		}
		if wallet.Balance < amount {
			return ErrInsufficientBalance
		}

		now := time.Now().UTC()
		if err := tx.Model(&db.UserWallet{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{
				"balance":    gorm.Expr("balance - ?", amount),
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		var details datatypes.JSON
		if paymentDetails != nil {
			raw, err := json.Marshal(paymentDetails)
			if err != nil {
				return err
			}
			details = datatypes.JSON(raw)
		}

		status := db.WithdrawalStatusPending
		txStatus := db.TransactionStatusPending
		var approvedAt *time.Time
		approvedBy := ""
		if amount <= s.autoApproveThreshold {
			status = db.WithdrawalStatusApproved
			txStatus = db.TransactionStatusSuccess
			approvedAt = &now
			approvedBy = "auto"
		}

		walletTx := db.WalletTransaction{
			UserID:          userID,
			TransactionType: db.TransactionWithdraw,
			Amount:          amount,
			Status:          txStatus,
			Description:     fmt.Sprintf("Withdrawal via %s", paymentMethod),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Create(&walletTx).Error; err != nil {
			return err
		}

		request = db.WithdrawalRequest{
			UserID:         userID,
			Amount:         amount,
			Status:         status,
			PaymentMethod:  paymentMethod,
			PaymentDetails: details,
			TransactionID:  walletTx.ID,
			ApprovedBy:     approvedBy,
			ApprovedAt:     approvedAt,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return tx.Create(&request).Error
	})
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// ApproveWithdrawal marks a pending request approved. The money was
// already deducted at request time.
func (s *Service) ApproveWithdrawal(requestID uint, adminID, notes string) (*db.WithdrawalRequest, error) {
	return s.resolveWithdrawal(requestID, adminID, notes, true)
}

// RejectWithdrawal declines a pending request and restores the user's
// balance in the same transaction.
func (s *Service) RejectWithdrawal(requestID uint, adminID, notes string) (*db.WithdrawalRequest, error) {
	return s.resolveWithdrawal(requestID, adminID, notes, false)
}

func (s *Service) resolveWithdrawal(requestID uint, adminID, notes string, approve bool) (*db.WithdrawalRequest, error) {
	var request db.WithdrawalRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.First(&request, requestID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRequestNotFound
		}
		if err != nil {
			return err
		}

		// The pending predicate rides on the UPDATE itself. When two
		// resolutions race, only one flips the request; the other sees
		// zero rows and the balance is restored at most once.
		now := time.Now().UTC()
		status := db.WithdrawalStatusApproved
		if !approve {
			status = db.WithdrawalStatusRejected
		}
		res := tx.Model(&db.WithdrawalRequest{}).
			Where("id = ? AND status = ?", requestID, db.WithdrawalStatusPending).
			Updates(map[string]any{
				"status":      status,
				"approved_by": adminID,
				"approved_at": now,
				"admin_notes": notes,
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRequestNotPending
		}
		request.Status = status
		request.ApprovedBy = adminID
		request.ApprovedAt = &now
		request.AdminNotes = notes

		txStatus := db.TransactionStatusSuccess
		if !approve {
			txStatus = db.TransactionStatusCancelled
			if err := tx.Model(&db.UserWallet{}).
				Where("user_id = ?", request.UserID).
				Updates(map[string]any{
					"balance":    gorm.Expr("balance + ?", request.Amount),
					"updated_at": now,
				}).Error; err != nil {
				return err
			}
		}
		return tx.Model(&db.WalletTransaction{}).
			Where("id = ?", request.TransactionID).
			Updates(map[string]any{"status": txStatus, "updated_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// WithdrawalRequests lists requests for admin review, oldest first so
// the queue drains in order. An empty status lists everything.
func (s *Service) WithdrawalRequests(status string, page, perPage int) ([]db.WithdrawalRequest, int64, error) {
	query := s.db.Model(&db.WithdrawalRequest{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var requests []db.WithdrawalRequest
	err := query.Order("created_at ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&requests).Error
	if err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}
