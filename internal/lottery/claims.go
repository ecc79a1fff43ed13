package lottery

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"vottery/internal/db"
)

// ClaimPrize marks a winner's prize as claimed. Monetary prizes become a
// pending payout transaction for the payout pipeline to settle; the
// wallet balance is not touched here.
func (s *Service) ClaimPrize(userID string, electionID int) (*db.LotteryWinner, error) {
	var winner db.LotteryWinner
	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND election_id = ?", userID, electionID).First(&winner).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrWinnerNotFound
		}
		if err != nil {
			return err
		}

		// The claimed predicate rides on the UPDATE itself, so when two
		// claims race only one flips the row; the other sees zero rows.
		now := time.Now().UTC()
		res := tx.Model(&db.LotteryWinner{}).
			Where("id = ? AND claimed = ?", winner.ID, false).
			Updates(map[string]any{"claimed": true, "claimed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyClaimed
		}
		winner.Claimed = true
		winner.ClaimedAt = &now

		if winner.PrizeType == db.PrizeTypeMonetary && winner.PrizeAmount > 0 {
			eid := electionID
			if err := tx.Create(&db.WalletTransaction{
				UserID:          userID,
				TransactionType: db.TransactionLotteryPrize,
				Amount:          winner.PrizeAmount,
				Status:          db.TransactionStatusPending,
				ElectionID:      &eid,
				Description:     fmt.Sprintf("Lottery prize claim - Rank %d", winner.Rank),
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
	return &winner, nil
}

// ElectionWinners lists the draw results for an election in rank order,
// or a nil slice when the draw has not happened.
func (s *Service) ElectionWinners(electionID int) ([]db.LotteryWinner, error) {
	var winners []db.LotteryWinner
	err := s.db.Where("election_id = ?", electionID).Order("rank ASC").Find(&winners).Error
	if err != nil {
		return nil, err
	}
	return winners, nil
}

// ElectionDraw returns the completed draw record, or nil when no draw
// has been run yet.
func (s *Service) ElectionDraw(electionID int) (*db.LotteryDraw, error) {
	var draw db.LotteryDraw
	err := s.db.Where("election_id = ?", electionID).First(&draw).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &draw, nil
}

// UserTickets pages through a user's tickets, newest first.
func (s *Service) UserTickets(userID string, page, perPage int) ([]db.LotteryTicket, int64, error) {
	var total int64
	if err := s.db.Model(&db.LotteryTicket{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var tickets []db.LotteryTicket
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&tickets).Error
	if err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

// Statistics summarizes lottery participation for an election.
type Statistics struct {
	ElectionID        int     `json:"electionId"`
	TicketCount       int64   `json:"ticketCount"`
	DrawCompleted     bool    `json:"drawCompleted"`
	WinnerCount       int64   `json:"winnerCount"`
	ClaimedCount      int64   `json:"claimedCount"`
	TotalPrizesIssued float64 `json:"totalPrizesIssued"`
}

func (s *Service) ElectionStatistics(electionID int) (*Statistics, error) {
	stats := &Statistics{ElectionID: electionID}
	if err := s.db.Model(&db.LotteryTicket{}).
		Where("election_id = ?", electionID).Count(&stats.TicketCount).Error; err != nil {
		return nil, err
	}
	draw, err := s.ElectionDraw(electionID)
	if err != nil {
		return nil, err
	}
	stats.DrawCompleted = draw != nil
	if err := s.db.Model(&db.LotteryWinner{}).
		Where("election_id = ?", electionID).Count(&stats.WinnerCount).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&db.LotteryWinner{}).
		Where("election_id = ? AND claimed = ?", electionID, true).Count(&stats.ClaimedCount).Error; err != nil {
		return nil, err
	}
	var total *float64
	if err := s.db.Model(&db.LotteryWinner{}).
		Where("election_id = ?", electionID).
		Select("SUM(prize_amount)").Scan(&total).Error; err != nil {
		return nil, err
	}
	if total != nil {
		stats.TotalPrizesIssued = *total
	}
	return stats, nil
}
