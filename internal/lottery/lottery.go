// Package lottery issues tickets on each vote in a lotterized election
// and runs the one-shot winner draw when the election ends.
package lottery

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"vottery/internal/audit"
	"vottery/internal/cryptoutil"
	"vottery/internal/db"
	"vottery/internal/election"
)

var (
	// ErrDrawAlreadyCompleted is raised from the unique election_id
	// constraint on the draws table when a second draw is attempted.
	ErrDrawAlreadyCompleted = errors.New("lottery draw already completed for this election")
	// ErrNoTickets means the election has no participants to draw from.
	ErrNoTickets = errors.New("no lottery tickets found")
	// ErrAlreadyClaimed means the prize was claimed earlier.
	ErrAlreadyClaimed = errors.New("prize already claimed")
	// ErrWinnerNotFound means no winner row exists for that user.
	ErrWinnerNotFound = errors.New("winner record not found")
)

type Service struct {
	db                   *gorm.DB
	autoApproveThreshold float64
}

func NewService(conn *gorm.DB, autoApproveThreshold float64) *Service {
	return &Service{db: conn, autoApproveThreshold: autoApproveThreshold}
}

// CreateTicket issues the lottery ticket for a freshly cast vote. The
// ball number is a stable derivation of (user, election); the voting_id
// uniqueness keeps tickets 1:1 with votes. Callers treat failures as
// best-effort: the vote is the primary action and is never rolled back
// for a ticket problem.
func (s *Service) CreateTicket(userID string, electionID int, votingID string) (*db.LotteryTicket, error) {
	ballNumber := cryptoutil.GenerateBallNumber(userID, electionID)
	ticket := &db.LotteryTicket{
		UserID:       userID,
		ElectionID:   electionID,
		VotingID:     votingID,
		TicketNumber: fmt.Sprintf("TIX-%d-%d", electionID, ballNumber),
		BallNumber:   ballNumber,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.Create(ticket).Error; err != nil {
		return nil, err
	}
	return ticket, nil
}

// Winner is one draw result entry, in rank order.
type Winner struct {
	UserID       string  `json:"userId"`
	TicketNumber string  `json:"ticketNumber"`
	BallNumber   int     `json:"ballNumber"`
	Rank         int     `json:"rank"`
	PrizeAmount  float64 `json:"prizeAmount"`
}

type DrawResult struct {
	Draw    *db.LotteryDraw `json:"draw"`
	Winners []Winner        `json:"winners"`
}

// SelectWinners runs the draw for an ended election: a Fisher–Yates
// shuffle over all tickets using the secure random source, linearly
// descending prize weights, and immediate settlement of small monetary
// prizes. The whole draw commits atomically; a partial draw would block
// retry behind the draw-exists constraint, so any failure rolls
// everything back.
func (s *Service) SelectWinners(electionID int, cfg *election.LotteryConfig) (*DrawResult, error) {
	randomSeed, err := cryptoutil.GenerateRandomSeed()
	if err != nil {
		return nil, err
	}

	var result *DrawResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var tickets []db.LotteryTicket
		if err := tx.Where("election_id = ?", electionID).Order("id ASC").Find(&tickets).Error; err != nil {
			return err
		}
		if len(tickets) == 0 {
			return ErrNoTickets
		}

		winnerCount := cfg.WinnerCount
		if winnerCount > len(tickets) {
			winnerCount = len(tickets)
		}
		if winnerCount < 1 {
			winnerCount = 1
		}

		metadata, err := json.Marshal(map[string]any{
			"lotteryConfig":  cfg,
			"totalPrizePool": cfg.RewardAmount,
			"rewardType":     cfg.RewardType,
		})
		if err != nil {
			return err
		}
		draw := &db.LotteryDraw{
			ElectionID:        electionID,
			TotalParticipants: len(tickets),
			WinnerCount:       winnerCount,
			RandomSeed:        randomSeed,
			Status:            db.DrawStatusCompleted,
			Metadata:          datatypes.JSON(metadata),
			CreatedAt:         time.Now().UTC(),
		}
		// Inserting the draw first makes the unique constraint reject a
		// concurrent or repeated draw before any winner is settled.
		if err := tx.Create(draw).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return ErrDrawAlreadyCompleted
			}
			return err
		}

		shuffled := append([]db.LotteryTicket(nil), tickets...)
		for i := len(shuffled) - 1; i > 0; i-- {
			j, err := cryptoutil.SecureRandomInt(i + 1)
			if err != nil {
				return err
			}
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		}

		prizes := prizeSchedule(cfg.RewardType, cfg.RewardAmount, winnerCount)
		winners := make([]Winner, 0, winnerCount)
		now := time.Now().UTC()
		for i := 0; i < winnerCount; i++ {
			ticket := shuffled[i]
			rank := i + 1
			prizeAmount := prizes[i]

			winnerRow := db.LotteryWinner{
				ElectionID:       electionID,
				UserID:           ticket.UserID,
				TicketID:         ticket.ID,
				Rank:             rank,
				PrizeAmount:      prizeAmount,
				PrizeType:        cfg.RewardType,
				PrizeDescription: cfg.PrizeDescription,
				CreatedAt:        now,
			}

			// Small monetary prizes settle immediately: wallet credit,
			// transaction row and claimed flag in this same transaction.
			if cfg.RewardType == db.PrizeTypeMonetary && prizeAmount > 0 && prizeAmount <= s.autoApproveThreshold {
				if err := creditWallet(tx, ticket.UserID, prizeAmount); err != nil {
					return err
				}
				eid := electionID
				if err := tx.Create(&db.WalletTransaction{
					UserID:          ticket.UserID,
					TransactionType: db.TransactionLotteryPrize,
					Amount:          prizeAmount,
					Status:          db.TransactionStatusSuccess,
					ElectionID:      &eid,
					Description:     fmt.Sprintf("Lottery prize - Rank %d", rank),
					CreatedAt:       now,
					UpdatedAt:       now,
				}).Error; err != nil {
					return err
				}
				winnerRow.Claimed = true
				winnerRow.ClaimedAt = &now
			}

			if err := tx.Create(&winnerRow).Error; err != nil {
				return err
			}
			winners = append(winners, Winner{
				UserID:       ticket.UserID,
				TicketNumber: ticket.TicketNumber,
				BallNumber:   ticket.BallNumber,
				Rank:         rank,
				PrizeAmount:  prizeAmount,
			})
		}

		eid := electionID
		if err := audit.AppendInTx(tx, audit.Entry{
			ActionType: audit.ActionLotteryDrawCompleted,
			UserID:     db.PlatformUserID,
			ElectionID: &eid,
			Details: map[string]any{
				"totalParticipants": len(tickets),
				"winnerCount":       winnerCount,
				"randomSeed":        randomSeed,
			},
		}); err != nil {
			return err
		}

		result = &DrawResult{Draw: draw, Winners: winners}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// prizeSchedule splits the reward across winnerCount ranks with linearly
// descending weights (n, n-1, ..., 1). A sole winner takes everything.
// Non-monetary rewards have no amounts.
func prizeSchedule(rewardType string, rewardAmount float64, winnerCount int) []float64 {
	prizes := make([]float64, winnerCount)
	if rewardType != db.PrizeTypeMonetary || rewardAmount <= 0 {
		return prizes
	}
	if winnerCount == 1 {
		prizes[0] = roundCents(rewardAmount)
		return prizes
	}
	totalWeight := 0
	for i := 0; i < winnerCount; i++ {
		totalWeight += winnerCount - i
	}
	for i := 0; i < winnerCount; i++ {
		weight := winnerCount - i
		prizes[i] = roundCents(rewardAmount * float64(weight) / float64(totalWeight))
	}
	return prizes
}

func roundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}

func creditWallet(tx *gorm.DB, userID string, amount float64) error {
	now := time.Now().UTC()
	wallet := db.UserWallet{UserID: userID, Currency: "USD", CreatedAt: now, UpdatedAt: now}
	if err := tx.Where(db.UserWallet{UserID: userID}).FirstOrCreate(&wallet).Error; err != nil {
		return err
	}
	return tx.Model(&db.UserWallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": now,
		}).Error
}
