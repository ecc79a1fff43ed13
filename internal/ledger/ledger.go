// Package ledger is the single authority for "has this user voted, and
// what did they vote". All writes happen in storage transactions; the
// one-vote-per-election invariant is enforced by a partial unique index,
// not by the eligibility pre-check.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"vottery/internal/audit"
	"vottery/internal/cryptoutil"
	"vottery/internal/db"
	"vottery/internal/election"
)

var (
	// ErrAlreadyVoted is raised from the storage-level uniqueness
	// constraint when a second valid vote for the same (user, election)
	// pair is inserted, including by a concurrent request that passed
	// the eligibility pre-check.
	ErrAlreadyVoted = errors.New("user has already voted in this election")
	// ErrVoteNotFound means no valid vote exists to edit.
	ErrVoteNotFound = errors.New("no existing vote found")
	// ErrEditingNotAllowed means the election config forbids vote edits.
	ErrEditingNotAllowed = errors.New("vote editing is not allowed for this election")
)

// Answers maps a question id to the set of chosen option ids.
type Answers map[string][]int

// ValidateAnswers rejects malformed answer sets before any storage
// write, naming the offending question.
func ValidateAnswers(answers Answers) error {
	if len(answers) == 0 {
		return errors.New("answers must not be empty")
	}
	for question, options := range answers {
		if question == "" {
			return errors.New("answers contain an empty question id")
		}
		if len(options) == 0 {
			return fmt.Errorf("question %s has no selected options", question)
		}
		seen := make(map[int]bool, len(options))
		for _, option := range options {
			if option <= 0 {
				return fmt.Errorf("question %s has a non-positive option id", question)
			}
			if seen[option] {
				return fmt.Errorf("question %s selects option %d twice", question, option)
			}
			seen[option] = true
		}
	}
	return nil
}

type Service struct {
	db     *gorm.DB
	crypto *cryptoutil.Service
}

func NewService(conn *gorm.DB, crypto *cryptoutil.Service) *Service {
	return &Service{db: conn, crypto: crypto}
}

// Receipt is the voter-facing proof of a cast vote.
type Receipt struct {
	VotingID         string    `json:"votingId"`
	ReceiptID        string    `json:"receiptId"`
	VoteHash         string    `json:"voteHash"`
	VerificationCode string    `json:"verificationCode"`
	Timestamp        time.Time `json:"timestamp"`
}

// VotePackage is the plaintext sealed into encrypted_vote.
type VotePackage struct {
	UserID     string  `json:"userId"`
	ElectionID int     `json:"electionId"`
	Answers    Answers `json:"answers"`
	Timestamp  string  `json:"timestamp"`
}

// ValidateEligibility returns every reason the user may not vote, so the
// caller can show all blocking conditions at once. The already-voted
// check here is advisory; CastVote re-verifies it at insert time.
func (s *Service) ValidateEligibility(userID string, cfg *election.Config) ([]string, error) {
	reasons := []string{}
	if !cfg.Active() {
		reasons = append(reasons, fmt.Sprintf("Election is %s", cfg.Status))
	}
	now := time.Now().UTC()
	if now.Before(cfg.StartDate) {
		reasons = append(reasons, "Election has not started yet")
	}
	if now.After(cfg.EndDate) {
		reasons = append(reasons, "Election has ended")
	}
	var count int64
	if err := s.db.Model(&db.Vote{}).
		Where("user_id = ? AND election_id = ? AND status = ?", userID, cfg.ID, db.VoteStatusValid).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		reasons = append(reasons, "You have already voted in this election")
	}
	return reasons, nil
}

// CastVote records a ballot as one atomic unit: vote row, receipt row
// and vote_cast audit entry commit together or not at all.
func (s *Service) CastVote(userID string, electionID int, answers Answers, ip, userAgent string) (*Receipt, error) {
	if err := ValidateAnswers(answers); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	votingID := cryptoutil.NewUUID()
	voteHash := cryptoutil.VoteHash(userID, electionID, answers, timestamp)

	payload, err := json.Marshal(VotePackage{
		UserID:     userID,
		ElectionID: electionID,
		Answers:    answers,
		Timestamp:  timestamp,
	})
	if err != nil {
		return nil, err
	}
	encrypted, err := s.crypto.Encrypt(payload)
	if err != nil {
		return nil, err
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{
		VotingID: votingID,
		VoteHash: voteHash,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		vote := db.Vote{
			VotingID:      votingID,
			UserID:        userID,
			ElectionID:    electionID,
			Answers:       datatypes.JSON(answersJSON),
			EncryptedVote: encrypted,
			VoteHash:      voteHash,
			IPAddress:     ip,
			UserAgent:     userAgent,
			Status:        db.VoteStatusValid,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(&vote).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return ErrAlreadyVoted
			}
			return err
		}
		receipt.ReceiptID = cryptoutil.NewUUID()
		receipt.VerificationCode = cryptoutil.GenerateVerificationCode(votingID, userID, now.UnixNano())
		receipt.Timestamp = vote.CreatedAt
		if err := tx.Create(&db.VoteReceipt{
			ReceiptID:        receipt.ReceiptID,
			VotingID:         votingID,
			VoteHash:         voteHash,
			ElectionID:       electionID,
			UserID:           userID,
			VerificationCode: receipt.VerificationCode,
			CreatedAt:        now,
		}).Error; err != nil {
			return err
		}
		return audit.AppendInTx(tx, audit.Entry{
			ActionType: audit.ActionVoteCast,
			UserID:     userID,
			ElectionID: &electionID,
			VoteID:     &vote.ID,
			VotingID:   &votingID,
			IPAddress:  ip,
			UserAgent:  userAgent,
			Details:    map[string]any{"answers": answers},
		})
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// EditVote supersedes the user's valid vote: the old row flips to edited
// and a new valid row is inserted pointing back at it. The pair mutates
// in one transaction; on any failure the prior vote stays authoritative.
func (s *Service) EditVote(userID string, electionID int, answers Answers, ip, userAgent string) (*Receipt, error) {
	if err := ValidateAnswers(answers); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	votingID := cryptoutil.NewUUID()
	voteHash := cryptoutil.VoteHash(userID, electionID, answers, timestamp)

	payload, err := json.Marshal(VotePackage{
		UserID:     userID,
		ElectionID: electionID,
		Answers:    answers,
		Timestamp:  timestamp,
	})
	if err != nil {
		return nil, err
	}
	encrypted, err := s.crypto.Encrypt(payload)
	if err != nil {
		return nil, err
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{VotingID: votingID, VoteHash: voteHash}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var oldVote db.Vote
		if err := tx.
			Where("user_id = ? AND election_id = ? AND status = ?", userID, electionID, db.VoteStatusValid).
			First(&oldVote).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVoteNotFound
			}
			return err
		}
		if err := tx.Model(&db.Vote{}).
			Where("id = ?", oldVote.ID).
			Updates(map[string]any{"status": db.VoteStatusEdited, "is_edited": true, "updated_at": now}).Error; err != nil {
			return err
		}
		newVote := db.Vote{
			VotingID:       votingID,
			UserID:         userID,
			ElectionID:     electionID,
			Answers:        datatypes.JSON(answersJSON),
			EncryptedVote:  encrypted,
			VoteHash:       voteHash,
			IPAddress:      ip,
			UserAgent:      userAgent,
			Status:         db.VoteStatusValid,
			IsEdited:       true,
			OriginalVoteID: &oldVote.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&newVote).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return ErrAlreadyVoted
			}
			return err
		}
		receipt.ReceiptID = cryptoutil.NewUUID()
		receipt.VerificationCode = cryptoutil.GenerateVerificationCode(votingID, userID, now.UnixNano())
		receipt.Timestamp = newVote.CreatedAt
		if err := tx.Create(&db.VoteReceipt{
			ReceiptID:        receipt.ReceiptID,
			VotingID:         votingID,
			VoteHash:         voteHash,
			ElectionID:       electionID,
			UserID:           userID,
			VerificationCode: receipt.VerificationCode,
			CreatedAt:        now,
		}).Error; err != nil {
			return err
		}
		return audit.AppendInTx(tx, audit.Entry{
			ActionType: audit.ActionVoteEdited,
			UserID:     userID,
			ElectionID: &electionID,
			VoteID:     &newVote.ID,
			VotingID:   &votingID,
			IPAddress:  ip,
			UserAgent:  userAgent,
			Details:    map[string]any{"oldVoteId": oldVote.ID, "newAnswers": answers},
		})
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// VoteView is a user's current vote with its receipt info.
type VoteView struct {
	VotingID         string    `json:"votingId"`
	ElectionID       int       `json:"electionId"`
	Answers          Answers   `json:"answers"`
	VoteHash         string    `json:"voteHash"`
	IsEdited         bool      `json:"isEdited"`
	ReceiptID        string    `json:"receiptId"`
	VerificationCode string    `json:"verificationCode"`
	Timestamp        time.Time `json:"timestamp"`
}

// GetUserVote returns the user's valid vote for an election, or nil if
// they have not voted.
func (s *Service) GetUserVote(userID string, electionID int) (*VoteView, error) {
	var vote db.Vote
	err := s.db.
		Where("user_id = ? AND election_id = ? AND status = ?", userID, electionID, db.VoteStatusValid).
		Order("created_at DESC").
		First(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	view := &VoteView{
		VotingID:   vote.VotingID,
		ElectionID: vote.ElectionID,
		VoteHash:   vote.VoteHash,
		IsEdited:   vote.IsEdited,
		Timestamp:  vote.CreatedAt,
	}
	if err := json.Unmarshal(vote.Answers, &view.Answers); err != nil {
		return nil, err
	}
	var receipt db.VoteReceipt
	if err := s.db.Where("voting_id = ?", vote.VotingID).First(&receipt).Error; err == nil {
		view.ReceiptID = receipt.ReceiptID
		view.VerificationCode = receipt.VerificationCode
	}
	return view, nil
}

// ReceiptVerification pairs a receipt with its vote's current status.
type ReceiptVerification struct {
	ReceiptID        string    `json:"receiptId"`
	VotingID         string    `json:"votingId"`
	VoteHash         string    `json:"voteHash"`
	VerificationCode string    `json:"verificationCode"`
	VoteStatus       string    `json:"voteStatus"`
	VoteTimestamp    time.Time `json:"voteTimestamp"`
}

// VerifyReceipt looks up a receipt and the vote it proves. An unknown
// receipt id yields (nil, nil): not found is an answer, not an error.
// A receipt whose stored hash disagrees with the vote's is an integrity
// failure and is reported as an error.
func (s *Service) VerifyReceipt(receiptID string) (*ReceiptVerification, error) {
	var receipt db.VoteReceipt
	err := s.db.Where("receipt_id = ?", receiptID).First(&receipt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var vote db.Vote
	if err := s.db.Where("voting_id = ?", receipt.VotingID).First(&vote).Error; err != nil {
		return nil, err
	}
	if vote.VoteHash != receipt.VoteHash {
		return nil, fmt.Errorf("receipt %s hash mismatch against ledger", receiptID)
	}
	return &ReceiptVerification{
		ReceiptID:        receipt.ReceiptID,
		VotingID:         receipt.VotingID,
		VoteHash:         receipt.VoteHash,
		VerificationCode: receipt.VerificationCode,
		VoteStatus:       vote.Status,
		VoteTimestamp:    vote.CreatedAt,
	}, nil
}

// DecryptVote opens a vote's encrypted payload and checks it against the
// stored hash. Used by operators for integrity spot checks.
func (s *Service) DecryptVote(vote *db.Vote) (*VotePackage, error) {
	plaintext, err := s.crypto.Decrypt(vote.EncryptedVote)
	if err != nil {
		return nil, err
	}
	var pkg VotePackage
	if err := json.Unmarshal(plaintext, &pkg); err != nil {
		return nil, cryptoutil.ErrDecryptionFailed
	}
	if !cryptoutil.VerifyVoteHash(pkg.UserID, pkg.ElectionID, pkg.Answers, pkg.Timestamp, vote.VoteHash) {
		return nil, fmt.Errorf("vote %s failed hash verification", vote.VotingID)
	}
	return &pkg, nil
}

// Results is the per-question, per-option tally of valid votes.
type Results struct {
	ElectionID int                       `json:"electionId"`
	TotalVotes int                       `json:"totalVotes"`
	Tally      map[string]map[string]int `json:"results"`
}

// ElectionResults aggregates fresh on every call; there is no cached
// tally that could drift from the ledger.
func (s *Service) ElectionResults(electionID int) (*Results, error) {
	var votes []db.Vote
	if err := s.db.
		Select("answers").
		Where("election_id = ? AND status = ?", electionID, db.VoteStatusValid).
		Find(&votes).Error; err != nil {
		return nil, err
	}
	results := &Results{
		ElectionID: electionID,
		TotalVotes: len(votes),
		Tally:      map[string]map[string]int{},
	}
	for _, vote := range votes {
		var answers Answers
		if err := json.Unmarshal(vote.Answers, &answers); err != nil {
			return nil, err
		}
		for question, options := range answers {
			if results.Tally[question] == nil {
				results.Tally[question] = map[string]int{}
			}
			for _, option := range options {
				results.Tally[question][fmt.Sprintf("%d", option)]++
			}
		}
	}
	return results, nil
}

// HistoryEntry is one vote in a user's voting history.
type HistoryEntry struct {
	VotingID            string    `json:"votingId"`
	ElectionID          int       `json:"electionId"`
	IsEdited            bool      `json:"isEdited"`
	VoteHash            string    `json:"voteHash"`
	ReceiptID           string    `json:"receiptId"`
	VerificationCode    string    `json:"verificationCode"`
	LotteryTicketNumber string    `json:"lotteryTicketNumber,omitempty"`
	LotteryBallNumber   int       `json:"lotteryBallNumber,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

type History struct {
	Votes      []HistoryEntry `json:"votes"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	PerPage    int            `json:"perPage"`
	TotalPages int            `json:"totalPages"`
}

// VotingHistory lists the user's valid votes newest first, joined with
// receipts and lottery tickets.
func (s *Service) VotingHistory(userID string, page, perPage int) (*History, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	var total int64
	if err := s.db.Model(&db.Vote{}).
		Where("user_id = ? AND status = ?", userID, db.VoteStatusValid).
		Count(&total).Error; err != nil {
		return nil, err
	}
	var votes []db.Vote
	if err := s.db.
		Where("user_id = ? AND status = ?", userID, db.VoteStatusValid).
		Order("created_at DESC, id DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&votes).Error; err != nil {
		return nil, err
	}
	votingIDs := make([]string, 0, len(votes))
	for _, vote := range votes {
		votingIDs = append(votingIDs, vote.VotingID)
	}
	receipts := map[string]db.VoteReceipt{}
	if len(votingIDs) > 0 {
		var rows []db.VoteReceipt
		if err := s.db.Where("voting_id IN ?", votingIDs).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			receipts[row.VotingID] = row
		}
	}
	tickets := map[string]db.LotteryTicket{}
	if len(votingIDs) > 0 {
		var rows []db.LotteryTicket
		if err := s.db.Where("voting_id IN ?", votingIDs).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			tickets[row.VotingID] = row
		}
	}
	history := &History{
		Votes:   make([]HistoryEntry, 0, len(votes)),
		Total:   total,
		Page:    page,
		PerPage: perPage,
	}
	history.TotalPages = int((total + int64(perPage) - 1) / int64(perPage))
	for _, vote := range votes {
		entry := HistoryEntry{
			VotingID:   vote.VotingID,
			ElectionID: vote.ElectionID,
			IsEdited:   vote.IsEdited,
			VoteHash:   vote.VoteHash,
			Timestamp:  vote.CreatedAt,
		}
		if receipt, ok := receipts[vote.VotingID]; ok {
			entry.ReceiptID = receipt.ReceiptID
			entry.VerificationCode = receipt.VerificationCode
		}
		if ticket, ok := tickets[vote.VotingID]; ok {
			entry.LotteryTicketNumber = ticket.TicketNumber
			entry.LotteryBallNumber = ticket.BallNumber
		}
		history.Votes = append(history.Votes, entry)
	}
	return history, nil
}
