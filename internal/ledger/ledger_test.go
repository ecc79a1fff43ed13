package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vottery/internal/cryptoutil"
	"vottery/internal/db"
	"vottery/internal/election"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return conn
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn := newTestDB(t)
	crypto, err := cryptoutil.New("test-encryption-secret")
	if err != nil {
		t.Fatalf("crypto service: %v", err)
	}
	return NewService(conn, crypto), conn
}

func timeAgo(hours int) time.Time {
	return time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
}

func TestCastVoteProducesReceiptAndAuditEntry(t *testing.T) {
	svc, conn := newTestService(t)

	receipt, err := svc.CastVote("user-1", 42, Answers{"q1": {1}, "q2": {2, 3}}, "10.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if receipt.VotingID == "" || receipt.ReceiptID == "" || receipt.VoteHash == "" {
		t.Fatalf("incomplete receipt: %+v", receipt)
	}
	if len(receipt.VerificationCode) != 16 {
		t.Fatalf("verification code length = %d, want 16", len(receipt.VerificationCode))
	}

	var vote db.Vote
	if err := conn.Where("voting_id = ?", receipt.VotingID).First(&vote).Error; err != nil {
		t.Fatalf("vote row missing: %v", err)
	}
	if vote.Status != db.VoteStatusValid {
		t.Fatalf("vote status = %q, want valid", vote.Status)
	}
	if vote.EncryptedVote == "" {
		t.Fatal("encrypted vote is empty")
	}

	var auditCount int64
	if err := conn.Model(&db.VoteAuditLog{}).
		Where("action_type = ? AND user_id = ?", "vote_cast", "user-1").
		Count(&auditCount).Error; err != nil {
		t.Fatalf("count audit rows: %v", err)
	}
	if auditCount != 1 {
		t.Fatalf("audit count = %d, want 1", auditCount)
	}
}

func TestCastVoteTwiceIsRejected(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.CastVote("user-1", 7, Answers{"q1": {1}}, "10.0.0.1", "agent"); err != nil {
		t.Fatalf("first cast: %v", err)
	}
	_, err := svc.CastVote("user-1", 7, Answers{"q1": {2}}, "10.0.0.1", "agent")
	if !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("second cast error = %v, want ErrAlreadyVoted", err)
	}

	// Same user, different election still works.
	if _, err := svc.CastVote("user-1", 8, Answers{"q1": {1}}, "10.0.0.1", "agent"); err != nil {
		t.Fatalf("cast in other election: %v", err)
	}
}

func TestEditVoteSupersedesOriginal(t *testing.T) {
	svc, conn := newTestService(t)

	first, err := svc.CastVote("user-1", 7, Answers{"q1": {1}}, "10.0.0.1", "agent")
	if err != nil {
		t.Fatalf("cast: %v", err)
	}
	second, err := svc.EditVote("user-1", 7, Answers{"q1": {2}}, "10.0.0.1", "agent")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if second.VotingID == first.VotingID {
		t.Fatal("edit reused the original voting id")
	}

	var original db.Vote
	if err := conn.Where("voting_id = ?", first.VotingID).First(&original).Error; err != nil {
		t.Fatalf("original vote: %v", err)
	}
	if original.Status != db.VoteStatusEdited || !original.IsEdited {
		t.Fatalf("original not superseded: status=%q isEdited=%v", original.Status, original.IsEdited)
	}

	view, err := svc.GetUserVote("user-1", 7)
	if err != nil {
		t.Fatalf("get user vote: %v", err)
	}
	if view == nil || view.VotingID != second.VotingID || !view.IsEdited {
		t.Fatalf("current vote = %+v, want edited vote %s", view, second.VotingID)
	}
	if len(view.Answers["q1"]) != 1 || view.Answers["q1"][0] != 2 {
		t.Fatalf("current answers = %v, want q1=[2]", view.Answers)
	}

	results, err := svc.ElectionResults(7)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if results.TotalVotes != 1 {
		t.Fatalf("total votes after edit = %d, want 1", results.TotalVotes)
	}
	if results.Tally["q1"]["2"] != 1 || results.Tally["q1"]["1"] != 0 {
		t.Fatalf("tally after edit = %v", results.Tally)
	}
}

func TestEditVoteWithoutExistingVote(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.EditVote("user-1", 7, Answers{"q1": {1}}, "10.0.0.1", "agent")
	if !errors.Is(err, ErrVoteNotFound) {
		t.Fatalf("error = %v, want ErrVoteNotFound", err)
	}
}

func TestElectionResultsTally(t *testing.T) {
	svc, _ := newTestService(t)

	votes := []struct {
		user    string
		answers Answers
	}{
		{"alice", Answers{"q1": {1}, "q2": {10}}},
		{"bob", Answers{"q1": {1}, "q2": {11}}},
		{"carol", Answers{"q1": {2}, "q2": {10, 11}}},
	}
	for _, v := range votes {
		if _, err := svc.CastVote(v.user, 5, v.answers, "10.0.0.1", "agent"); err != nil {
			t.Fatalf("cast for %s: %v", v.user, err)
		}
	}

	results, err := svc.ElectionResults(5)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if results.TotalVotes != 3 {
		t.Fatalf("total votes = %d, want 3", results.TotalVotes)
	}
	if results.Tally["q1"]["1"] != 2 || results.Tally["q1"]["2"] != 1 {
		t.Fatalf("q1 tally = %v", results.Tally["q1"])
	}
	if results.Tally["q2"]["10"] != 2 || results.Tally["q2"]["11"] != 2 {
		t.Fatalf("q2 tally = %v", results.Tally["q2"])
	}
}

func TestVerifyReceipt(t *testing.T) {
	svc, conn := newTestService(t)

	receipt, err := svc.CastVote("user-1", 9, Answers{"q1": {1}}, "10.0.0.1", "agent")
	if err != nil {
		t.Fatalf("cast: %v", err)
	}

	verification, err := svc.VerifyReceipt(receipt.ReceiptID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verification == nil || verification.VoteHash != receipt.VoteHash {
		t.Fatalf("verification = %+v", verification)
	}
	if verification.VoteStatus != db.VoteStatusValid {
		t.Fatalf("vote status = %q, want valid", verification.VoteStatus)
	}

	unknown, err := svc.VerifyReceipt(cryptoutil.NewUUID())
	if err != nil {
		t.Fatalf("verify unknown: %v", err)
	}
	if unknown != nil {
		t.Fatalf("unknown receipt verified: %+v", unknown)
	}

	// A tampered ledger entry must fail verification.
	if err := conn.Model(&db.Vote{}).
		Where("voting_id = ?", receipt.VotingID).
		Update("vote_hash", "0000").Error; err != nil {
		t.Fatalf("tamper vote: %v", err)
	}
	if _, err := svc.VerifyReceipt(receipt.ReceiptID); err == nil {
		t.Fatal("tampered vote passed receipt verification")
	}
}

func TestDecryptVoteDetectsTampering(t *testing.T) {
	svc, conn := newTestService(t)

	receipt, err := svc.CastVote("user-1", 9, Answers{"q1": {1, 3}}, "10.0.0.1", "agent")
	if err != nil {
		t.Fatalf("cast: %v", err)
	}
	var vote db.Vote
	if err := conn.Where("voting_id = ?", receipt.VotingID).First(&vote).Error; err != nil {
		t.Fatalf("load vote: %v", err)
	}

	pkg, err := svc.DecryptVote(&vote)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if pkg.UserID != "user-1" || pkg.ElectionID != 9 {
		t.Fatalf("package = %+v", pkg)
	}
	if len(pkg.Answers["q1"]) != 2 {
		t.Fatalf("answers = %v", pkg.Answers)
	}

	vote.VoteHash = "deadbeef"
	if _, err := svc.DecryptVote(&vote); err == nil {
		t.Fatal("tampered hash passed decrypt verification")
	}
}

func TestVotingHistoryJoinsReceiptsAndTickets(t *testing.T) {
	svc, conn := newTestService(t)

	receipt, err := svc.CastVote("user-1", 3, Answers{"q1": {1}}, "10.0.0.1", "agent")
	if err != nil {
		t.Fatalf("cast: %v", err)
	}
	if _, err := svc.CastVote("user-1", 4, Answers{"q1": {2}}, "10.0.0.1", "agent"); err != nil {
		t.Fatalf("cast second: %v", err)
	}
	ticket := db.LotteryTicket{
		UserID:       "user-1",
		ElectionID:   3,
		VotingID:     receipt.VotingID,
		TicketNumber: "TIX-3-123456",
		BallNumber:   123456,
	}
	if err := conn.Create(&ticket).Error; err != nil {
		t.Fatalf("ticket: %v", err)
	}

	history, err := svc.VotingHistory("user-1", 1, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if history.Total != 2 || len(history.Votes) != 2 {
		t.Fatalf("history size = %d/%d, want 2/2", history.Total, len(history.Votes))
	}
	var withTicket *HistoryEntry
	for i := range history.Votes {
		if history.Votes[i].ElectionID == 3 {
			withTicket = &history.Votes[i]
		}
		if history.Votes[i].ReceiptID == "" {
			t.Fatalf("entry %d missing receipt", i)
		}
	}
	if withTicket == nil || withTicket.LotteryTicketNumber != "TIX-3-123456" {
		t.Fatalf("lottery ticket not joined: %+v", withTicket)
	}
}

func TestValidateAnswers(t *testing.T) {
	if err := ValidateAnswers(Answers{}); err == nil {
		t.Fatal("empty answers accepted")
	}
	if err := ValidateAnswers(Answers{"q1": {}}); err == nil {
		t.Fatal("empty option list accepted")
	}
	if err := ValidateAnswers(Answers{"q1": {0}}); err == nil {
		t.Fatal("non-positive option accepted")
	}
	if err := ValidateAnswers(Answers{"q1": {1, 1}}); err == nil {
		t.Fatal("duplicate option accepted")
	}
	if err := ValidateAnswers(Answers{"q1": {1, 2}}); err != nil {
		t.Fatalf("valid answers rejected: %v", err)
	}
}

func TestValidateEligibilityCollectsAllReasons(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.CastVote("user-1", 6, Answers{"q1": {1}}, "10.0.0.1", "agent"); err != nil {
		t.Fatalf("cast: %v", err)
	}

	cfg := &election.Config{
		ID:        6,
		Status:    "completed",
		StartDate: timeAgo(48),
		EndDate:   timeAgo(24),
	}
	reasons, err := svc.ValidateEligibility("user-1", cfg)
	if err != nil {
		t.Fatalf("eligibility: %v", err)
	}
	if len(reasons) != 3 {
		t.Fatalf("reasons = %v, want status, window and already-voted", reasons)
	}

	fresh := &election.Config{
		ID:        99,
		Status:    "active",
		StartDate: timeAgo(1),
		EndDate:   timeAgo(-1),
	}
	reasons, err = svc.ValidateEligibility("user-2", fresh)
	if err != nil {
		t.Fatalf("eligibility: %v", err)
	}
	if len(reasons) != 0 {
		t.Fatalf("unexpected reasons: %v", reasons)
	}
}
