// Package audit owns the append-only audit log, the fraud heuristics and
// the hash chain that makes an election's vote history independently
// verifiable.
package audit

import (
	"encoding/json"
	"log"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"vottery/internal/db"
)

// Audit action types.
const (
	ActionVoteCast             = "vote_cast"
	ActionVoteEdited           = "vote_edited"
	ActionVoteVerified         = "vote_verified"
	ActionVoteFlagged          = "vote_flagged"
	ActionVideoStarted         = "video_started"
	ActionVideoCompleted       = "video_completed"
	ActionLotteryTicketCreated = "lottery_ticket_created"
	ActionLotteryDrawCompleted = "lottery_draw_completed"
	ActionPaymentCompleted     = "payment_completed"
	ActionWithdrawalRequested  = "withdrawal_requested"
	ActionSuspiciousActivity   = "suspicious_activity"
	ActionVoteAttemptFailed    = "vote_attempt_failed"
	ActionIPChangeDetected     = "ip_change_detected"
	ActionFraudPatternDetected = "fraud_pattern_detected"
)

// Rules holds the fraud-heuristic policy knobs.
type Rules struct {
	RapidVoteWindow time.Duration
	RapidVoteLimit  int
	IPHopWindow     time.Duration
	IPHopLimit      int
}

func DefaultRules() Rules {
	return Rules{
		RapidVoteWindow: 5 * time.Minute,
		RapidVoteLimit:  5,
		IPHopWindow:     time.Hour,
		IPHopLimit:      3,
	}
}

type Recorder struct {
	db    *gorm.DB
	rules Rules
}

func NewRecorder(conn *gorm.DB, rules Rules) *Recorder {
	return &Recorder{db: conn, rules: rules}
}

// Entry is one audit event to append.
type Entry struct {
	ActionType string
	UserID     string
	ElectionID *int
	VoteID     *uint
	VotingID   *string
	IPAddress  string
	UserAgent  string
	Severity   string
	Details    map[string]any
}

// Log appends an audit entry outside of any caller transaction. It is
// best-effort: failures are written to the operational log and swallowed
// so that audit problems can never block voting or settlement.
func (r *Recorder) Log(e Entry) {
	if e.Severity == "" {
		e.Severity = "info"
	}
	record, err := e.toRecord(time.Now().UTC())
	if err != nil {
		log.Printf("audit log marshal failed action=%s user=%s err=%v", e.ActionType, e.UserID, err)
		return
	}
	if err := r.db.Create(record).Error; err != nil {
		log.Printf("audit log write failed action=%s user=%s err=%v", e.ActionType, e.UserID, err)
	}
}

// LogFailedVoteAttempt records a rejected cast attempt.
func (r *Recorder) LogFailedVoteAttempt(userID string, electionID int, ip, userAgent, reason string, answersProvided bool) {
	r.Log(Entry{
		ActionType: ActionVoteAttemptFailed,
		UserID:     userID,
		ElectionID: &electionID,
		IPAddress:  ip,
		UserAgent:  userAgent,
		Severity:   "warning",
		Details: map[string]any{
			"reason":          reason,
			"answersProvided": answersProvided,
		},
	})
}

// LogSuspiciousActivity records an anomaly surfaced by a caller.
func (r *Recorder) LogSuspiciousActivity(userID string, electionID *int, ip, userAgent, activity, reason string) {
	r.Log(Entry{
		ActionType: ActionSuspiciousActivity,
		UserID:     userID,
		ElectionID: electionID,
		IPAddress:  ip,
		UserAgent:  userAgent,
		Severity:   "warning",
		Details: map[string]any{
			"activity": activity,
			"reason":   reason,
		},
	})
}

func (e Entry) toRecord(now time.Time) (*db.VoteAuditLog, error) {
	record := &db.VoteAuditLog{
		ActionType: e.ActionType,
		UserID:     e.UserID,
		ElectionID: e.ElectionID,
		VoteID:     e.VoteID,
		VotingID:   e.VotingID,
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
		CreatedAt:  now,
	}
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	details["severity"] = e.Severity
	payload, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	record.Details = datatypes.JSON(payload)
	return record, nil
}

// AppendInTx writes an audit row inside the caller's transaction. The
// vote ledger uses this for the entries that are part of the cast/edit
// atomic unit.
func AppendInTx(tx *gorm.DB, e Entry) error {
	if e.Severity == "" {
		e.Severity = "info"
	}
	record, err := e.toRecord(time.Now().UTC())
	if err != nil {
		return err
	}
	return tx.Create(record).Error
}

// Trail is a paginated slice of audit entries.
type Trail struct {
	Entries    []db.VoteAuditLog `json:"entries"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PerPage    int               `json:"perPage"`
	TotalPages int               `json:"totalPages"`
}

// ElectionTrail returns an election's audit entries, newest first,
// optionally filtered by action type.
func (r *Recorder) ElectionTrail(electionID int, actionType string, page, perPage int) (*Trail, error) {
	query := r.db.Model(&db.VoteAuditLog{}).Where("election_id = ?", electionID)
	if actionType != "" {
		query = query.Where("action_type = ?", actionType)
	}
	return paginateTrail(query, page, perPage)
}

// UserTrail returns a user's audit entries, newest first.
func (r *Recorder) UserTrail(userID string, page, perPage int) (*Trail, error) {
	query := r.db.Model(&db.VoteAuditLog{}).Where("user_id = ?", userID)
	return paginateTrail(query, page, perPage)
}

func paginateTrail(query *gorm.DB, page, perPage int) (*Trail, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}
	var entries []db.VoteAuditLog
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	return &Trail{
		Entries:    entries,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}, nil
}

// Stats counts an election's audit entries per action type.
func (r *Recorder) Stats(electionID int) (map[string]int64, error) {
	var rows []struct {
		ActionType string
		Count      int64
	}
	if err := r.db.Model(&db.VoteAuditLog{}).
		Select("action_type, COUNT(*) as count").
		Where("election_id = ?", electionID).
		Group("action_type").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	stats := make(map[string]int64, len(rows))
	for _, row := range rows {
		stats[row.ActionType] = row.Count
	}
	return stats, nil
}
