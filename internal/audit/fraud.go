package audit

import (
	"time"

	"vottery/internal/db"
)

// Finding is one fraud-pattern hit. Findings are heuristics, not blocks;
// the caller decides whether to flag the vote or alert an operator.
type Finding struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// DetectFraudPatterns evaluates the rapid-voting and ip-hopping rules
// over the user's recent audit trail.
func (r *Recorder) DetectFraudPatterns(userID string, electionID int) ([]Finding, error) {
	findings := []Finding{}
	now := time.Now().UTC()

	var attempts int64
	if err := r.db.Model(&db.VoteAuditLog{}).
		Where("user_id = ?", userID).
		Where("action_type IN ?", []string{ActionVoteCast, ActionVoteAttemptFailed}).
		Where("created_at > ?", now.Add(-r.rules.RapidVoteWindow)).
		Count(&attempts).Error; err != nil {
		return nil, err
	}
	if attempts > int64(r.rules.RapidVoteLimit) {
		findings = append(findings, Finding{
			Type:        "rapid_voting",
			Severity:    "high",
			Description: "Multiple vote attempts in short timeframe",
		})
	}

	var uniqueIPs int64
	if err := r.db.Model(&db.VoteAuditLog{}).
		Where("user_id = ?", userID).
		Where("created_at > ?", now.Add(-r.rules.IPHopWindow)).
		Distinct("ip_address").
		Count(&uniqueIPs).Error; err != nil {
		return nil, err
	}
	if uniqueIPs > int64(r.rules.IPHopLimit) {
		findings = append(findings, Finding{
			Type:        "ip_hopping",
			Severity:    "medium",
			Description: "Multiple IP addresses in short timeframe",
		})
	}

	return findings, nil
}
