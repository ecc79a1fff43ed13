// Package election is the read-only boundary to the external election
// service. The core never sees the upstream's raw payload; the adapter
// in this package produces a strict typed Config at the edge.
package election

import (
	"time"
)

type LotteryConfig struct {
	WinnerCount      int     `json:"winnerCount"`
	RewardAmount     float64 `json:"rewardAmount"`
	RewardType       string  `json:"rewardType"`
	PrizeDescription string  `json:"prizeDescription"`
}

// Config is the election configuration the core consumes. It may be
// stale by design; the core does not own the election lifecycle.
type Config struct {
	ID                      int
	Title                   string
	Status                  string
	CreatorUserID           string
	StartDate               time.Time
	EndDate                 time.Time
	IsFree                  bool
	IsLotterized            bool
	VideoRequired           bool
	VoteEditingAllowed      bool
	Lottery                 *LotteryConfig
	ProcessingFeePercentage float64
	PricingType             string
	GeneralParticipationFee float64
}

// Active reports whether the election status admits voting.
func (c *Config) Active() bool {
	return c.Status == "published" || c.Status == "active"
}

// WithinVotingWindow reports whether now falls inside the start/end dates.
func (c *Config) WithinVotingWindow(now time.Time) bool {
	return !now.Before(c.StartDate) && !now.After(c.EndDate)
}

// Ended reports whether the election's natural end has passed.
func (c *Config) Ended(now time.Time) bool {
	return now.After(c.EndDate)
}
