// Package jobs runs the scheduled election-end settlement: lottery draw
// and escrow release for every election whose end date has passed.
package jobs

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"vottery/internal/election"
	"vottery/internal/lottery"
	"vottery/internal/wallet"
)

// Schedule runs the processor at five minutes past every hour, offset
// from the top of the hour so it never races the election service's own
// end-of-hour status flips.
const Schedule = "5 * * * *"

type ElectionEndProcessor struct {
	elections *election.Client
	lottery   *lottery.Service
	wallet    *wallet.Service
}

func NewElectionEndProcessor(elections *election.Client, lotterySvc *lottery.Service, walletSvc *wallet.Service) *ElectionEndProcessor {
	return &ElectionEndProcessor{elections: elections, lottery: lotterySvc, wallet: walletSvc}
}

// Start registers the processor on a new cron scheduler and starts it.
// The returned cron should be stopped on shutdown.
func (p *ElectionEndProcessor) Start() (*cron.Cron, error) {
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		p.Run(ctx)
	}); err != nil {
		return nil, err
	}
	scheduler.Start()
	return scheduler, nil
}

// Run settles every ended election once. Elections are independent: a
// failure in one is logged and the loop moves on, and each settlement
// step is idempotent so the next tick retries whatever is left.
func (p *ElectionEndProcessor) Run(ctx context.Context) {
	ended, err := p.elections.ListEnded(ctx)
	if err != nil {
		log.Printf("election-end: list ended elections: %v", err)
		return
	}
	for _, cfg := range ended {
		if err := p.settle(cfg); err != nil {
			log.Printf("election-end: election %d: %v", cfg.ID, err)
		}
	}
}

func (p *ElectionEndProcessor) settle(cfg *election.Config) error {
	if cfg.IsLotterized && cfg.Lottery != nil {
		_, err := p.lottery.SelectWinners(cfg.ID, cfg.Lottery)
		switch {
		case errors.Is(err, lottery.ErrDrawAlreadyCompleted):
			// Settled on a previous tick.
		case errors.Is(err, lottery.ErrNoTickets):
			log.Printf("election-end: election %d ended with no participants", cfg.ID)
		case err != nil:
			return err
		}
	}
	if !cfg.IsFree {
		summary, err := p.wallet.ReleaseBlockedAccounts(cfg.ID, cfg.CreatorUserID)
		if err != nil {
			return err
		}
		if summary.ParticipantCount > 0 {
			log.Printf("election-end: election %d released %.2f to creator %s (%d participants, %.2f platform fee)",
				cfg.ID, summary.CreatorAmount, cfg.CreatorUserID, summary.ParticipantCount, summary.PlatformFee)
		}
	}
	return nil
}
