package main

import (
	"log"
	"os"
	"time"

	"vottery/internal/audit"
	"vottery/internal/config"
	"vottery/internal/cryptoutil"
	"vottery/internal/db"
	"vottery/internal/election"
	"vottery/internal/jobs"
	"vottery/internal/ledger"
	"vottery/internal/lottery"
	"vottery/internal/server"
	"vottery/internal/wallet"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()

	crypto, err := cryptoutil.New(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("encryption key: %v", err)
	}

	conn, err := db.Open()
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := db.ConfigurePool(conn, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns,
		cfg.DBConnMaxLifetimeSeconds, cfg.DBConnMaxIdleTimeSeconds); err != nil {
		log.Fatalf("database pool setup failed: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	elections := election.NewClient(cfg.ElectionServiceURL)
	rules := audit.Rules{
		RapidVoteWindow: time.Duration(cfg.RapidVoteWindowMinutes) * time.Minute,
		RapidVoteLimit:  cfg.RapidVoteLimit,
		IPHopWindow:     time.Duration(cfg.IPHopWindowMinutes) * time.Minute,
		IPHopLimit:      cfg.IPHopLimit,
	}
	recorder := audit.NewRecorder(conn, rules)
	ledgerSvc := ledger.NewService(conn, crypto)
	lotterySvc := lottery.NewService(conn, cfg.AutoApproveThreshold)
	walletSvc := wallet.NewService(conn, cfg.Currency, cfg.MinimumWithdrawal, cfg.AutoApproveThreshold)

	processor := jobs.NewElectionEndProcessor(elections, lotterySvc, walletSvc)
	scheduler, err := processor.Start()
	if err != nil {
		log.Fatalf("scheduler setup failed: %v", err)
	}
	defer scheduler.Stop()

	addr := ":3006"
	if env := os.Getenv("PORT"); env != "" {
		addr = ":" + env
	}

	srv := server.New(conn, cfg, elections, ledgerSvc, lotterySvc, walletSvc, recorder)
	log.Printf("vottery server listening on %s", addr)
	if err := srv.Routes().Run(addr); err != nil {
		log.Fatal(err)
	}
}
