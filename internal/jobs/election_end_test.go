package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vottery/internal/db"
	"vottery/internal/election"
	"vottery/internal/lottery"
	"vottery/internal/wallet"
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

func endedElectionsStub(t *testing.T, elections []map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/elections/ended" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"elections": elections},
		})
	}))
}

func TestRunSettlesEndedElections(t *testing.T) {
	conn := newTestDB(t)
	lotterySvc := lottery.NewService(conn, 100)
	walletSvc := wallet.NewService(conn, "USD", 10, 100)

	// A paid, lotterized election that just ended: three voters with
	// tickets and escrowed payments.
	lockedUntil := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		userID := fmt.Sprintf("voter-%d", i)
		if _, err := lotterySvc.CreateTicket(userID, 80, fmt.Sprintf("vid-%d", i)); err != nil {
			t.Fatalf("ticket: %v", err)
		}
		if _, err := walletSvc.CreateBlockedAccount(userID, 80, 10, 1, lockedUntil); err != nil {
			t.Fatalf("escrow: %v", err)
		}
	}

	stub := endedElectionsStub(t, []map[string]any{{
		"id":              80,
		"status":          "completed",
		"creator_user_id": "creator-1",
		"start_date":      time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339),
		"end_date":        time.Now().UTC().Add(-time.Hour).Format(time.RFC3339),
		"is_free":         false,
		"is_lotterized":   true,
		"lottery_config": map[string]any{
			"winner_count":  1,
			"reward_amount": 20,
			"reward_type":   "monetary",
		},
	}})
	defer stub.Close()

	processor := NewElectionEndProcessor(election.NewClient(stub.URL), lotterySvc, walletSvc)
	processor.Run(context.Background())

	var draws int64
	if err := conn.Model(&db.LotteryDraw{}).Where("election_id = ?", 80).Count(&draws).Error; err != nil {
		t.Fatalf("count draws: %v", err)
	}
	if draws != 1 {
		t.Fatalf("draws = %d, want 1", draws)
	}

	var creator db.UserWallet
	if err := conn.Where("user_id = ?", "creator-1").First(&creator).Error; err != nil {
		t.Fatalf("creator wallet: %v", err)
	}
	if creator.Balance != 27 {
		t.Fatalf("creator balance = %.2f, want 27", creator.Balance)
	}

	// A second tick is a no-op: the draw constraint and the locked-only
	// escrow filter both short-circuit.
	processor.Run(context.Background())

	if err := conn.Where("user_id = ?", "creator-1").First(&creator).Error; err != nil {
		t.Fatalf("creator wallet: %v", err)
	}
	if creator.Balance != 27 {
		t.Fatalf("creator balance after rerun = %.2f, want 27", creator.Balance)
	}
	if err := conn.Model(&db.LotteryDraw{}).Where("election_id = ?", 80).Count(&draws).Error; err != nil {
		t.Fatalf("count draws: %v", err)
	}
	if draws != 1 {
		t.Fatalf("draws after rerun = %d, want 1", draws)
	}
}
