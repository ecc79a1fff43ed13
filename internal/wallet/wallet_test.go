package wallet

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vottery/internal/db"
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
	return NewService(conn, "USD", 10, 100), conn
}

func balanceOf(t *testing.T, conn *gorm.DB, userID string) db.UserWallet {
	t.Helper()
	var wallet db.UserWallet
	if err := conn.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		t.Fatalf("wallet for %s: %v", userID, err)
	}
	return wallet
}

func TestDepositCreditsBalance(t *testing.T) {
	svc, conn := newTestService(t)

	record, err := svc.ProcessDeposit("user-1", 40, "pi_123")
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if record.Status != db.TransactionStatusSuccess || record.PaymentIntentID != "pi_123" {
		t.Fatalf("deposit transaction = %+v", record)
	}
	if got := balanceOf(t, conn, "user-1").Balance; got != 40 {
		t.Fatalf("balance = %.2f, want 40", got)
	}

	if _, err := svc.ProcessDeposit("user-1", -5, "pi_bad"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative deposit error = %v, want ErrInvalidAmount", err)
	}
}

func TestEscrowReleaseConservesMoney(t *testing.T) {
	svc, conn := newTestService(t)
	lockedUntil := time.Now().UTC().Add(24 * time.Hour)

	// Three voters pay $10 each with a $1 platform fee.
	for i := 0; i < 3; i++ {
		userID := fmt.Sprintf("voter-%d", i)
		if _, err := svc.CreateBlockedAccount(userID, 70, 10, 1, lockedUntil); err != nil {
			t.Fatalf("escrow for %s: %v", userID, err)
		}
		if got := balanceOf(t, conn, userID).BlockedBalance; got != 10 {
			t.Fatalf("%s blocked balance = %.2f, want 10", userID, got)
		}
	}

	summary, err := svc.ReleaseBlockedAccounts(70, "creator-1")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if summary.ParticipantCount != 3 || summary.TotalAmount != 30 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.PlatformFee != 3 || summary.CreatorAmount != 27 {
		t.Fatalf("fee split = %+v", summary)
	}

	// Creator got the pool minus fees; voters' blocked balances cleared.
	if got := balanceOf(t, conn, "creator-1").Balance; got != 27 {
		t.Fatalf("creator balance = %.2f, want 27", got)
	}
	for i := 0; i < 3; i++ {
		wallet := balanceOf(t, conn, fmt.Sprintf("voter-%d", i))
		if wallet.BlockedBalance != 0 {
			t.Fatalf("voter %d blocked balance = %.2f after release", i, wallet.BlockedBalance)
		}
	}

	// Platform fee is booked against the platform ledger.
	var feeTx db.WalletTransaction
	if err := conn.Where("user_id = ? AND transaction_type = ?", db.PlatformUserID, db.TransactionPlatformFee).
		First(&feeTx).Error; err != nil {
		t.Fatalf("platform fee tx: %v", err)
	}
	if feeTx.Amount != 3 {
		t.Fatalf("platform fee = %.2f, want 3", feeTx.Amount)
	}

	// Money in equals money out.
	if math.Abs(summary.CreatorAmount+summary.PlatformFee-summary.TotalAmount) > 0.001 {
		t.Fatalf("conservation violated: %+v", summary)
	}

	// A second release pass finds nothing locked and credits nothing.
	again, err := svc.ReleaseBlockedAccounts(70, "creator-1")
	if err != nil {
		t.Fatalf("repeat release: %v", err)
	}
	if again.ParticipantCount != 0 {
		t.Fatalf("repeat release settled %d accounts", again.ParticipantCount)
	}
	if got := balanceOf(t, conn, "creator-1").Balance; got != 27 {
		t.Fatalf("creator balance after repeat = %.2f, want 27", got)
	}
}

func TestEscrowRefundOnCancellation(t *testing.T) {
	svc, conn := newTestService(t)
	lockedUntil := time.Now().UTC().Add(24 * time.Hour)

	for i := 0; i < 2; i++ {
		if _, err := svc.CreateBlockedAccount(fmt.Sprintf("voter-%d", i), 71, 15, 1.5, lockedUntil); err != nil {
			t.Fatalf("escrow: %v", err)
		}
	}

	summary, err := svc.RefundBlockedAccounts(71)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if summary.RefundedCount != 2 || summary.RefundedAmount != 30 {
		t.Fatalf("refund summary = %+v", summary)
	}

	for i := 0; i < 2; i++ {
		wallet := balanceOf(t, conn, fmt.Sprintf("voter-%d", i))
		// Full amount back, fee included; the platform keeps nothing on
		// a cancelled election.
		if wallet.Balance != 15 || wallet.BlockedBalance != 0 {
			t.Fatalf("voter %d wallet = %+v", i, wallet)
		}
	}

	var account db.BlockedAccount
	if err := conn.Where("election_id = ?", 71).First(&account).Error; err != nil {
		t.Fatalf("blocked account: %v", err)
	}
	if account.Status != db.BlockedStatusRefunded {
		t.Fatalf("account status = %q, want refunded", account.Status)
	}
}

func TestWithdrawalBelowMinimumOrBalance(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.RequestWithdrawal("user-1", 5, "paypal", nil); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("below-minimum error = %v, want ErrBelowMinimum", err)
	}
	if _, err := svc.RequestWithdrawal("user-1", 50, "paypal", nil); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("empty-wallet error = %v, want ErrInsufficientBalance", err)
	}
}

func TestSmallWithdrawalAutoApproves(t *testing.T) {
	svc, conn := newTestService(t)
	if _, err := svc.ProcessDeposit("user-1", 200, "pi_1"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	request, err := svc.RequestWithdrawal("user-1", 50, "paypal", map[string]any{"email": "u@example.com"})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if request.Status != db.WithdrawalStatusApproved || request.ApprovedBy != "auto" {
		t.Fatalf("small withdrawal = %+v, want auto-approved", request)
	}
	if got := balanceOf(t, conn, "user-1").Balance; got != 150 {
		t.Fatalf("balance = %.2f, want 150", got)
	}
}

func TestLargeWithdrawalNeedsReview(t *testing.T) {
	svc, conn := newTestService(t)
	if _, err := svc.ProcessDeposit("user-1", 500, "pi_1"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	request, err := svc.RequestWithdrawal("user-1", 300, "bank_transfer", nil)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if request.Status != db.WithdrawalStatusPending {
		t.Fatalf("large withdrawal status = %q, want pending", request.Status)
	}
	// Deducted up front, pending review.
	if got := balanceOf(t, conn, "user-1").Balance; got != 200 {
		t.Fatalf("balance = %.2f, want 200", got)
	}

	approved, err := svc.ApproveWithdrawal(request.ID, "admin-1", "verified")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != db.WithdrawalStatusApproved || approved.ApprovedBy != "admin-1" {
		t.Fatalf("approved request = %+v", approved)
	}
	if got := balanceOf(t, conn, "user-1").Balance; got != 200 {
		t.Fatalf("balance changed on approval: %.2f", got)
	}

	var tx db.WalletTransaction
	if err := conn.Where("user_id = ? AND transaction_type = ?", "user-1", db.TransactionWithdraw).
		First(&tx).Error; err != nil {
		t.Fatalf("withdraw tx: %v", err)
	}
	if tx.Status != db.TransactionStatusSuccess {
		t.Fatalf("withdraw tx status = %q, want success", tx.Status)
	}

	if _, err := svc.ApproveWithdrawal(request.ID, "admin-1", ""); !errors.Is(err, ErrRequestNotPending) {
		t.Fatalf("double approve error = %v, want ErrRequestNotPending", err)
	}
}

func TestRejectedWithdrawalRestoresBalance(t *testing.T) {
	svc, conn := newTestService(t)
	if _, err := svc.ProcessDeposit("user-1", 500, "pi_1"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	request, err := svc.RequestWithdrawal("user-1", 300, "bank_transfer", nil)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	rejected, err := svc.RejectWithdrawal(request.ID, "admin-1", "account mismatch")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != db.WithdrawalStatusRejected {
		t.Fatalf("rejected request = %+v", rejected)
	}
	if got := balanceOf(t, conn, "user-1").Balance; got != 500 {
		t.Fatalf("balance after reject = %.2f, want 500", got)
	}

	var tx db.WalletTransaction
	if err := conn.Where("user_id = ? AND transaction_type = ?", "user-1", db.TransactionWithdraw).
		First(&tx).Error; err != nil {
		t.Fatalf("withdraw tx: %v", err)
	}
	if tx.Status != db.TransactionStatusCancelled {
		t.Fatalf("withdraw tx status = %q, want cancelled", tx.Status)
	}

	// A second rejection finds no pending row to flip, so the balance
	// is restored exactly once.
	if _, err := svc.RejectWithdrawal(request.ID, "admin-2", ""); !errors.Is(err, ErrRequestNotPending) {
		t.Fatalf("double reject error = %v, want ErrRequestNotPending", err)
	}
	if got := balanceOf(t, conn, "user-1").Balance; got != 500 {
		t.Fatalf("balance after double reject = %.2f, want 500", got)
	}

	if _, err := svc.RejectWithdrawal(999, "admin-1", ""); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("missing request error = %v, want ErrRequestNotFound", err)
	}
}

func TestSameAmountWithdrawalsResolveIndependently(t *testing.T) {
	svc, conn := newTestService(t)
	if _, err := svc.ProcessDeposit("user-1", 700, "pi_1"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	first, err := svc.RequestWithdrawal("user-1", 300, "bank_transfer", nil)
	if err != nil {
		t.Fatalf("first withdraw: %v", err)
	}
	second, err := svc.RequestWithdrawal("user-1", 300, "paypal", nil)
	if err != nil {
		t.Fatalf("second withdraw: %v", err)
	}
	if first.TransactionID == 0 || first.TransactionID == second.TransactionID {
		t.Fatalf("transaction links = %d/%d, want distinct", first.TransactionID, second.TransactionID)
	}

	if _, err := svc.RejectWithdrawal(first.ID, "admin-1", "account mismatch"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// Only the rejected request's own transaction is cancelled.
	var cancelled db.WalletTransaction
	if err := conn.First(&cancelled, first.TransactionID).Error; err != nil {
		t.Fatalf("first tx: %v", err)
	}
	if cancelled.Status != db.TransactionStatusCancelled {
		t.Fatalf("first tx status = %q, want cancelled", cancelled.Status)
	}
	var pending db.WalletTransaction
	if err := conn.First(&pending, second.TransactionID).Error; err != nil {
		t.Fatalf("second tx: %v", err)
	}
	if pending.Status != db.TransactionStatusPending {
		t.Fatalf("second tx status = %q, want pending", pending.Status)
	}
	if got := balanceOf(t, conn, "user-1").Balance; got != 400 {
		t.Fatalf("balance = %.2f, want 400", got)
	}
}

func TestTransactionFilters(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.ProcessDeposit("user-1", 100, "pi_1"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.RequestWithdrawal("user-1", 20, "paypal", nil); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	all, total, err := svc.Transactions("user-1", TransactionFilter{}, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Fatalf("all transactions = %d/%d, want 2/2", total, len(all))
	}

	deposits, total, err := svc.Transactions("user-1", TransactionFilter{Type: db.TransactionDeposit}, 1, 10)
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if total != 1 || deposits[0].TransactionType != db.TransactionDeposit {
		t.Fatalf("deposit filter = %v", deposits)
	}

	none, total, err := svc.Transactions("user-1", TransactionFilter{From: time.Now().UTC().Add(time.Hour)}, 1, 10)
	if err != nil {
		t.Fatalf("dated list: %v", err)
	}
	if total != 0 || len(none) != 0 {
		t.Fatalf("future-dated filter returned %d rows", len(none))
	}
}
