// Package server exposes the voting backend over HTTP. Identity arrives
// from the gateway in the X-User-Id header; this service trusts it and
// enforces everything else (eligibility, one vote, escrow state) itself.
package server

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"vottery/internal/audit"
	"vottery/internal/config"
	"vottery/internal/election"
	"vottery/internal/ledger"
	"vottery/internal/lottery"
	"vottery/internal/wallet"
)

type Server struct {
	db        *gorm.DB
	cfg       config.Config
	elections *election.Client
	ledger    *ledger.Service
	lottery   *lottery.Service
	wallet    *wallet.Service
	audit     *audit.Recorder
}

func New(conn *gorm.DB, cfg config.Config, elections *election.Client,
	ledgerSvc *ledger.Service, lotterySvc *lottery.Service,
	walletSvc *wallet.Service, recorder *audit.Recorder) *Server {
	return &Server{
		db:        conn,
		cfg:       cfg,
		elections: elections,
		ledger:    ledgerSvc,
		lottery:   lotterySvc,
		wallet:    walletSvc,
		audit:     recorder,
	}
}

// Routes builds the gin engine with all API routes registered.
func (s *Server) Routes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())

	api := engine.Group("/api")

	votes := api.Group("/votes", requireUser())
	votes.POST("", s.handleCastVote)
	votes.GET("/history", s.handleVotingHistory)
	api.POST("/votes/verify", s.handleVerifyReceipt)

	elections := api.Group("/elections")
	elections.PUT("/:electionID/vote", requireUser(), s.handleEditVote)
	elections.GET("/:electionID/my-vote", requireUser(), s.handleMyVote)
	elections.GET("/:electionID/results", s.handleElectionResults)
	elections.GET("/:electionID/hash-chain", s.handleHashChain)
	elections.GET("/:electionID/bulletin-board", s.handleBulletinBoard)
	elections.GET("/:electionID/audit-trail", s.handleElectionAuditTrail)
	elections.GET("/:electionID/audit-stats", s.handleAuditStats)
	elections.POST("/:electionID/end", s.handleElectionEnd)
	elections.POST("/:electionID/cancel", s.handleElectionCancel)

	lotteryRoutes := api.Group("/elections/:electionID/lottery")
	lotteryRoutes.POST("/draw", s.handleLotteryDraw)
	lotteryRoutes.POST("/claim", requireUser(), s.handleClaimPrize)
	lotteryRoutes.GET("/winners", s.handleLotteryWinners)
	lotteryRoutes.GET("/stats", s.handleLotteryStats)
	api.GET("/lottery/tickets", requireUser(), s.handleUserTickets)

	walletRoutes := api.Group("/wallet", requireUser())
	walletRoutes.GET("/balance", s.handleWalletBalance)
	walletRoutes.POST("/deposit", s.handleDeposit)
	walletRoutes.POST("/withdraw", s.handleWithdraw)
	walletRoutes.GET("/transactions", s.handleTransactions)
	api.GET("/wallet/withdrawals", requireUser(), s.handleListWithdrawals)
	api.POST("/wallet/withdrawals/:requestID/approve", requireUser(), s.handleApproveWithdrawal)
	api.POST("/wallet/withdrawals/:requestID/reject", requireUser(), s.handleRejectWithdrawal)
	api.POST("/payments/confirmed", requireUser(), s.handlePaymentConfirmed)

	users := api.Group("/users")
	users.GET("/:userID/audit-trail", s.handleUserAuditTrail)
	users.GET("/:userID/fraud-check", s.handleFraudCheck)

	return engine
}
