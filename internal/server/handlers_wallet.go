package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"vottery/internal/audit"
	"vottery/internal/wallet"
)

func (s *Server) handleWalletBalance(c *gin.Context) {
	w, err := s.wallet.GetOrCreateWallet(currentUser(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance":        w.Balance,
		"blockedBalance": w.BlockedBalance,
		"currency":       w.Currency,
	})
}

type depositRequest struct {
	Amount          float64 `json:"amount" binding:"required,gt=0"`
	PaymentIntentID string  `json:"paymentIntentId" binding:"required"`
}

func (s *Server) handleDeposit(c *gin.Context) {
	var req depositRequest
	if !bindJSON(c, &req, bindMessages{
		"Amount":          {"required": "amount is required", "gt": "amount must be positive"},
		"PaymentIntentID": {"required": "paymentIntentId is required"},
	}, "invalid deposit payload") {
		return
	}
	record, err := s.wallet.ProcessDeposit(currentUser(c), req.Amount, req.PaymentIntentID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": record})
}

type withdrawRequest struct {
	Amount         float64        `json:"amount" binding:"required,gt=0"`
	PaymentMethod  string         `json:"paymentMethod" binding:"required,oneof=bank_transfer paypal stripe"`
	PaymentDetails map[string]any `json:"paymentDetails"`
}

func (s *Server) handleWithdraw(c *gin.Context) {
	userID := currentUser(c)
	var req withdrawRequest
	if !bindJSON(c, &req, bindMessages{
		"Amount":        {"required": "amount is required", "gt": "amount must be positive"},
		"PaymentMethod": {"required": "paymentMethod is required", "oneof": "unsupported payment method"},
	}, "invalid withdrawal payload") {
		return
	}
	request, err := s.wallet.RequestWithdrawal(userID, req.Amount, req.PaymentMethod, req.PaymentDetails)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	s.audit.Log(audit.Entry{
		ActionType: audit.ActionWithdrawalRequested,
		UserID:     userID,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		Details:    map[string]any{"amount": req.Amount, "status": request.Status},
	})
	c.JSON(http.StatusCreated, gin.H{"request": request})
}

type withdrawalURI struct {
	RequestID uint `uri:"requestID" binding:"required,min=1"`
}

type withdrawalReviewRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleApproveWithdrawal(c *gin.Context) {
	var uri withdrawalURI
	if !bindURI(c, &uri) {
		return
	}
	var req withdrawalReviewRequest
	if !bindJSON(c, &req, nil, "invalid review payload") {
		return
	}
	request, err := s.wallet.ApproveWithdrawal(uri.RequestID, currentUser(c), req.Notes)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": request})
}

func (s *Server) handleRejectWithdrawal(c *gin.Context) {
	var uri withdrawalURI
	if !bindURI(c, &uri) {
		return
	}
	var req withdrawalReviewRequest
	if !bindJSON(c, &req, nil, "invalid review payload") {
		return
	}
	request, err := s.wallet.RejectWithdrawal(uri.RequestID, currentUser(c), req.Notes)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": request})
}

func (s *Server) handleListWithdrawals(c *gin.Context) {
	page, perPage := parsePagination(c)
	requests, total, err := s.wallet.WithdrawalRequests(c.Query("status"), page, perPage)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"requests":   requests,
		"pagination": buildPageInfo(page, perPage, total),
	})
}

func (s *Server) handleTransactions(c *gin.Context) {
	page, perPage := parsePagination(c)
	filter := wallet.TransactionFilter{
		Type:   c.Query("type"),
		Status: c.Query("status"),
	}
	if raw := c.Query("election_id"); raw != "" {
		if id, err := strconv.Atoi(raw); err == nil {
			filter.ElectionID = id
		}
	}
	if raw := c.Query("from"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.From = ts
		}
	}
	if raw := c.Query("to"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.To = ts
		}
	}
	transactions, total, err := s.wallet.Transactions(currentUser(c), filter, page, perPage)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": transactions,
		"pagination":   buildPageInfo(page, perPage, total),
	})
}

type paymentConfirmedRequest struct {
	ElectionID  int     `json:"electionId" binding:"required,min=1"`
	Amount      float64 `json:"amount" binding:"required,gt=0"`
	PlatformFee float64 `json:"platformFee" binding:"gte=0"`
}

// handlePaymentConfirmed escrows a confirmed vote payment until the
// election settles one way or the other.
func (s *Server) handlePaymentConfirmed(c *gin.Context) {
	userID := currentUser(c)
	var req paymentConfirmedRequest
	if !bindJSON(c, &req, bindMessages{
		"ElectionID": {"required": "electionId is required", "min": "electionId must be positive"},
		"Amount":     {"required": "amount is required", "gt": "amount must be positive"},
	}, "invalid payment payload") {
		return
	}
	cfg, err := s.elections.Get(c.Request.Context(), req.ElectionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	account, err := s.wallet.CreateBlockedAccount(userID, req.ElectionID, req.Amount, req.PlatformFee, cfg.EndDate)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	eid := req.ElectionID
	s.audit.Log(audit.Entry{
		ActionType: audit.ActionPaymentCompleted,
		UserID:     userID,
		ElectionID: &eid,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		Details:    map[string]any{"amount": req.Amount, "platformFee": req.PlatformFee},
	})
	c.JSON(http.StatusCreated, gin.H{"blockedAccount": account})
}
