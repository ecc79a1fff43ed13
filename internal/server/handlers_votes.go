package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"vottery/internal/audit"
	"vottery/internal/ledger"
)

type electionURI struct {
	ElectionID int `uri:"electionID" binding:"required,min=1"`
}

type castVoteRequest struct {
	ElectionID        int            `json:"electionId" binding:"required,min=1"`
	Answers           ledger.Answers `json:"answers" binding:"required"`
	VideoWatchPercent float64        `json:"videoWatchPercent"`
}

var castVoteMessages = bindMessages{
	"ElectionID": {"required": "electionId is required", "min": "electionId must be positive"},
	"Answers":    {"required": "answers are required"},
}

func (s *Server) handleCastVote(c *gin.Context) {
	userID := currentUser(c)
	var req castVoteRequest
	if !bindJSON(c, &req, castVoteMessages, "invalid vote payload") {
		return
	}
	if err := ledger.ValidateAnswers(req.Answers); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := s.elections.Get(c.Request.Context(), req.ElectionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	reasons, err := s.ledger.ValidateEligibility(userID, cfg)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if cfg.VideoRequired && req.VideoWatchPercent < float64(s.cfg.VideoCompletionPercent) {
		reasons = append(reasons, fmt.Sprintf("You must watch at least %d%% of the campaign video", s.cfg.VideoCompletionPercent))
	}
	if len(reasons) > 0 {
		s.audit.LogFailedVoteAttempt(userID, req.ElectionID, c.ClientIP(), c.Request.UserAgent(),
			reasons[0], len(req.Answers) > 0)
		c.JSON(http.StatusForbidden, gin.H{"error": "not eligible to vote", "reasons": reasons})
		return
	}

	receipt, err := s.ledger.CastVote(userID, req.ElectionID, req.Answers, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response := gin.H{"receipt": receipt}
	if cfg.IsLotterized {
		// The vote stands even if the ticket insert fails; a missing
		// ticket is recoverable, a lost vote is not.
		ticket, err := s.lottery.CreateTicket(userID, req.ElectionID, receipt.VotingID)
		if err != nil {
			log.Printf("lottery ticket for voting_id=%s: %v", receipt.VotingID, err)
		} else {
			eid := req.ElectionID
			s.audit.Log(audit.Entry{
				ActionType: audit.ActionLotteryTicketCreated,
				UserID:     userID,
				ElectionID: &eid,
				Details:    map[string]any{"ticketNumber": ticket.TicketNumber},
			})
			response["lotteryTicket"] = gin.H{
				"ticketNumber": ticket.TicketNumber,
				"ballNumber":   ticket.BallNumber,
			}
		}
	}
	c.JSON(http.StatusCreated, response)
}

type editVoteRequest struct {
	Answers ledger.Answers `json:"answers" binding:"required"`
}

func (s *Server) handleEditVote(c *gin.Context) {
	userID := currentUser(c)
	var uri electionURI
	if !bindURI(c, &uri) {
		return
	}
	var req editVoteRequest
	if !bindJSON(c, &req, bindMessages{"Answers": {"required": "answers are required"}}, "invalid vote payload") {
		return
	}
	if err := ledger.ValidateAnswers(req.Answers); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := s.elections.Get(c.Request.Context(), uri.ElectionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !cfg.VoteEditingAllowed {
		writeServiceError(c, ledger.ErrEditingNotAllowed)
		return
	}
	reasons := []string{}
	if !cfg.Active() {
		reasons = append(reasons, fmt.Sprintf("Election is %s", cfg.Status))
	}
	if len(reasons) > 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "vote can no longer be edited", "reasons": reasons})
		return
	}

	receipt, err := s.ledger.EditVote(userID, uri.ElectionID, req.Answers, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}

func (s *Server) handleMyVote(c *gin.Context) {
	var uri electionURI
	if !bindURI(c, &uri) {
		return
	}
	view, err := s.ledger.GetUserVote(currentUser(c), uri.ElectionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if view == nil {
		c.JSON(http.StatusOK, gin.H{"hasVoted": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hasVoted": true, "vote": view})
}

func (s *Server) handleVotingHistory(c *gin.Context) {
	page, perPage := parsePagination(c)
	history, err := s.ledger.VotingHistory(currentUser(c), page, perPage)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

type verifyReceiptRequest struct {
	ReceiptID string `json:"receiptId" binding:"required,uuid"`
}

// handleVerifyReceipt is deliberately unauthenticated: anyone holding a
// receipt can confirm their vote is counted without revealing who they
// are to this endpoint.
func (s *Server) handleVerifyReceipt(c *gin.Context) {
	var req verifyReceiptRequest
	if !bindJSON(c, &req, bindMessages{
		"ReceiptID": {"required": "receiptId is required", "uuid": "receiptId must be a UUID"},
	}, "invalid receipt payload") {
		return
	}
	verification, err := s.ledger.VerifyReceipt(req.ReceiptID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if verification == nil {
		c.JSON(http.StatusNotFound, gin.H{"verified": false, "error": "receipt not found"})
		return
	}
	c.JSON(http.StatusOK, verification)
}

func (s *Server) handleElectionResults(c *gin.Context) {
	var uri electionURI
	if !bindURI(c, &uri) {
		return
	}
	results, err := s.ledger.ElectionResults(uri.ElectionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}
