package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vottery/internal/lottery"
)

// handleElectionEnd settles an election on demand instead of waiting for
// the hourly job: lottery draw first, then escrow release. Both steps
// are idempotent, so a retry after a partial failure finishes the rest.
// Settlement only runs once the end date has passed.
func (s *Server) handleElectionEnd(c *gin.Context) {
	var uri electionURI
	if !bindURI(c, &uri) {
		return
	}
	cfg, err := s.elections.Get(c.Request.Context(), uri.ElectionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !cfg.Ended(time.Now()) {
		c.JSON(http.StatusConflict, gin.H{"error": "election has not ended yet"})
		return
	}

	response := gin.H{"electionId": uri.ElectionID}
	if cfg.IsLotterized && cfg.Lottery != nil {
		result, err := s.lottery.SelectWinners(uri.ElectionID, cfg.Lottery)
		switch {
		case errors.Is(err, lottery.ErrDrawAlreadyCompleted):
			response["lottery"] = gin.H{"alreadyDrawn": true}
		case errors.Is(err, lottery.ErrNoTickets):
			response["lottery"] = gin.H{"participants": 0}
		case err != nil:
			writeServiceError(c, err)
			return
		default:
			response["lottery"] = result
		}
	}
	if !cfg.IsFree {
		summary, err := s.wallet.ReleaseBlockedAccounts(uri.ElectionID, cfg.CreatorUserID)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		response["escrow"] = summary
	}
	c.JSON(http.StatusOK, response)
}

// handleElectionCancel refunds every escrowed payment for a cancelled
// election. No lottery is drawn for a cancelled election.
func (s *Server) handleElectionCancel(c *gin.Context) {
	var uri electionURI
	if !bindURI(c, &uri) {
		return
	}
	summary, err := s.wallet.RefundBlockedAccounts(uri.ElectionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"electionId": uri.ElectionID, "refund": summary})
}
