package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleLotteryDraw triggers the draw explicitly, ahead of the hourly
// settlement job. The draw-exists constraint makes the two paths safe
// to race. Drawing is refused while voting is still open: a premature
// draw would lock the election out of its real draw and void every
// ticket issued afterwards.
func (s *Server) handleLotteryDraw(c *gin.Context) {
	var uri electionURI
	if !bindURI(c, &uri) {
		return
	}
	cfg, err := s.elections.Get(c.Request.Context(), uri.ElectionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !cfg.IsLotterized || cfg.Lottery == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "election has no lottery"})
		return
	}
	if !cfg.Ended(time.Now()) {
		c.JSON(http.StatusConflict, gin.H{"error": "election has not ended yet"})
		return
	}
	result, err := s.lottery.SelectWinners(uri.ElectionID, cfg.Lottery)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) handleClaimPrize(c *gin.Context) {
	var uri electionURI
	if !bindURI(c, &uri) {
		return
	}
	winner, err := s.lottery.ClaimPrize(currentUser(c), uri.ElectionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rank":        winner.Rank,
		"prizeAmount": winner.PrizeAmount,
		"prizeType":   winner.PrizeType,
		"claimedAt":   winner.ClaimedAt,
	})
}

func (s *Server) handleLotteryWinners(c *gin.Context) {
	var uri electionURI
	if !bindURI(c, &uri) {
		return
	}
	winners, err := s.lottery.ElectionWinners(uri.ElectionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	draw, err := s.lottery.ElectionDraw(uri.ElectionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"draw": draw, "winners": winners})
}

func (s *Server) handleLotteryStats(c *gin.Context) {
	var uri electionURI
	if !bindURI(c, &uri) {
		return
	}
	stats, err := s.lottery.ElectionStatistics(uri.ElectionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleUserTickets(c *gin.Context) {
	page, perPage := parsePagination(c)
	tickets, total, err := s.lottery.UserTickets(currentUser(c), page, perPage)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets":    tickets,
		"pagination": buildPageInfo(page, perPage, total),
	})
}
