package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"vottery/internal/audit"
)

func (s *Server) handleHashChain(c *gin.Context) {
	var uri electionURI
	if !bindURI(c, &uri) {
		return
	}
	chain, err := s.audit.BuildHashChain(uri.ElectionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, chain)
}

func (s *Server) handleBulletinBoard(c *gin.Context) {
	var uri electionURI
	if !bindURI(c, &uri) {
		return
	}
	board, err := s.audit.PublicBulletinBoard(uri.ElectionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

func (s *Server) handleElectionAuditTrail(c *gin.Context) {
	var uri electionURI
	if !bindURI(c, &uri) {
		return
	}
	page, perPage := parsePagination(c)
	trail, err := s.audit.ElectionTrail(uri.ElectionID, c.Query("action_type"), page, perPage)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, trail)
}

func (s *Server) handleAuditStats(c *gin.Context) {
	var uri electionURI
	if !bindURI(c, &uri) {
		return
	}
	stats, err := s.audit.Stats(uri.ElectionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"electionId": uri.ElectionID, "actionCounts": stats})
}

type userURI struct {
	UserID string `uri:"userID" binding:"required"`
}

func (s *Server) handleUserAuditTrail(c *gin.Context) {
	var uri userURI
	if !bindURI(c, &uri) {
		return
	}
	page, perPage := parsePagination(c)
	trail, err := s.audit.UserTrail(uri.UserID, page, perPage)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, trail)
}

func (s *Server) handleFraudCheck(c *gin.Context) {
	var uri userURI
	if !bindURI(c, &uri) {
		return
	}
	electionID, err := strconv.Atoi(c.Query("election_id"))
	if err != nil || electionID < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "election_id is required"})
		return
	}
	findings, err := s.audit.DetectFraudPatterns(uri.UserID, electionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if len(findings) > 0 {
		eid := electionID
		s.audit.Log(audit.Entry{
			ActionType: audit.ActionFraudPatternDetected,
			UserID:     uri.UserID,
			ElectionID: &eid,
			Severity:   "warning",
			Details:    map[string]any{"findings": findings},
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":     uri.UserID,
		"electionId": electionID,
		"suspicious": len(findings) > 0,
		"findings":   findings,
	})
}
