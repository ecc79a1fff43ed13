package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vottery/internal/election"
	"vottery/internal/ledger"
	"vottery/internal/lottery"
	"vottery/internal/wallet"
)

const userIDHeader = "X-User-Id"

// requireUser rejects requests without a gateway-supplied identity and
// stashes it on the context for handlers.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(userIDHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString("userID")
}

// writeServiceError maps domain sentinel errors onto HTTP statuses;
// anything unmapped is a 500 with a generic body so internals never
// leak to clients.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrAlreadyVoted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrVoteNotFound),
		errors.Is(err, lottery.ErrWinnerNotFound),
		errors.Is(err, wallet.ErrRequestNotFound),
		errors.Is(err, election.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, lottery.ErrDrawAlreadyCompleted),
		errors.Is(err, lottery.ErrAlreadyClaimed),
		errors.Is(err, wallet.ErrRequestNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrEditingNotAllowed),
		errors.Is(err, lottery.ErrNoTickets),
		errors.Is(err, wallet.ErrInsufficientBalance),
		errors.Is(err, wallet.ErrBelowMinimum),
		errors.Is(err, wallet.ErrInvalidAmount):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
