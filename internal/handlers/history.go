package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Ejimurphy/task-earnings-bot/internal/auth"
	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
	"github.com/Ejimurphy/task-earnings-bot/internal/storage"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryResponse is the response for the /api/me/history endpoint
type HistoryResponse struct {
	Transactions []storage.Transaction `json:"transactions"`
	Withdrawals  []*storage.Withdrawal `json:"withdrawals"`
}

// HandleHistory handles the GET /api/me/history endpoint
func (h *Handler) HandleHistory(c *gin.Context) {
	telegramID, ok := auth.GetUserIDFromContext(c.Request.Context())
	if !ok {
		logger.Debug(0, "history_unauthorized", "path="+c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		if n > maxHistoryLimit {
			n = maxHistoryLimit
		}
		limit = n
	}

	transactions, err := h.accounts.History(c.Request.Context(), telegramID, limit)
	if err != nil {
		respondWithError(c, telegramID, "history_error", err)
		return
	}
	withdrawals, err := h.withdrawals.History(c.Request.Context(), telegramID, limit)
	if err != nil {
		respondWithError(c, telegramID, "history_error", err)
		return
	}

	if transactions == nil {
		transactions = []storage.Transaction{}
	}
	if withdrawals == nil {
		withdrawals = []*storage.Withdrawal{}
	}

	logger.Debug(telegramID, "history_success", fmt.Sprintf("transactions=%d withdrawals=%d", len(transactions), len(withdrawals)))
	c.JSON(http.StatusOK, HistoryResponse{Transactions: transactions, Withdrawals: withdrawals})
}
