package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ejimurphy/task-earnings-bot/internal/auth"
	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
)

// UserResponse is the response for the /api/me endpoint
type UserResponse struct {
	TelegramID     int64  `json:"telegram_id"`
	Username       string `json:"username"`
	FirstName      string `json:"first_name"`
	Coins          int64  `json:"coins"`
	BalanceDisplay string `json:"balance_display"`
	HasBank        bool   `json:"has_bank"`
	Referrals      int64  `json:"referrals"`
	MinWithdrawal  int64  `json:"min_withdrawal"`
	TasksEnabled   bool   `json:"tasks_enabled"`
}

// HandleMe handles the GET /api/me endpoint
func (h *Handler) HandleMe(c *gin.Context) {
	telegramID, ok := auth.GetUserIDFromContext(c.Request.Context())
	if !ok {
		logger.Debug(0, "me_unauthorized", "path="+c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	wallet, err := h.accounts.Wallet(c.Request.Context(), telegramID)
	if err != nil {
		respondWithError(c, telegramID, "me_error", err)
		return
	}

	response := UserResponse{
		TelegramID:     wallet.User.TelegramID,
		Username:       wallet.User.Username,
		FirstName:      wallet.User.FirstName,
		Coins:          wallet.Coins,
		BalanceDisplay: wallet.Rules.FormatAmount(wallet.Amount),
		HasBank:        !wallet.User.Bank.IsZero(),
		Referrals:      wallet.Referrals,
		MinWithdrawal:  wallet.Rules.MinWithdrawal,
		TasksEnabled:   wallet.Rules.TasksEnabled,
	}

	logger.Debug(telegramID, "me_success", fmt.Sprintf("coins=%d", wallet.Coins))
	c.JSON(http.StatusOK, response)
}
