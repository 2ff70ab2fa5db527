package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/Ejimurphy/task-earnings-bot/internal/auth"
	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
	"github.com/Ejimurphy/task-earnings-bot/internal/service"
)

// HandleSessionProgress handles GET /api/sessions/:id. Only the session owner may read it.
func (h *Handler) HandleSessionProgress(c *gin.Context) {
	userID, _ := auth.GetUserIDFromContext(c.Request.Context())
	sessionID := c.Param("id")

	owner, err := h.tasks.SessionOwner(c.Request.Context(), sessionID)
	if err != nil {
		respondWithError(c, userID, "session_progress_error", err)
		return
	}
	if owner != userID {
		// Reported as missing so session IDs of other users cannot be enumerated.
		respondWithError(c, userID, "session_progress_forbidden", service.ErrSessionNotFound)
		return
	}

	progress, err := h.tasks.Progress(c.Request.Context(), sessionID)
	if err != nil {
		respondWithError(c, userID, "session_progress_error", err)
		return
	}

	logger.Debug(userID, "session_progress_success", fmt.Sprintf("session_id=%s count=%d", sessionID, progress.Count))
	c.JSON(200, progress)
}
