package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
	"github.com/Ejimurphy/task-earnings-bot/internal/service"
)

var (
	sessionKeys = []string{"session_id", "sessionId", "ymid"}
	eventKeys   = []string{"event_id", "eventId"}
	adIndexKeys = []string{"ad_index", "adIndex"}
)

// PostbackResponse acknowledges an ad-network postback
type PostbackResponse struct {
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Count     int    `json:"count"`
	Required  int    `json:"required"`
	Completed bool   `json:"completed"`
}

// postbackFields collects parameters from a JSON body, a form body and the query string
type postbackFields map[string]string

func readPostbackFields(c *gin.Context) (postbackFields, error) {
	fields := postbackFields{}
	if c.Request.Method == http.MethodPost && strings.HasPrefix(c.ContentType(), "application/json") {
		var body map[string]interface{}
		if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		for k, v := range body {
			switch val := v.(type) {
			case string:
				fields[k] = val
			case float64:
				fields[k] = strconv.FormatFloat(val, 'f', -1, 64)
			}
		}
	} else if c.Request.Method == http.MethodPost {
		if err := c.Request.ParseForm(); err != nil {
			return nil, fmt.Errorf("invalid form body: %w", err)
		}
		for k := range c.Request.PostForm {
			fields[k] = c.Request.PostForm.Get(k)
		}
	}
	for k, v := range c.Request.URL.Query() {
		if _, ok := fields[k]; !ok && len(v) > 0 {
			fields[k] = v[0]
		}
	}
	return fields, nil
}

func (f postbackFields) first(keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(f[k]); v != "" {
			return v
		}
	}
	return ""
}

// HandlePostback handles GET|POST /postback/monetag. It acknowledges with 200
// for recorded, duplicate, unknown and settled sessions and only returns 500
// on storage failures so the network retries them.
func (h *Handler) HandlePostback(c *gin.Context) {
	fields, err := readPostbackFields(c)
	if err != nil {
		logger.Debug(0, "postback_bad_request", "error="+err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionID := fields.first(sessionKeys)
	if sessionID == "" {
		logger.Debug(0, "postback_missing_session", "")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing session_id"})
		return
	}
	eventID := fields.first(eventKeys)

	var adIndex *int
	if raw := fields.first(adIndexKeys); raw != "" {
		if idx, err := strconv.Atoi(raw); err == nil && idx >= 0 {
			adIndex = &idx
		} else {
			logger.Debug(0, "postback_bad_ad_index", fmt.Sprintf("session_id=%s ad_index=%q", sessionID, raw))
		}
	}

	progress, settlement, err := h.tasks.Ingest(c.Request.Context(), sessionID, adIndex, eventID)
	resp := PostbackResponse{
		Count:     progress.Count,
		Required:  h.tasks.RequiredViews(),
		Completed: progress.Completed,
	}

	switch {
	case err == nil && progress.Duplicate:
		resp.Status = "duplicate"
	case err == nil:
		resp.Status = "recorded"
	case errors.Is(err, service.ErrSessionNotFound):
		logger.Debug(0, "postback_unknown_session", fmt.Sprintf("session_id=%s event_id=%s", sessionID, eventID))
		resp.Status, resp.Reason = "ignored", errorCode(err)
	case service.IsExpected(err):
		logger.Debug(0, "postback_ignored", fmt.Sprintf("session_id=%s reason=%s", sessionID, errorCode(err)))
		resp.Status, resp.Reason = "ignored", errorCode(err)
	default:
		logger.Error(0, "postback_failed", fmt.Errorf("session_id=%s: %w", sessionID, err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "temporary failure, retry later"})
		return
	}

	if settlement != nil {
		resp.Status = "settled"
	}
	c.JSON(http.StatusOK, resp)
}
