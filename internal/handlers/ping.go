package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PingResponse is the response for the ping endpoint
type PingResponse struct {
	Status string `json:"status"`
}

// PingHandler handles the /healthz and /api/ping endpoints
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, PingResponse{Status: "ok"})
}
