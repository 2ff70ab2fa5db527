package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ejimurphy/task-earnings-bot/internal/auth"
	"github.com/Ejimurphy/task-earnings-bot/internal/config"
	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
	"github.com/Ejimurphy/task-earnings-bot/internal/service"
)

// Options wires the HTTP surface to the services
type Options struct {
	Tasks       *service.TaskService
	Accounts    *service.AccountService
	Withdrawals *service.WithdrawalService
	Validator   *auth.Validator

	PostbackSecret string
	MonetagZoneID  string
	MonetagSDKURL  string

	// Webhook receives Telegram updates when the bot runs in webhook mode
	Webhook http.Handler
}

// Handler serves the HTTP endpoints
type Handler struct {
	tasks       *service.TaskService
	accounts    *service.AccountService
	withdrawals *service.WithdrawalService
	zoneID      string
	sdkURL      string
}

// NewRouter builds the gin engine with every route mounted
func NewRouter(opts Options) *gin.Engine {
	h := &Handler{
		tasks:       opts.Tasks,
		accounts:    opts.Accounts,
		withdrawals: opts.Withdrawals,
		zoneID:      opts.MonetagZoneID,
		sdkURL:      opts.MonetagSDKURL,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", PingHandler)
	r.GET("/api/ping", PingHandler)

	postback := auth.PostbackSecret(opts.PostbackSecret)
	r.GET("/postback/monetag", postback, h.HandlePostback)
	r.POST("/postback/monetag", postback, h.HandlePostback)

	r.GET("/ad/:session", h.HandleAdViewer)

	api := r.Group("/api", opts.Validator.Middleware())
	api.GET("/sessions/:id", h.HandleSessionProgress)
	api.GET("/me", h.HandleMe)
	api.GET("/me/history", h.HandleHistory)

	if opts.Webhook != nil {
		r.POST(config.WebhookPath, gin.WrapH(opts.Webhook))
	}
	return r
}

// requestLogger logs one line per request in the shared key=value format
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		userID, _ := auth.GetUserIDFromContext(c.Request.Context())
		logger.Debug(userID, "http_request", fmt.Sprintf("method=%s path=%s status=%d", c.Request.Method, c.FullPath(), c.Writer.Status()))
	}
}

// statusFor maps an error kind to an HTTP status
func statusFor(err error) int {
	switch service.KindOf(err) {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidState:
		return http.StatusConflict
	case service.KindPolicyViolation:
		return http.StatusUnprocessableEntity
	case service.KindUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// errorCode returns the stable code of a service error
func errorCode(err error) string {
	var incomplete *service.IncompleteError
	if errors.As(err, &incomplete) {
		return service.ErrIncomplete.Code
	}
	var e *service.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}

// respondWithError writes a JSON error. I/O failures never leak their message.
func respondWithError(c *gin.Context, userID int64, action string, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error(userID, action, err)
		message = "internal error, please try again later"
	} else {
		logger.Debug(userID, action, "error="+err.Error())
	}
	c.AbortWithStatusJSON(status, gin.H{"error": errorCode(err), "message": message})
}
