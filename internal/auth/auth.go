package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
)

// ContextKey is the key type for context values
type ContextKey string

const (
	// UserIDKey is the context key for user ID
	UserIDKey ContextKey = "user_id"

	// InitDataHeader carries the Telegram WebApp initData string
	InitDataHeader = "X-Telegram-Init-Data"
	// PostbackTokenHeader carries the ad-network shared secret
	PostbackTokenHeader = "X-Postback-Token"

	// DefaultMaxAge is how long signed initData stays valid
	DefaultMaxAge = 24 * time.Hour
)

// Validator checks Telegram WebApp initData signatures for one bot
type Validator struct {
	botToken string
	maxAge   time.Duration
	now      func() time.Time
}

// NewValidator creates a validator for botToken
func NewValidator(botToken string) *Validator {
	return &Validator{botToken: botToken, maxAge: DefaultMaxAge, now: time.Now}
}

// ValidateInitData validates the Telegram initData string and returns the user ID.
// It checks the HMAC-SHA256 signature and the auth_date.
func (v *Validator) ValidateInitData(initData string) (int64, error) {
	if strings.TrimSpace(initData) == "" {
		return 0, fmt.Errorf("empty initData")
	}
	values, err := url.ParseQuery(initData)
	if err != nil {
		return 0, fmt.Errorf("malformed initData: %w", err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return 0, fmt.Errorf("hash not found in initData")
	}
	values.Del("hash")

	expected := sign(v.botToken, values)
	if !hmac.Equal([]byte(hash), []byte(expected)) {
		return 0, fmt.Errorf("invalid hash")
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid auth_date format")
	}
	if v.now().Sub(time.Unix(authDate, 0)) > v.maxAge {
		return 0, fmt.Errorf("auth_date is too old")
	}

	userJSON := values.Get("user")
	if userJSON == "" {
		return 0, fmt.Errorf("user not found in initData")
	}
	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return 0, fmt.Errorf("failed to parse user: %w", err)
	}
	if user.ID == 0 {
		return 0, fmt.Errorf("user id not found")
	}
	return user.ID, nil
}

// sign computes the initData hash: the secret key is HMAC("WebAppData", token)
// and the message is the sorted key=value lines without the hash field.
func sign(botToken string, values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	h := hmac.New(sha256.New, secret.Sum(nil))
	h.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}

// SignInitData builds a signed initData string for a user. It is what Telegram
// hands to a WebApp and is used to exercise the middleware.
func SignInitData(botToken string, userID int64, authDate time.Time) string {
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	values.Set("query_id", "AAH"+strconv.FormatInt(userID, 36))
	values.Set("user", fmt.Sprintf(`{"id":%d,"first_name":"Test"}`, userID))
	values.Set("hash", sign(botToken, values))
	return values.Encode()
}

// Middleware returns a gin middleware that validates Telegram initData
func (v *Validator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		initData := c.GetHeader(InitDataHeader)
		if initData == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + InitDataHeader + " header"})
			return
		}

		userID, err := v.ValidateInitData(initData)
		if err != nil {
			logger.Debug(0, "auth_failed", fmt.Sprintf("path=%s error=%v", c.Request.URL.Path, err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid initData"})
			return
		}

		c.Set(string(UserIDKey), userID)
		c.Request = c.Request.WithContext(contextWithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

// PostbackSecret rejects requests that do not carry secret in the token query
// parameter or the X-Postback-Token header. An empty secret disables the check.
func PostbackSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		token := c.Query("token")
		if token == "" {
			token = c.GetHeader(PostbackTokenHeader)
		}
		if !MatchSecret(token, secret) {
			logger.Debug(0, "postback_rejected", fmt.Sprintf("remote=%s", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid postback token"})
			return
		}
		c.Next()
	}
}

// MatchSecret compares a presented secret with the expected one in constant
// time. An empty expected secret never matches.
func MatchSecret(got, want string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// contextWithUserID adds the user ID to the context
func contextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserIDFromContext retrieves the user ID from the context
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	return userID, ok
}
