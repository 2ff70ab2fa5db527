package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/telebot.v3"

	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
	"github.com/Ejimurphy/task-earnings-bot/internal/service"
	"github.com/Ejimurphy/task-earnings-bot/internal/storage"
)

const (
	msgNotStarted = "You haven't started the bot yet. Use /start to create your account!"
	msgTryLater   = "⚠️ Something went wrong. Please try again later."
)

// errorText turns a service error into the reply shown to the user. I/O
// failures are logged and get a generic message.
func errorText(userID int64, action string, err error) string {
	var incomplete *service.IncompleteError
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		logger.Debug(userID, action, "user_not_found")
		return msgNotStarted
	case errors.As(err, &incomplete):
		logger.Debug(userID, action, incomplete.Error())
		return fmt.Sprintf("⏳ You have watched %d of %d ads. Watch %d more to claim your reward.",
			incomplete.Count, incomplete.Required, incomplete.Required-incomplete.Count)
	case service.IsExpected(err):
		logger.Debug(userID, action, "error="+err.Error())
		return "⚠️ " + capitalize(err.Error())
	default:
		logger.Error(userID, action, err)
		return msgTryLater
	}
}

// replyError answers a message with the user-facing text of err
func (h *Handler) replyError(c telebot.Context, action string, err error) error {
	return c.Send(errorText(c.Sender().ID, action, err))
}

// answerError answers a button press with an alert carrying the text of err
func (h *Handler) answerError(c telebot.Context, action string, err error) error {
	return c.Respond(&telebot.CallbackResponse{Text: errorText(c.Sender().ID, action, err), ShowAlert: true})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// parseID parses a numeric withdrawal or user ID argument
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(raw), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// splitFirst splits a command payload into its first word and the rest
func splitFirst(payload string) (first, rest string) {
	payload = strings.TrimSpace(payload)
	if i := strings.IndexAny(payload, " \n\t"); i >= 0 {
		return payload[:i], strings.TrimSpace(payload[i+1:])
	}
	return payload, ""
}

// parseCoins accepts whole numbers with optional thousands separators
func parseCoins(raw string) (int64, bool) {
	raw = strings.NewReplacer(",", "", "_", "", " ", "").Replace(strings.TrimSpace(raw))
	coins, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || coins <= 0 {
		return 0, false
	}
	return coins, true
}

func describeSource(sourceType string) string {
	switch sourceType {
	case storage.SourceTaskReward:
		return "Task reward"
	case storage.SourceReferralBonus:
		return "Referral bonus"
	case storage.SourceWithdrawalDebit:
		return "Withdrawal"
	case storage.SourceWithdrawalRefund:
		return "Withdrawal refund"
	default:
		return sourceType
	}
}

func statusEmoji(status storage.WithdrawalStatus) string {
	switch status {
	case storage.WithdrawalStatusApproved:
		return "✅"
	case storage.WithdrawalStatusDeclined:
		return "❌"
	default:
		return "⏳"
	}
}

func formatRules(r service.Rules) string {
	return fmt.Sprintf("⚙️ Current settings\n\n%s: %t\n%s: %d\n%s: %d\n%s: %d\n%s: %s",
		storage.SettingTasksEnabled, r.TasksEnabled,
		storage.SettingTaskReward, r.TaskReward,
		storage.SettingReferralReward, r.ReferralReward,
		storage.SettingMinWithdrawal, r.MinWithdrawal,
		storage.SettingCoinRate, r.CoinRate.String())
}

func taskMarkup(link, sessionID string) *telebot.ReplyMarkup {
	return &telebot.ReplyMarkup{
		InlineKeyboard: [][]telebot.InlineButton{
			{{Text: "📺 Watch ads", WebApp: &telebot.WebApp{URL: link}}},
			{{Unique: uniqueClaim, Text: "✅ Claim reward", Data: sessionID}},
		},
	}
}

func bankMarkup(hasBank bool) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	if hasBank {
		markup.Inline(markup.Row(markup.Data("✏️ Change bank details", uniqueBankChange)))
	} else {
		markup.Inline(markup.Row(markup.Data("🏦 Add bank details", uniqueBankSet)))
	}
	return markup
}
