package bot

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/telebot.v3"

	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
	"github.com/Ejimurphy/task-earnings-bot/internal/service"
	"github.com/Ejimurphy/task-earnings-bot/internal/storage"
)

// adminOnly rejects admin commands and buttons from everyone else before
// arguments are parsed. The services check again.
func (h *Handler) adminOnly(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		if h.admin.IsAdmin(c.Sender().ID) {
			return next(c)
		}
		if c.Callback() != nil {
			return h.answerError(c, "admin_denied", service.ErrUnauthorized)
		}
		return h.replyError(c, "admin_denied", service.ErrUnauthorized)
	}
}

// HandleApprove handles /approve <withdrawal_id>
func (h *Handler) HandleApprove(c telebot.Context) error {
	first, _ := splitFirst(c.Data())
	id, err := parseID(first)
	if err != nil {
		return c.Send("❌ Usage: /approve <withdrawal_id>")
	}
	w, err := h.withdrawals.Approve(context.Background(), id, c.Sender().ID)
	if err != nil {
		return h.replyError(c, "approve_error", err)
	}
	return c.Send(h.approvedText(w))
}

// HandleDecline handles /decline <withdrawal_id> <reason>
func (h *Handler) HandleDecline(c telebot.Context) error {
	first, reason := splitFirst(c.Data())
	id, err := parseID(first)
	if err != nil {
		return c.Send("❌ Usage: /decline <withdrawal_id> <reason>")
	}
	w, err := h.withdrawals.Decline(context.Background(), id, c.Sender().ID, reason)
	if err != nil {
		return h.replyError(c, "decline_error", err)
	}
	return c.Send(h.declinedText(w))
}

// HandleApproveButton handles the Approve button on a withdrawal alert
func (h *Handler) HandleApproveButton(c telebot.Context) error {
	id, err := parseID(c.Data())
	if err != nil {
		return h.answerError(c, "approve_error", service.ErrWithdrawalNotFound)
	}
	w, err := h.withdrawals.Approve(context.Background(), id, c.Sender().ID)
	if err != nil {
		return h.answerError(c, "approve_error", err)
	}
	if err := c.Respond(&telebot.CallbackResponse{Text: fmt.Sprintf("Withdrawal #%d approved", w.ID)}); err != nil {
		logger.Debug(c.Sender().ID, "callback_respond_error", err.Error())
	}
	return c.Send(h.approvedText(w))
}

// HandleDeclineButton handles the Decline button on a withdrawal alert
func (h *Handler) HandleDeclineButton(c telebot.Context) error {
	id, err := parseID(c.Data())
	if err != nil {
		return h.answerError(c, "decline_error", service.ErrWithdrawalNotFound)
	}
	w, err := h.withdrawals.Decline(context.Background(), id, c.Sender().ID, "")
	if err != nil {
		return h.answerError(c, "decline_error", err)
	}
	if err := c.Respond(&telebot.CallbackResponse{Text: fmt.Sprintf("Withdrawal #%d declined", w.ID)}); err != nil {
		logger.Debug(c.Sender().ID, "callback_respond_error", err.Error())
	}
	return c.Send(h.declinedText(w))
}

func (h *Handler) approvedText(w *storage.Withdrawal) string {
	return fmt.Sprintf("✅ Withdrawal #%d approved.\n\nPay %s to:\n🏦 %s\n🔢 %s\n👤 %s",
		w.ID, h.rules.Defaults().FormatAmount(w.Amount), w.Bank.BankName, w.Bank.AccountNumber, w.Bank.AccountName)
}

func (h *Handler) declinedText(w *storage.Withdrawal) string {
	note := w.Note
	if note == "" {
		note = "no reason given"
	}
	return fmt.Sprintf("❌ Withdrawal #%d declined (%s). %d coins were refunded to user %d.", w.ID, note, w.Coins, w.UserID)
}

// HandlePending lists withdrawals waiting for review
func (h *Handler) HandlePending(c telebot.Context) error {
	pending, err := h.withdrawals.Pending(context.Background(), c.Sender().ID, pendingLimit)
	if err != nil {
		return h.replyError(c, "pending_error", err)
	}
	if len(pending) == 0 {
		return c.Send("✅ No pending withdrawals.")
	}

	rules := h.rules.Defaults()
	var b strings.Builder
	fmt.Fprintf(&b, "⏳ Pending withdrawals (%d)\n", len(pending))
	for _, w := range pending {
		fmt.Fprintf(&b, "\n#%d user %d: %d coins (%s)\n   %s, %s, %s\n   requested %s\n",
			w.ID, w.UserID, w.Coins, rules.FormatAmount(w.Amount),
			w.Bank.BankName, w.Bank.AccountNumber, w.Bank.AccountName,
			w.RequestedAt.Format("2006-01-02 15:04"))
	}
	b.WriteString("\nUse /approve <id> or /decline <id> <reason>.")
	return c.Send(b.String())
}

// HandleStats shows the admin dashboard
func (h *Handler) HandleStats(c telebot.Context) error {
	stats, err := h.admin.Stats(context.Background(), c.Sender().ID)
	if err != nil {
		return h.replyError(c, "stats_error", err)
	}
	tasks := "enabled"
	if !stats.Rules.TasksEnabled {
		tasks = "disabled"
	}
	return c.Send(fmt.Sprintf("📊 Bot Statistics\n\n"+
		"👥 Users: %d (banned %d)\n"+
		"🪙 Coins in circulation: %d\n"+
		"🎯 Completed tasks: %d\n"+
		"⏳ Pending withdrawals: %d (%d coins)\n"+
		"🆘 Open help requests: %d\n"+
		"⚙️ Tasks: %s",
		stats.Users, stats.BannedUsers, stats.CoinsInCirculation, stats.CompletedSessions,
		stats.PendingWithdrawals, stats.PendingCoins, stats.OpenHelpRequests, tasks))
}

// HandleTasks handles /tasks on|off
func (h *Handler) HandleTasks(c telebot.Context) error {
	arg, _ := splitFirst(c.Data())
	var enabled bool
	switch strings.ToLower(arg) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return c.Send("❌ Usage: /tasks on|off")
	}
	if err := h.admin.SetTasksEnabled(context.Background(), c.Sender().ID, enabled); err != nil {
		return h.replyError(c, "tasks_toggle_error", err)
	}
	if enabled {
		return c.Send("✅ Tasks are now enabled.")
	}
	return c.Send("⏸ Tasks are now disabled.")
}

// HandleSet handles /set <key> <value>
func (h *Handler) HandleSet(c telebot.Context) error {
	key, value := splitFirst(c.Data())
	if key == "" || value == "" {
		rules, err := h.rules.Current(context.Background())
		if err != nil {
			return h.replyError(c, "set_setting_error", err)
		}
		return c.Send(fmt.Sprintf("❌ Usage: /set <key> <value>\nKeys: %s\n\n%s",
			strings.Join(service.SettingKeys(), ", "), formatRules(rules)))
	}
	rules, err := h.admin.SetSetting(context.Background(), c.Sender().ID, key, value)
	if err != nil {
		return h.replyError(c, "set_setting_error", err)
	}
	return c.Send("✅ Setting updated.\n\n" + formatRules(rules))
}

// HandleBan handles /ban <user_id>
func (h *Handler) HandleBan(c telebot.Context) error {
	return h.setBanned(c, true)
}

// HandleUnban handles /unban <user_id>
func (h *Handler) HandleUnban(c telebot.Context) error {
	return h.setBanned(c, false)
}

func (h *Handler) setBanned(c telebot.Context, banned bool) error {
	command := "unban"
	if banned {
		command = "ban"
	}
	first, _ := splitFirst(c.Data())
	userID, err := parseID(first)
	if err != nil {
		return c.Send(fmt.Sprintf("❌ Usage: /%s <user_id>", command))
	}
	if err := h.admin.SetBanned(context.Background(), c.Sender().ID, userID, banned); err != nil {
		return h.replyError(c, command+"_error", err)
	}
	if banned {
		return c.Send(fmt.Sprintf("🚫 User %d has been banned.", userID))
	}
	return c.Send(fmt.Sprintf("✅ User %d has been unbanned.", userID))
}

// HandleBroadcast handles /broadcast <text>
func (h *Handler) HandleBroadcast(c telebot.Context) error {
	text := strings.TrimSpace(c.Data())
	if text == "" {
		return c.Send("❌ Usage: /broadcast <text>")
	}
	sent, failed, err := h.admin.Broadcast(context.Background(), c.Sender().ID, text)
	if err != nil {
		return h.replyError(c, "broadcast_error", err)
	}
	return c.Send(fmt.Sprintf("📢 Broadcast finished: %d sent, %d failed.", sent, failed))
}

// HandleReply handles /reply <user_id> <text>
func (h *Handler) HandleReply(c telebot.Context) error {
	first, text := splitFirst(c.Data())
	userID, err := parseID(first)
	if err != nil || text == "" {
		return c.Send("❌ Usage: /reply <user_id> <text>")
	}
	if err := h.admin.Reply(context.Background(), c.Sender().ID, userID, text); err != nil {
		return h.replyError(c, "reply_error", err)
	}
	return c.Send(fmt.Sprintf("✅ Reply sent to user %d.", userID))
}
