package service

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/telebot.v3"

	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
	"github.com/Ejimurphy/task-earnings-bot/internal/storage"
)

// Callback uniques for the admin withdrawal buttons
const (
	UniqueApproveWithdrawal = "wd_approve"
	UniqueDeclineWithdrawal = "wd_decline"
)

const (
	defaultSendAttempts = 3
	defaultRetryDelay   = 500 * time.Millisecond
	defaultOutboxSize   = 256
)

// Sender is the part of *telebot.Bot used to deliver messages
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// outgoing is one queued notification
type outgoing struct {
	to     int64
	action string
	what   interface{}
	opts   []interface{}
}

// NotificationService handles sending Telegram notifications. Every method is
// best-effort: failures are logged and never returned to money-moving code.
// A nil *NotificationService is valid and sends nothing.
//
// Event notifications go through an outbox once Start has been called, so
// callers never wait on Telegram. Before Start they are delivered inline.
type NotificationService struct {
	sender     Sender
	adminIDs   []int64
	currency   string
	attempts   int
	retryDelay time.Duration

	mu     sync.RWMutex
	outbox chan outgoing
	wg     sync.WaitGroup
}

// NewNotificationService creates a new notification service
func NewNotificationService(sender Sender, adminIDs []int64, currency string) *NotificationService {
	return &NotificationService{
		sender:     sender,
		adminIDs:   adminIDs,
		currency:   currency,
		attempts:   defaultSendAttempts,
		retryDelay: defaultRetryDelay,
	}
}

// Start runs the outbox worker. Calling it twice is a no-op.
func (s *NotificationService) Start() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outbox != nil {
		return
	}
	s.outbox = make(chan outgoing, defaultOutboxSize)
	s.wg.Add(1)
	go s.run(s.outbox)
	logger.Info("notification_outbox_started", fmt.Sprintf("size=%d", defaultOutboxSize))
}

// Stop closes the outbox and waits until queued notifications are delivered
func (s *NotificationService) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	outbox := s.outbox
	s.outbox = nil
	s.mu.Unlock()
	if outbox == nil {
		return
	}
	close(outbox)
	s.wg.Wait()
	logger.Info("notification_outbox_stopped", "")
}

func (s *NotificationService) run(outbox <-chan outgoing) {
	defer s.wg.Done()
	for msg := range outbox {
		s.notify(msg.to, msg.action, msg.what, msg.opts...)
	}
}

// enqueue hands a notification to the outbox, or delivers it inline when the
// outbox is not running. A full outbox drops the notification.
func (s *NotificationService) enqueue(to int64, action string, what interface{}, opts ...interface{}) {
	if s == nil || s.sender == nil {
		return
	}
	s.mu.RLock()
	if s.outbox != nil {
		select {
		case s.outbox <- outgoing{to: to, action: action, what: what, opts: opts}:
		default:
			logger.Debug(to, "notification_dropped", fmt.Sprintf("action=%s reason=outbox_full", action))
		}
		s.mu.RUnlock()
		return
	}
	s.mu.RUnlock()
	s.notify(to, action, what, opts...)
}

// formatCoins formats a coin amount
func formatCoins(coins int64) string {
	return fmt.Sprintf("%d coins", coins)
}

func (s *NotificationService) formatAmount(w *storage.Withdrawal) string {
	return s.currency + w.Amount.StringFixed(2)
}

// deliver sends with a bounded number of attempts
func (s *NotificationService) deliver(to int64, what interface{}, opts ...interface{}) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if _, err = s.sender.Send(&telebot.User{ID: to}, what, opts...); err == nil {
			return nil
		}
		if !retryable(err) || attempt == s.attempts {
			break
		}
		time.Sleep(s.retryDelay * time.Duration(attempt))
	}
	return err
}

// retryable reports whether a send error could succeed on a later attempt.
// Blocked bots and unknown chats never will.
func retryable(err error) bool {
	for _, permanent := range []error{
		telebot.ErrBlockedByUser,
		telebot.ErrUserIsDeactivated,
		telebot.ErrChatNotFound,
		telebot.ErrNotStartedByUser,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}

func (s *NotificationService) notify(userID int64, action string, what interface{}, opts ...interface{}) bool {
	if s == nil || s.sender == nil {
		return false
	}
	if err := s.deliver(userID, what, opts...); err != nil {
		logger.Debug(userID, "notification_error", fmt.Sprintf("action=%s error=%v", action, err))
		log.Printf("Failed to send %s notification to user %d: %v", action, userID, err)
		return false
	}
	logger.Debug(userID, action+"_sent", "")
	return true
}

func (s *NotificationService) notifyAdmins(action string, what interface{}, opts ...interface{}) int {
	if s == nil {
		return 0
	}
	if len(s.adminIDs) == 0 {
		log.Printf("No admin IDs configured, skipping %s", action)
		return 0
	}
	sent := 0
	for _, id := range s.adminIDs {
		if s.notify(id, action, what, opts...) {
			sent++
		}
	}
	return sent
}

// alertAdmins queues the same notification for every admin
func (s *NotificationService) alertAdmins(action string, what interface{}, opts ...interface{}) {
	if s == nil {
		return
	}
	if len(s.adminIDs) == 0 {
		log.Printf("No admin IDs configured, skipping %s", action)
		return
	}
	for _, id := range s.adminIDs {
		s.enqueue(id, action, what, opts...)
	}
}

// NotifyTaskReward tells a user their task reward was credited
func (s *NotificationService) NotifyTaskReward(userID, reward, balance int64) {
	message := fmt.Sprintf("🎉 Task complete! %s have been added to your wallet.\n\nNew Balance: %s",
		formatCoins(reward), formatCoins(balance))
	s.enqueue(userID, "task_reward", message)
}

// NotifyReferralBonus tells a referrer that a friend finished their first task
func (s *NotificationService) NotifyReferralBonus(referrerID, friendID, bonus int64) {
	message := fmt.Sprintf("🤝 Your friend (ID %d) completed their first task. You earned a referral bonus of %s!",
		friendID, formatCoins(bonus))
	s.enqueue(referrerID, "referral_bonus", message)
}

// NotifyReferralJoined tells a referrer that someone joined with their link
func (s *NotificationService) NotifyReferralJoined(referrerID int64, friendName string) {
	message := fmt.Sprintf("👋 %s joined using your referral link. You will receive a bonus when they complete their first task.",
		displayName(friendName))
	s.enqueue(referrerID, "referral_joined", message)
}

// NotifyWithdrawalRequested alerts every admin with Approve and Decline buttons
func (s *NotificationService) NotifyWithdrawalRequested(w *storage.Withdrawal, user *storage.User) {
	if s == nil || w == nil {
		return
	}
	id := strconv.FormatInt(w.ID, 10)
	markup := &telebot.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("✅ Approve", UniqueApproveWithdrawal, id),
		markup.Data("❌ Decline", UniqueDeclineWithdrawal, id),
	))

	name := ""
	if user != nil {
		name = userLabel(user)
	}
	message := fmt.Sprintf("💸 New withdrawal request #%d\n\nUser: %s (ID %d)\nCoins: %d\nAmount: %s\nBank: %s\nAccount: %s\nName: %s\n\nUse /approve %d or /decline %d <reason>",
		w.ID, name, w.UserID, w.Coins, s.formatAmount(w),
		w.Bank.BankName, w.Bank.AccountNumber, w.Bank.AccountName,
		w.ID, w.ID)
	s.alertAdmins("withdrawal_request_alert", message, markup)
}

// NotifyWithdrawalApproved tells the user their payout was approved
func (s *NotificationService) NotifyWithdrawalApproved(w *storage.Withdrawal) {
	if s == nil || w == nil {
		return
	}
	message := fmt.Sprintf("✅ Your withdrawal #%d of %s has been approved and will be paid to %s (%s).",
		w.ID, s.formatAmount(w), w.Bank.BankName, maskAccount(w.Bank.AccountNumber))
	s.enqueue(w.UserID, "withdrawal_approved", message)
}

// NotifyWithdrawalDeclined tells the user their payout was declined and refunded
func (s *NotificationService) NotifyWithdrawalDeclined(w *storage.Withdrawal) {
	if s == nil || w == nil {
		return
	}
	message := fmt.Sprintf("❌ Your withdrawal #%d was declined.\nReason: %s\n\n%s have been returned to your wallet.",
		w.ID, reasonOrDefault(w.Note), formatCoins(w.Coins))
	s.enqueue(w.UserID, "withdrawal_declined", message)
}

// ForwardHelpRequest sends a user's support message to every admin
func (s *NotificationService) ForwardHelpRequest(h *storage.HelpRequest, user *storage.User) {
	if s == nil || h == nil {
		return
	}
	name := ""
	if user != nil {
		name = userLabel(user)
	}
	message := fmt.Sprintf("🆘 Help request #%d from %s (ID %d):\n\n%s\n\nReply with /reply %d <message>",
		h.ID, name, h.UserID, h.Message, h.UserID)
	s.alertAdmins("help_request_forward", message)
}

// SendPendingDigest reminds admins about withdrawals waiting for a decision
func (s *NotificationService) SendPendingDigest(pending []*storage.Withdrawal) int {
	if s == nil || len(pending) == 0 {
		return 0
	}
	var b strings.Builder
	fmt.Fprintf(&b, "⏰ %d withdrawal(s) are still pending:\n", len(pending))
	for _, w := range pending {
		fmt.Fprintf(&b, "\n#%d user %d, %s, requested %s", w.ID, w.UserID, s.formatAmount(w), w.RequestedAt.Format("2006-01-02 15:04"))
	}
	b.WriteString("\n\nUse /pending to review them.")
	return s.notifyAdmins("pending_digest", b.String())
}

// SendText delivers a plain message to one user and reports the error
func (s *NotificationService) SendText(userID int64, text string) error {
	if s == nil || s.sender == nil {
		return fmt.Errorf("notifications are not configured")
	}
	return s.deliver(userID, text)
}

// Broadcast sends text to every user in ids and returns sent and failed counts
func (s *NotificationService) Broadcast(ids []int64, text string) (sent, failed int) {
	for _, id := range ids {
		if s.notify(id, "broadcast", text) {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}

func userLabel(u *storage.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return displayName(u.FirstName)
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "A new user"
	}
	return truncateString(name, 40)
}

func reasonOrDefault(note string) string {
	if strings.TrimSpace(note) == "" {
		return "not specified"
	}
	return note
}

// maskAccount hides all but the last four digits of an account number
func maskAccount(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}

// truncateString truncates a string to maxLen runes and adds ellipsis if needed
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return strings.TrimSpace(string(runes[:maxLen-3])) + "..."
}
