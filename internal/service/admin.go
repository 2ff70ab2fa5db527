package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
	"github.com/Ejimurphy/task-earnings-bot/internal/storage"
)

// AdminStats is the /stats summary
type AdminStats struct {
	storage.Stats
	OpenHelpRequests int64
	Rules            Rules
}

// AdminService implements the admin commands other than withdrawal review.
// Every method checks the caller against the admin set and writes an audit row.
type AdminService struct {
	store    *storage.Store
	rules    *RulesService
	notifier *NotificationService
	admins   Admins
}

// NewAdminService creates a new admin service
func NewAdminService(store *storage.Store, rules *RulesService, notifier *NotificationService, admins Admins) *AdminService {
	return &AdminService{store: store, rules: rules, notifier: notifier, admins: admins}
}

// IsAdmin reports whether telegramID may run admin commands
func (s *AdminService) IsAdmin(telegramID int64) bool {
	return s.admins.Contains(telegramID)
}

func (s *AdminService) audit(ctx context.Context, adminID int64, action, details string) {
	if err := s.store.LogAdminAction(ctx, adminID, action, details); err != nil {
		logger.Error(adminID, "admin_log_failed", err)
	}
	logger.Debug(adminID, action, details)
}

// SetBanned bans or unbans a user
func (s *AdminService) SetBanned(ctx context.Context, adminID, userID int64, banned bool) error {
	if !s.IsAdmin(adminID) {
		return ErrUnauthorized
	}
	if s.admins.Contains(userID) && banned {
		return invalidInput("admins cannot be banned")
	}
	ok, err := s.store.SetBanned(ctx, userID, banned)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	action := "unban_user"
	if banned {
		action = "ban_user"
	}
	s.audit(ctx, adminID, action, fmt.Sprintf("user_id=%d", userID))
	return nil
}

// Stats returns the admin dashboard numbers
func (s *AdminService) Stats(ctx context.Context, adminID int64) (*AdminStats, error) {
	if !s.IsAdmin(adminID) {
		return nil, ErrUnauthorized
	}
	stats, err := s.store.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	open, err := s.store.CountOpenHelpRequests(ctx)
	if err != nil {
		return nil, err
	}
	rules, err := s.rules.Current(ctx)
	if err != nil {
		return nil, err
	}
	return &AdminStats{Stats: *stats, OpenHelpRequests: open, Rules: rules}, nil
}

// SetTasksEnabled turns the ad task feature on or off
func (s *AdminService) SetTasksEnabled(ctx context.Context, adminID int64, enabled bool) error {
	if !s.IsAdmin(adminID) {
		return ErrUnauthorized
	}
	if err := s.rules.SetTasksEnabled(ctx, enabled); err != nil {
		return err
	}
	s.audit(ctx, adminID, "toggle_tasks", fmt.Sprintf("enabled=%t", enabled))
	return nil
}

// SetSetting changes one tunable economy setting
func (s *AdminService) SetSetting(ctx context.Context, adminID int64, key, value string) (Rules, error) {
	if !s.IsAdmin(adminID) {
		return Rules{}, ErrUnauthorized
	}
	rules, err := s.rules.Set(ctx, key, value)
	if err != nil {
		return Rules{}, err
	}
	s.audit(ctx, adminID, "set_setting", fmt.Sprintf("key=%s value=%s", key, value))
	return rules, nil
}

// Broadcast sends text to every user that is not banned
func (s *AdminService) Broadcast(ctx context.Context, adminID int64, text string) (sent, failed int, err error) {
	if !s.IsAdmin(adminID) {
		return 0, 0, ErrUnauthorized
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, 0, invalidInput("broadcast message must not be empty")
	}
	ids, err := s.store.ListActiveUserIDs(ctx)
	if err != nil {
		return 0, 0, err
	}
	sent, failed = s.notifier.Broadcast(ids, "📢 "+text)
	s.audit(ctx, adminID, "broadcast", fmt.Sprintf("sent=%d failed=%d", sent, failed))
	return sent, failed, nil
}

// Reply answers a user's help request and marks their open requests answered
func (s *AdminService) Reply(ctx context.Context, adminID, userID int64, text string) error {
	if !s.IsAdmin(adminID) {
		return ErrUnauthorized
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return invalidInput("reply message must not be empty")
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if err := s.notifier.SendText(userID, "💬 Support: "+text); err != nil {
		return fmt.Errorf("failed to deliver reply to user %d: %w", userID, err)
	}
	answered, err := s.store.AnswerHelpRequests(ctx, userID)
	if err != nil {
		return err
	}
	s.audit(ctx, adminID, "help_reply", fmt.Sprintf("user_id=%d answered=%d", userID, answered))
	return nil
}

// SupportService stores help requests and forwards them to admins
type SupportService struct {
	store    *storage.Store
	notifier *NotificationService
}

// NewSupportService creates a new support service
func NewSupportService(store *storage.Store, notifier *NotificationService) *SupportService {
	return &SupportService{store: store, notifier: notifier}
}

// Submit records a help message from a user and forwards it to the admins
func (s *SupportService) Submit(ctx context.Context, userID int64, message string) (*storage.HelpRequest, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, invalidInput("please describe your problem in a message")
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	h, err := s.store.CreateHelpRequest(ctx, userID, message)
	if err != nil {
		return nil, err
	}
	logger.Debug(userID, "help_request_created", fmt.Sprintf("help_id=%d", h.ID))
	s.notifier.ForwardHelpRequest(h, user)
	return h, nil
}
