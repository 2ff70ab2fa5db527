package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
	"github.com/Ejimurphy/task-earnings-bot/internal/storage"
)

// Progress is the validated-view count of one session
type Progress struct {
	SessionID string `json:"session_id"`
	Count     int    `json:"count"`
	Required  int    `json:"required"`
	Completed bool   `json:"completed"`
	Reset     bool   `json:"reset"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// Ready reports whether the session can be settled now
func (p Progress) Ready() bool {
	return !p.Completed && p.Count >= p.Required
}

// Remaining returns how many views are still needed
func (p Progress) Remaining() int {
	if p.Count >= p.Required {
		return 0
	}
	return p.Required - p.Count
}

// StartResult is returned when a user starts (or resumes) an ad task
type StartResult struct {
	Session  *storage.AdSession
	Link     string
	Resumed  bool
	Progress Progress
}

// Settlement describes the credits applied when a session was settled
type Settlement struct {
	SessionID     string
	UserID        int64
	Reward        int64
	Balance       int64
	ReferrerID    int64 // 0 when no referral bonus was paid
	ReferralBonus int64
}

// viewStore is implemented by both *storage.Store and *storage.Tx
type viewStore interface {
	LastViewAt(ctx context.Context, sessionID string) (time.Time, bool, error)
	InvalidateViews(ctx context.Context, sessionID string) (int64, error)
	CountValidatedViews(ctx context.Context, sessionID string) (int, error)
}

// TaskService issues ad sessions, records views and settles rewards
type TaskService struct {
	store     *storage.Store
	rules     *RulesService
	notifier  *NotificationService
	baseURL   string
	required  int
	idleReset time.Duration

	now   func() time.Time
	newID func() string
}

// NewTaskService creates a new task service. idleReset of 0 disables the staleness reset.
func NewTaskService(store *storage.Store, rules *RulesService, notifier *NotificationService, baseURL string, idleReset time.Duration) *TaskService {
	return &TaskService{
		store:     store,
		rules:     rules,
		notifier:  notifier,
		baseURL:   baseURL,
		required:  rules.Defaults().RequiredViews,
		idleReset: idleReset,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// RequiredViews returns the settlement threshold
func (s *TaskService) RequiredViews() int {
	return s.required
}

// ViewerLink returns the ad viewer URL for a session
func (s *TaskService) ViewerLink(sessionID string) string {
	return s.baseURL + "/ad/" + sessionID
}

// StartSession issues an ad session for a user. A user has at most one open
// session; when one exists it is returned instead of creating another.
func (s *TaskService) StartSession(ctx context.Context, userID int64) (*StartResult, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.IsBanned {
		return nil, ErrBanned
	}

	rules, err := s.rules.Current(ctx)
	if err != nil {
		return nil, err
	}
	if !rules.TasksEnabled {
		return nil, ErrFeatureDisabled
	}

	if open, err := s.store.GetOpenSession(ctx, userID); err != nil {
		return nil, err
	} else if open != nil {
		return s.resume(ctx, open)
	}

	session, err := s.store.CreateSession(ctx, s.newID(), userID, s.now())
	if err != nil {
		// A concurrent start may have won the unique open-session index.
		if open, getErr := s.store.GetOpenSession(ctx, userID); getErr == nil && open != nil {
			return s.resume(ctx, open)
		}
		return nil, err
	}

	logger.Debug(userID, "ad_session_started", fmt.Sprintf("session_id=%s", session.ID))

	return &StartResult{
		Session:  session,
		Link:     s.ViewerLink(session.ID),
		Progress: Progress{SessionID: session.ID, Required: s.required},
	}, nil
}

func (s *TaskService) resume(ctx context.Context, session *storage.AdSession) (*StartResult, error) {
	progress, err := s.Progress(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	logger.Debug(session.UserID, "ad_session_resumed", fmt.Sprintf("session_id=%s count=%d", session.ID, progress.Count))
	return &StartResult{
		Session:  session,
		Link:     s.ViewerLink(session.ID),
		Resumed:  true,
		Progress: progress,
	}, nil
}

// RecordView stores one validated view and returns the fresh count. A repeated
// externalEventID is a no-op reported with Duplicate set. Views on a completed
// session fail with ErrAlreadySettled.
func (s *TaskService) RecordView(ctx context.Context, sessionID string, adIndex *int, externalEventID string) (Progress, error) {
	progress := Progress{SessionID: sessionID, Required: s.required}

	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return ErrSessionNotFound
		}
		if session.Completed {
			progress.Completed = true
			return ErrAlreadySettled
		}

		now := s.now()
		if progress.Reset, err = s.resetIfStale(ctx, tx, sessionID, now); err != nil {
			return err
		}

		inserted, err := tx.InsertView(ctx, storage.AdView{
			SessionID:       sessionID,
			UserID:          session.UserID,
			AdIndex:         adIndex,
			ExternalEventID: externalEventID,
			CreatedAt:       now,
		})
		if err != nil {
			return err
		}
		progress.Duplicate = !inserted

		progress.Count, err = tx.CountValidatedViews(ctx, sessionID)
		if err != nil {
			return err
		}

		logger.Debug(session.UserID, "ad_view_recorded", fmt.Sprintf("session_id=%s event_id=%s count=%d duplicate=%t reset=%t",
			sessionID, externalEventID, progress.Count, progress.Duplicate, progress.Reset))
		return nil
	})
	if err != nil {
		return progress, err
	}
	return progress, nil
}

// Progress returns the current count for a session, applying the staleness reset
func (s *TaskService) Progress(ctx context.Context, sessionID string) (Progress, error) {
	progress := Progress{SessionID: sessionID, Required: s.required}

	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return ErrSessionNotFound
		}
		progress.Completed = session.Completed
		if !session.Completed {
			if progress.Reset, err = s.resetIfStale(ctx, tx, sessionID, s.now()); err != nil {
				return err
			}
		}
		progress.Count, err = tx.CountValidatedViews(ctx, sessionID)
		return err
	})
	if err != nil {
		return Progress{}, err
	}
	return progress, nil
}

// SessionOwner returns the user that owns a session
func (s *TaskService) SessionOwner(ctx context.Context, sessionID string) (int64, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if session == nil {
		return 0, ErrSessionNotFound
	}
	return session.UserID, nil
}

// resetIfStale invalidates a session's views when the latest one is older than the idle window
func (s *TaskService) resetIfStale(ctx context.Context, q viewStore, sessionID string, now time.Time) (bool, error) {
	if s.idleReset <= 0 {
		return false, nil
	}
	last, ok, err := q.LastViewAt(ctx, sessionID)
	if err != nil || !ok {
		return false, err
	}
	if now.Sub(last) <= s.idleReset {
		return false, nil
	}
	n, err := q.InvalidateViews(ctx, sessionID)
	if err != nil {
		return false, err
	}
	logger.Debug(0, "ad_session_reset", fmt.Sprintf("session_id=%s idle=%s views=%d", sessionID, now.Sub(last).Round(time.Second), n))
	return n > 0, nil
}

// Settle credits the task reward for a session at most once. The session must
// have at least RequiredViews validated views. If the user was referred and no
// bonus has been paid yet, the referrer is credited in the same transaction.
func (s *TaskService) Settle(ctx context.Context, sessionID string) (*Settlement, error) {
	rules, err := s.rules.Current(ctx)
	if err != nil {
		return nil, err
	}

	var result *Settlement
	err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return ErrSessionNotFound
		}
		if session.Completed {
			return ErrAlreadySettled
		}

		count, err := tx.CountValidatedViews(ctx, sessionID)
		if err != nil {
			return err
		}
		if count < s.required {
			return &IncompleteError{Count: count, Required: s.required}
		}

		user, err := tx.GetUser(ctx, session.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}
		if user.IsBanned {
			return ErrBanned
		}

		completed, err := tx.MarkSessionCompleted(ctx, sessionID, s.now())
		if err != nil {
			return err
		}
		if !completed {
			return ErrAlreadySettled
		}

		if err := tx.CreditCoins(ctx, user.TelegramID, rules.TaskReward); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, user.TelegramID, rules.TaskReward, storage.SourceTaskReward,
			fmt.Sprintf("Reward for ad session %s (%d views)", sessionID, count)); err != nil {
			return err
		}

		result = &Settlement{
			SessionID: sessionID,
			UserID:    user.TelegramID,
			Reward:    rules.TaskReward,
			Balance:   user.Coins + rules.TaskReward,
		}

		if user.ReferredBy != 0 && !user.ReferralCredited {
			if err := s.creditReferrer(ctx, tx, user, rules.ReferralReward, result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(result.UserID, "ad_session_settled", fmt.Sprintf("session_id=%s reward=%d balance=%d referrer=%d bonus=%d",
		sessionID, result.Reward, result.Balance, result.ReferrerID, result.ReferralBonus))

	s.notifier.NotifyTaskReward(result.UserID, result.Reward, result.Balance)
	if result.ReferrerID != 0 {
		s.notifier.NotifyReferralBonus(result.ReferrerID, result.UserID, result.ReferralBonus)
	}
	return result, nil
}

func (s *TaskService) creditReferrer(ctx context.Context, tx *storage.Tx, user *storage.User, bonus int64, result *Settlement) error {
	marked, err := tx.MarkReferralCredited(ctx, user.TelegramID)
	if err != nil || !marked {
		return err
	}

	referrer, err := tx.GetUser(ctx, user.ReferredBy)
	if err != nil {
		return err
	}
	if referrer == nil || bonus == 0 {
		logger.Debug(user.TelegramID, "referral_bonus_skipped", fmt.Sprintf("referrer=%d bonus=%d", user.ReferredBy, bonus))
		return nil
	}

	if err := tx.CreditCoins(ctx, referrer.TelegramID, bonus); err != nil {
		return err
	}
	if err := tx.InsertTransaction(ctx, referrer.TelegramID, bonus, storage.SourceReferralBonus,
		fmt.Sprintf("Referral bonus for user %d", user.TelegramID)); err != nil {
		return err
	}
	result.ReferrerID = referrer.TelegramID
	result.ReferralBonus = bonus
	return nil
}

// Ingest records a view from the ad network and settles the session once it
// reaches the threshold. A session that is already settled is not an error here.
func (s *TaskService) Ingest(ctx context.Context, sessionID string, adIndex *int, externalEventID string) (Progress, *Settlement, error) {
	progress, err := s.RecordView(ctx, sessionID, adIndex, externalEventID)
	if err != nil {
		return progress, nil, err
	}
	if !progress.Ready() {
		return progress, nil, nil
	}

	settlement, err := s.Settle(ctx, sessionID)
	switch {
	case err == nil:
		progress.Completed = true
	case errors.Is(err, ErrAlreadySettled):
		// Settled concurrently by the claim button or another postback.
		progress.Completed = true
		return progress, nil, nil
	default:
		return progress, nil, err
	}
	return progress, settlement, nil
}
