package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func scanSession(row rowScanner) (*AdSession, error) {
	var session AdSession
	var completedAt sql.NullTime
	if err := row.Scan(&session.ID, &session.UserID, &session.Completed, &session.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		session.CompletedAt = &t
	}
	return &session, nil
}

// CreateSession inserts a new incomplete ad session
func (c conn) CreateSession(ctx context.Context, id string, userID int64, at time.Time) (*AdSession, error) {
	_, err := c.exec(ctx, `
		INSERT INTO ad_sessions (id, user_id, completed, created_at)
		VALUES (?, ?, FALSE, ?)
	`, id, userID, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to insert ad session: %w", err)
	}
	return &AdSession{ID: id, UserID: userID, CreatedAt: at.UTC()}, nil
}

// GetSession retrieves a session by ID. It returns nil, nil when the session does not exist.
func (c conn) GetSession(ctx context.Context, id string) (*AdSession, error) {
	session, err := scanSession(c.queryRow(ctx, `
		SELECT id, user_id, completed, created_at, completed_at
		FROM ad_sessions WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ad session: %w", err)
	}
	return session, nil
}

// GetOpenSession returns the user's incomplete session, or nil, nil when there is none
func (c conn) GetOpenSession(ctx context.Context, userID int64) (*AdSession, error) {
	session, err := scanSession(c.queryRow(ctx, `
		SELECT id, user_id, completed, created_at, completed_at
		FROM ad_sessions WHERE user_id = ? AND NOT completed
		ORDER BY created_at DESC LIMIT 1
	`, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open ad session: %w", err)
	}
	return session, nil
}

// MarkSessionCompleted flips completed from false to true. Only the caller
// that gets true may settle the reward.
func (c conn) MarkSessionCompleted(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := c.execAffected(ctx, `
		UPDATE ad_sessions SET completed = TRUE, completed_at = ?
		WHERE id = ? AND NOT completed
	`, at.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to complete ad session: %w", err)
	}
	return n == 1, nil
}

// InsertView records a validated view. A view whose external event ID was
// already stored is skipped and reported as false.
func (c conn) InsertView(ctx context.Context, view AdView) (bool, error) {
	var eventID, adIndex interface{}
	if view.ExternalEventID != "" {
		eventID = view.ExternalEventID
	}
	if view.AdIndex != nil {
		adIndex = *view.AdIndex
	}
	n, err := c.execAffected(ctx, `
		INSERT INTO ad_views (session_id, user_id, ad_index, external_event_id, validated, created_at)
		VALUES (?, ?, ?, ?, TRUE, ?)
		ON CONFLICT (external_event_id) DO NOTHING
	`, view.SessionID, view.UserID, adIndex, eventID, view.CreatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert ad view: %w", err)
	}
	return n == 1, nil
}

// CountValidatedViews returns a fresh count of validated views for a session
func (c conn) CountValidatedViews(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := c.queryRow(ctx, `
		SELECT COUNT(*) FROM ad_views WHERE session_id = ? AND validated
	`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ad views: %w", err)
	}
	return count, nil
}

// LastViewAt returns the time of the latest validated view. ok is false when there is none.
func (c conn) LastViewAt(ctx context.Context, sessionID string) (at time.Time, ok bool, err error) {
	err = c.queryRow(ctx, `
		SELECT created_at FROM ad_views
		WHERE session_id = ? AND validated
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, sessionID).Scan(&at)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get last ad view: %w", err)
	}
	return at, true, nil
}

// InvalidateViews marks every validated view of a session as not validated and
// returns how many changed. Rows are kept so external event IDs stay deduplicated.
func (c conn) InvalidateViews(ctx context.Context, sessionID string) (int64, error) {
	n, err := c.execAffected(ctx, `
		UPDATE ad_views SET validated = FALSE WHERE session_id = ? AND validated
	`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset ad views: %w", err)
	}
	return n, nil
}
