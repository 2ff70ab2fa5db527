package storage

import (
	"context"
	"fmt"
	"time"
)

// CreateHelpRequest stores a support message
func (c conn) CreateHelpRequest(ctx context.Context, userID int64, message string) (*HelpRequest, error) {
	h := &HelpRequest{UserID: userID, Message: message, Status: HelpStatusOpen, CreatedAt: time.Now().UTC()}
	err := c.queryRow(ctx, `
		INSERT INTO help_requests (user_id, message, status, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`, userID, message, HelpStatusOpen, h.CreatedAt).Scan(&h.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert help request: %w", err)
	}
	return h, nil
}

// AnswerHelpRequests marks every open request of a user as answered
func (c conn) AnswerHelpRequests(ctx context.Context, userID int64) (int64, error) {
	n, err := c.execAffected(ctx, `
		UPDATE help_requests SET status = ? WHERE user_id = ? AND status = ?
	`, HelpStatusAnswered, userID, HelpStatusOpen)
	if err != nil {
		return 0, fmt.Errorf("failed to answer help requests: %w", err)
	}
	return n, nil
}

// CountOpenHelpRequests returns how many help requests are still open
func (c conn) CountOpenHelpRequests(ctx context.Context) (int64, error) {
	var n int64
	if err := c.queryRow(ctx, `SELECT COUNT(*) FROM help_requests WHERE status = ?`, HelpStatusOpen).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count help requests: %w", err)
	}
	return n, nil
}

// LogAdminAction appends an audit row for an admin command
func (c conn) LogAdminAction(ctx context.Context, adminID int64, action, details string) error {
	_, err := c.exec(ctx, `
		INSERT INTO admin_logs (admin_id, action, details, created_at)
		VALUES (?, ?, ?, ?)
	`, adminID, action, details, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to log admin action: %w", err)
	}
	return nil
}

// CountAdminActions returns how many audit rows exist for an action
func (c conn) CountAdminActions(ctx context.Context, action string) (int64, error) {
	var n int64
	if err := c.queryRow(ctx, `SELECT COUNT(*) FROM admin_logs WHERE action = ?`, action).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count admin actions: %w", err)
	}
	return n, nil
}
