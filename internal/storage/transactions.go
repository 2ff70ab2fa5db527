package storage

import (
	"context"
	"fmt"
	"time"
)

// InsertTransaction appends a ledger row
func (c conn) InsertTransaction(ctx context.Context, userID, amount int64, sourceType, description string) error {
	_, err := c.exec(ctx, `
		INSERT INTO transactions (user_id, amount, source_type, description, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, amount, sourceType, description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to log %s transaction: %w", sourceType, err)
	}
	return nil
}

// ListTransactions returns a user's most recent ledger rows, newest first
func (c conn) ListTransactions(ctx context.Context, userID int64, limit int) ([]Transaction, error) {
	rows, err := c.query(ctx, `
		SELECT id, user_id, amount, source_type, description, created_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var list []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.SourceType, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return list, nil
}

// SumTransactions returns the net ledger amount for a user and source type
func (c conn) SumTransactions(ctx context.Context, userID int64, sourceType string) (int64, error) {
	var sum int64
	err := c.queryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = ? AND source_type = ?
	`, userID, sourceType).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum, nil
}
