package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const withdrawalColumns = `id, user_id, coins, amount, bank_name, account_number, account_name,
	status, admin_id, note, requested_at, processed_at`

func scanWithdrawal(row rowScanner) (*Withdrawal, error) {
	var w Withdrawal
	var amount string
	var adminID sql.NullInt64
	var processedAt sql.NullTime
	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.Coins,
		&amount,
		&w.Bank.BankName,
		&w.Bank.AccountNumber,
		&w.Bank.AccountName,
		&w.Status,
		&adminID,
		&w.Note,
		&w.RequestedAt,
		&processedAt,
	)
	if err != nil {
		return nil, err
	}
	if w.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	if adminID.Valid {
		w.AdminID = adminID.Int64
	}
	if processedAt.Valid {
		t := processedAt.Time
		w.ProcessedAt = &t
	}
	return &w, nil
}

// CreateWithdrawal inserts a pending withdrawal and returns it with its new ID
func (c conn) CreateWithdrawal(ctx context.Context, userID, coins int64, amount decimal.Decimal, bank Bank) (*Withdrawal, error) {
	now := time.Now().UTC()
	w := &Withdrawal{
		UserID:      userID,
		Coins:       coins,
		Amount:      amount,
		Bank:        bank,
		Status:      WithdrawalStatusPending,
		RequestedAt: now,
	}
	err := c.queryRow(ctx, `
		INSERT INTO withdrawals (user_id, coins, amount, bank_name, account_number, account_name, status, requested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, userID, coins, amount.StringFixed(2), bank.BankName, bank.AccountNumber, bank.AccountName,
		string(WithdrawalStatusPending), now).Scan(&w.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert withdrawal: %w", err)
	}
	return w, nil
}

// GetWithdrawal retrieves a withdrawal by ID. It returns nil, nil when it does not exist.
func (c conn) GetWithdrawal(ctx context.Context, id int64) (*Withdrawal, error) {
	w, err := scanWithdrawal(c.queryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return w, nil
}

// ResolveWithdrawal moves a pending withdrawal to status. It reports false when
// the withdrawal was not pending any more, so two admins cannot both process it.
func (c conn) ResolveWithdrawal(ctx context.Context, id int64, status WithdrawalStatus, adminID int64, note string) (bool, error) {
	n, err := c.execAffected(ctx, `
		UPDATE withdrawals SET status = ?, admin_id = ?, note = ?, processed_at = ?
		WHERE id = ? AND status = ?
	`, string(status), adminID, note, time.Now().UTC(), id, string(WithdrawalStatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to update withdrawal %d: %w", id, err)
	}
	return n == 1, nil
}

// ListPendingWithdrawals returns pending withdrawals requested before (or at) olderThan, oldest first
func (c conn) ListPendingWithdrawals(ctx context.Context, olderThan time.Time, limit int) ([]*Withdrawal, error) {
	rows, err := c.query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE status = ? AND requested_at <= ?
		ORDER BY requested_at, id
		LIMIT ?
	`, string(WithdrawalStatusPending), olderThan.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending withdrawals: %w", err)
	}
	defer rows.Close()

	var list []*Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		list = append(list, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawals: %w", err)
	}
	return list, nil
}

// ListUserWithdrawals returns a user's most recent withdrawals, newest first
func (c conn) ListUserWithdrawals(ctx context.Context, userID int64, limit int) ([]*Withdrawal, error) {
	rows, err := c.query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE user_id = ?
		ORDER BY requested_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list user withdrawals: %w", err)
	}
	defer rows.Close()

	var list []*Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		list = append(list, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawals: %w", err)
	}
	return list, nil
}
