package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const userColumns = `telegram_id, username, first_name, coins, bank_name, account_number, account_name,
	referred_by, referral_credited, is_banned, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	var user User
	var referredBy sql.NullInt64
	err := row.Scan(
		&user.TelegramID,
		&user.Username,
		&user.FirstName,
		&user.Coins,
		&user.Bank.BankName,
		&user.Bank.AccountNumber,
		&user.Bank.AccountName,
		&referredBy,
		&user.ReferralCredited,
		&user.IsBanned,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if referredBy.Valid {
		user.ReferredBy = referredBy.Int64
	}
	return &user, nil
}

// GetUser retrieves a user by Telegram ID. It returns nil, nil when the user does not exist.
func (c conn) GetUser(ctx context.Context, telegramID int64) (*User, error) {
	user, err := scanUser(c.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, telegramID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by telegram_id: %w", err)
	}
	return user, nil
}

// CreateUser inserts a new user. referredBy is 0 when there is no referrer.
func (c conn) CreateUser(ctx context.Context, telegramID int64, username, firstName string, referredBy int64) error {
	now := time.Now().UTC()
	var ref interface{}
	if referredBy != 0 {
		ref = referredBy
	}
	_, err := c.exec(ctx, `
		INSERT INTO users (telegram_id, username, first_name, referred_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, telegramID, username, firstName, ref, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateUserNames refreshes the display fields Telegram may change at any time
func (c conn) UpdateUserNames(ctx context.Context, telegramID int64, username, firstName string) error {
	_, err := c.exec(ctx, `
		UPDATE users SET username = ?, first_name = ?, updated_at = ?
		WHERE telegram_id = ?
	`, username, firstName, time.Now().UTC(), telegramID)
	if err != nil {
		return fmt.Errorf("failed to update user names: %w", err)
	}
	return nil
}

// CreditCoins adds coins to a user's balance
func (c conn) CreditCoins(ctx context.Context, telegramID, coins int64) error {
	n, err := c.execAffected(ctx, `
		UPDATE users SET coins = coins + ?, updated_at = ?
		WHERE telegram_id = ?
	`, coins, time.Now().UTC(), telegramID)
	if err != nil {
		return fmt.Errorf("failed to credit user %d: %w", telegramID, err)
	}
	if n == 0 {
		return fmt.Errorf("failed to credit user %d: user not found", telegramID)
	}
	return nil
}

// DebitCoins removes coins only if the balance covers them. It reports false when it does not.
func (c conn) DebitCoins(ctx context.Context, telegramID, coins int64) (bool, error) {
	n, err := c.execAffected(ctx, `
		UPDATE users SET coins = coins - ?, updated_at = ?
		WHERE telegram_id = ? AND coins >= ?
	`, coins, time.Now().UTC(), telegramID, coins)
	if err != nil {
		return false, fmt.Errorf("failed to debit user %d: %w", telegramID, err)
	}
	return n == 1, nil
}

// SetBank writes bank details onto the user record
func (c conn) SetBank(ctx context.Context, telegramID int64, bank Bank) error {
	_, err := c.exec(ctx, `
		UPDATE users SET bank_name = ?, account_number = ?, account_name = ?, updated_at = ?
		WHERE telegram_id = ?
	`, bank.BankName, bank.AccountNumber, bank.AccountName, time.Now().UTC(), telegramID)
	if err != nil {
		return fmt.Errorf("failed to set bank details: %w", err)
	}
	return nil
}

// ReplaceBank swaps bank details only while the stored details still equal
// current exactly. It reports false when they changed in the meantime.
func (c conn) ReplaceBank(ctx context.Context, telegramID int64, current, next Bank) (bool, error) {
	n, err := c.execAffected(ctx, `
		UPDATE users SET bank_name = ?, account_number = ?, account_name = ?, updated_at = ?
		WHERE telegram_id = ? AND bank_name = ? AND account_number = ?
	`, next.BankName, next.AccountNumber, next.AccountName, time.Now().UTC(),
		telegramID, current.BankName, current.AccountNumber)
	if err != nil {
		return false, fmt.Errorf("failed to replace bank details: %w", err)
	}
	return n == 1, nil
}

// SetBanned flips the soft-ban flag. It reports false when the user does not exist.
func (c conn) SetBanned(ctx context.Context, telegramID int64, banned bool) (bool, error) {
	n, err := c.execAffected(ctx, `
		UPDATE users SET is_banned = ?, updated_at = ? WHERE telegram_id = ?
	`, banned, time.Now().UTC(), telegramID)
	if err != nil {
		return false, fmt.Errorf("failed to update ban flag: %w", err)
	}
	return n == 1, nil
}

// MarkReferralCredited sets referral_credited if it is still false. Only the caller
// that gets true may pay the referral bonus.
func (c conn) MarkReferralCredited(ctx context.Context, telegramID int64) (bool, error) {
	n, err := c.execAffected(ctx, `
		UPDATE users SET referral_credited = TRUE, updated_at = ?
		WHERE telegram_id = ? AND referred_by IS NOT NULL AND NOT referral_credited
	`, time.Now().UTC(), telegramID)
	if err != nil {
		return false, fmt.Errorf("failed to mark referral credited: %w", err)
	}
	return n == 1, nil
}

// CountReferrals returns how many users were referred by telegramID
func (c conn) CountReferrals(ctx context.Context, telegramID int64) (int64, error) {
	var count int64
	if err := c.queryRow(ctx, `SELECT COUNT(*) FROM users WHERE referred_by = ?`, telegramID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count referrals: %w", err)
	}
	return count, nil
}

// ListActiveUserIDs returns every user that is not banned, oldest first
func (c conn) ListActiveUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := c.query(ctx, `SELECT telegram_id FROM users WHERE NOT is_banned ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return ids, nil
}

// GetStats returns the admin summary numbers
func (c conn) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	err := c.queryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_banned THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(coins), 0)
		FROM users
	`).Scan(&stats.Users, &stats.BannedUsers, &stats.CoinsInCirculation)
	if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}

	if err := c.queryRow(ctx, `SELECT COUNT(*) FROM ad_sessions WHERE completed`).Scan(&stats.CompletedSessions); err != nil {
		return nil, fmt.Errorf("failed to get session stats: %w", err)
	}

	err = c.queryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(coins), 0) FROM withdrawals WHERE status = ?
	`, string(WithdrawalStatusPending)).Scan(&stats.PendingWithdrawals, &stats.PendingCoins)
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal stats: %w", err)
	}
	return &stats, nil
}
