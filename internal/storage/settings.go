package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Setting keys
const (
	SettingTasksEnabled   = "tasks_enabled"
	SettingTaskReward     = "task_reward"
	SettingReferralReward = "referral_reward"
	SettingMinWithdrawal  = "min_withdrawal"
	SettingCoinRate       = "coin_rate"
)

// GetSetting returns the stored value for key. ok is false when the key is unset.
func (c conn) GetSetting(ctx context.Context, key string) (value string, ok bool, err error) {
	err = c.queryRow(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, true, nil
}

// GetSettings returns every stored setting
func (c conn) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := c.query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}
	return settings, nil
}

// SetSetting upserts a setting
func (c conn) SetSetting(ctx context.Context, key, value string) error {
	_, err := c.exec(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}
