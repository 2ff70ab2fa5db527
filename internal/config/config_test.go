package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"CONFIG_FILE", "PORT", "BOT_TOKEN", "TELEGRAM_BOT_TOKEN", "BOT_MODE", "DATABASE_PATH", "DATABASE_URL",
	"BASE_URL", "COIN_RATE", "COIN_TO_CURRENCY_RATE", "CURRENCY", "POSTBACK_SECRET", "MONETAG_ZONE_ID",
	"MONETAG_SDK_URL", "SUPPORT_CONTACT", "ADMIN_TELEGRAM_ID", "ADMIN_IDS", "TASK_REWARD", "REFERRAL_REWARD",
	"MIN_WITHDRAWAL", "REQUIRED_VIEWS", "SESSION_IDLE_RESET", "REMINDER_INTERVAL", "WEBHOOK_SECRET",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Expected port %s, got %s", DefaultPort, cfg.Port)
	}
	if cfg.TaskReward != DefaultTaskReward || cfg.ReferralReward != DefaultReferralReward {
		t.Errorf("Unexpected rewards: %d/%d", cfg.TaskReward, cfg.ReferralReward)
	}
	if cfg.MinWithdrawal != DefaultMinWithdrawal {
		t.Errorf("Expected min withdrawal %d, got %d", DefaultMinWithdrawal, cfg.MinWithdrawal)
	}
	if cfg.CoinRate.String() != DefaultCoinRate {
		t.Errorf("Expected coin rate %s, got %s", DefaultCoinRate, cfg.CoinRate)
	}
	if cfg.SessionIdleReset != 2*time.Minute {
		t.Errorf("Expected idle reset 2m, got %v", cfg.SessionIdleReset)
	}
	if cfg.BotMode != BotModePolling {
		t.Errorf("Expected polling mode, got %s", cfg.BotMode)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_TELEGRAM_ID", "111, 222")
	t.Setenv("TASK_REWARD", "300")
	t.Setenv("MIN_WITHDRAWAL", "1000")
	t.Setenv("COIN_RATE", "0.00005")
	t.Setenv("SESSION_IDLE_RESET", "0s")
	t.Setenv("BASE_URL", "https://bot.example.com/")
	t.Setenv("BOT_MODE", "webhook")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.AdminIDs) != 2 || cfg.AdminIDs[0] != 111 || cfg.AdminIDs[1] != 222 {
		t.Errorf("Unexpected admin ids: %v", cfg.AdminIDs)
	}
	if cfg.TaskReward != 300 || cfg.MinWithdrawal != 1000 {
		t.Errorf("Unexpected overrides: reward=%d min=%d", cfg.TaskReward, cfg.MinWithdrawal)
	}
	if cfg.CoinRate.String() != "0.00005" {
		t.Errorf("Expected coin rate 0.00005, got %s", cfg.CoinRate)
	}
	if cfg.SessionIdleReset != 0 {
		t.Errorf("Expected idle reset disabled, got %v", cfg.SessionIdleReset)
	}
	if cfg.BaseURL != "https://bot.example.com" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.BaseURL)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "bot_token: \"999:file\"\nport: \"9000\"\nreferral_reward: 75\nadmin_ids: [5, 6]\nreminder_interval: 30m\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BotToken != "999:file" {
		t.Errorf("Expected token from file, got %s", cfg.BotToken)
	}
	if cfg.Port != "9100" {
		t.Errorf("Expected env to override file port, got %s", cfg.Port)
	}
	if cfg.ReferralReward != 75 {
		t.Errorf("Expected referral reward 75, got %d", cfg.ReferralReward)
	}
	if len(cfg.AdminIDs) != 2 {
		t.Errorf("Expected 2 admin ids from file, got %v", cfg.AdminIDs)
	}
	if cfg.ReminderInterval != 30*time.Minute {
		t.Errorf("Expected reminder interval 30m, got %v", cfg.ReminderInterval)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing token", env: map[string]string{}},
		{name: "bad coin rate", env: map[string]string{"BOT_TOKEN": "x", "COIN_RATE": "abc"}},
		{name: "zero coin rate", env: map[string]string{"BOT_TOKEN": "x", "COIN_RATE": "0"}},
		{name: "webhook without base url", env: map[string]string{"BOT_TOKEN": "x", "BOT_MODE": "webhook"}},
		{name: "webhook without secret", env: map[string]string{"BOT_TOKEN": "x", "BOT_MODE": "webhook", "BASE_URL": "https://bot.example.com"}},
		{name: "webhook secret with bad characters", env: map[string]string{"BOT_TOKEN": "x", "BOT_MODE": "webhook", "BASE_URL": "https://bot.example.com", "WEBHOOK_SECRET": "not allowed!"}},
		{name: "unknown bot mode", env: map[string]string{"BOT_TOKEN": "x", "BOT_MODE": "carrier-pigeon"}},
		{name: "bad reward", env: map[string]string{"BOT_TOKEN": "x", "TASK_REWARD": "lots"}},
		{name: "bad admin id", env: map[string]string{"BOT_TOKEN": "x", "ADMIN_IDS": "1,two"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoadWebhookMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("BOT_MODE", BotModeWebhook)
	t.Setenv("BASE_URL", "https://bot.example.com/")
	t.Setenv("WEBHOOK_SECRET", "s3cret_Token-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.WebhookSecret != "s3cret_Token-1" {
		t.Errorf("Expected webhook secret from env, got %q", cfg.WebhookSecret)
	}
	if cfg.BaseURL != "https://bot.example.com" {
		t.Errorf("Expected trailing slash trimmed, got %q", cfg.BaseURL)
	}
}

func TestParseAdminIDs(t *testing.T) {
	ids, err := ParseAdminIDs(" 1,,2 ,3")
	if err != nil {
		t.Fatalf("ParseAdminIDs failed: %v", err)
	}
	if len(ids) != 3 || ids[2] != 3 {
		t.Errorf("Unexpected ids: %v", ids)
	}
}
