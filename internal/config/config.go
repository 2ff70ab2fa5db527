package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
)

const (
	DefaultPort             = "10000"
	DefaultDatabaseURL      = "./data/earnings.db"
	DefaultTaskReward       = 200
	DefaultReferralReward   = 50
	DefaultMinWithdrawal    = 60000
	DefaultCoinRate         = "0.001"
	DefaultCurrency         = "₦"
	DefaultRequiredViews    = 10
	DefaultSessionIdleReset = 2 * time.Minute
	DefaultReminderInterval = 6 * time.Hour
	DefaultMonetagSDKURL    = "https://libtl.com/sdk.js"

	BotModePolling = "polling"
	BotModeWebhook = "webhook"

	// WebhookPath is where Telegram delivers updates in webhook mode
	WebhookPath = "/telegram/webhook"
)

// webhookSecretPattern is the character set Telegram accepts for secret_token
var webhookSecretPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

// Config holds process configuration. Values come from an optional YAML file
// (CONFIG_FILE) and are then overridden by environment variables.
type Config struct {
	Port        string  `yaml:"port"`
	BotToken    string  `yaml:"bot_token"`
	BotMode     string  `yaml:"bot_mode"`
	DatabaseURL string  `yaml:"database_url"`
	BaseURL     string  `yaml:"base_url"`
	AdminIDs    []int64 `yaml:"admin_ids"`

	TaskReward     int64  `yaml:"task_reward"`
	ReferralReward int64  `yaml:"referral_reward"`
	MinWithdrawal  int64  `yaml:"min_withdrawal"`
	CoinRateText   string `yaml:"coin_rate"`
	Currency       string `yaml:"currency"`

	RequiredViews    int           `yaml:"required_views"`
	SessionIdleReset time.Duration `yaml:"session_idle_reset"`
	ReminderInterval time.Duration `yaml:"reminder_interval"`

	PostbackSecret string `yaml:"postback_secret"`
	MonetagZoneID  string `yaml:"monetag_zone_id"`
	MonetagSDKURL  string `yaml:"monetag_sdk_url"`
	SupportContact string `yaml:"support_contact"`

	// WebhookSecret is registered with Telegram and must accompany every webhook update
	WebhookSecret string `yaml:"webhook_secret"`

	// CoinRate is CoinRateText parsed during Load.
	CoinRate decimal.Decimal `yaml:"-"`
}

// Defaults returns a Config with every tunable set to its default value
func Defaults() Config {
	return Config{
		Port:             DefaultPort,
		BotMode:          BotModePolling,
		DatabaseURL:      DefaultDatabaseURL,
		TaskReward:       DefaultTaskReward,
		ReferralReward:   DefaultReferralReward,
		MinWithdrawal:    DefaultMinWithdrawal,
		CoinRateText:     DefaultCoinRate,
		Currency:         DefaultCurrency,
		RequiredViews:    DefaultRequiredViews,
		SessionIdleReset: DefaultSessionIdleReset,
		ReminderInterval: DefaultReminderInterval,
		MonetagSDKURL:    DefaultMonetagSDKURL,
	}
}

// Load reads .env (if present), the optional YAML file and the environment
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Info("config_dotenv_skipped", ".env file not found, using system environment variables")
	}

	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Port, "PORT")
	setString(&cfg.BotToken, "BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	setString(&cfg.BotMode, "BOT_MODE")
	setString(&cfg.DatabaseURL, "DATABASE_PATH", "DATABASE_URL")
	setString(&cfg.BaseURL, "BASE_URL")
	setString(&cfg.CoinRateText, "COIN_RATE", "COIN_TO_CURRENCY_RATE")
	setString(&cfg.Currency, "CURRENCY")
	setString(&cfg.PostbackSecret, "POSTBACK_SECRET")
	setString(&cfg.MonetagZoneID, "MONETAG_ZONE_ID")
	setString(&cfg.MonetagSDKURL, "MONETAG_SDK_URL")
	setString(&cfg.SupportContact, "SUPPORT_CONTACT")
	setString(&cfg.WebhookSecret, "WEBHOOK_SECRET")

	if raw := envValue("ADMIN_TELEGRAM_ID", "ADMIN_IDS"); raw != "" {
		ids, err := ParseAdminIDs(raw)
		if err != nil {
			return err
		}
		cfg.AdminIDs = ids
	}

	for _, item := range []struct {
		dst *int64
		key string
	}{
		{&cfg.TaskReward, "TASK_REWARD"},
		{&cfg.ReferralReward, "REFERRAL_REWARD"},
		{&cfg.MinWithdrawal, "MIN_WITHDRAWAL"},
	} {
		if raw := os.Getenv(item.key); raw != "" {
			v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", item.key, err)
			}
			*item.dst = v
		}
	}

	if raw := os.Getenv("REQUIRED_VIEWS"); raw != "" {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid REQUIRED_VIEWS: %w", err)
		}
		cfg.RequiredViews = v
	}

	for _, item := range []struct {
		dst *time.Duration
		key string
	}{
		{&cfg.SessionIdleReset, "SESSION_IDLE_RESET"},
		{&cfg.ReminderInterval, "REMINDER_INTERVAL"},
	} {
		if raw := os.Getenv(item.key); raw != "" {
			d, err := time.ParseDuration(strings.TrimSpace(raw))
			if err != nil {
				return fmt.Errorf("invalid %s: %w", item.key, err)
			}
			*item.dst = d
		}
	}
	return nil
}

func (c *Config) validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}
	if c.BotMode != BotModePolling && c.BotMode != BotModeWebhook {
		return fmt.Errorf("invalid BOT_MODE %q: must be %q or %q", c.BotMode, BotModePolling, BotModeWebhook)
	}
	if c.BotMode == BotModeWebhook {
		if c.BaseURL == "" {
			return fmt.Errorf("BASE_URL is required when BOT_MODE=%s", BotModeWebhook)
		}
		if c.WebhookSecret == "" {
			return fmt.Errorf("WEBHOOK_SECRET is required when BOT_MODE=%s", BotModeWebhook)
		}
		if !webhookSecretPattern.MatchString(c.WebhookSecret) {
			return fmt.Errorf("WEBHOOK_SECRET must be 1-256 characters of A-Z, a-z, 0-9, _ and -")
		}
	}
	if c.TaskReward <= 0 || c.ReferralReward < 0 || c.MinWithdrawal <= 0 {
		return fmt.Errorf("rewards and minimum withdrawal must be positive")
	}
	if c.RequiredViews <= 0 {
		return fmt.Errorf("REQUIRED_VIEWS must be positive")
	}
	if c.SessionIdleReset < 0 || c.ReminderInterval < 0 {
		return fmt.Errorf("durations must not be negative")
	}

	rate, err := decimal.NewFromString(c.CoinRateText)
	if err != nil {
		return fmt.Errorf("invalid COIN_RATE %q: %w", c.CoinRateText, err)
	}
	if !rate.IsPositive() {
		return fmt.Errorf("COIN_RATE must be positive")
	}
	c.CoinRate = rate
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return nil
}

// ParseAdminIDs parses a comma separated list of Telegram user ids
func ParseAdminIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func setString(dst *string, keys ...string) {
	if v := envValue(keys...); v != "" {
		*dst = v
	}
}

// envValue returns the value of the last key that is set, so later names win
// over legacy aliases listed before them.
func envValue(keys ...string) string {
	value := ""
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			value = v
		}
	}
	return value
}
