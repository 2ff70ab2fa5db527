package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Ejimurphy/task-earnings-bot/internal/config"
	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
	"github.com/Ejimurphy/task-earnings-bot/internal/storage"
)

// Rules are the tunable economy constants in effect right now
type Rules struct {
	TasksEnabled   bool
	TaskReward     int64
	ReferralReward int64
	MinWithdrawal  int64
	CoinRate       decimal.Decimal
	RequiredViews  int
	Currency       string
}

// CoinsToCurrency converts coins to the payout currency, rounded to 2 places
func (r Rules) CoinsToCurrency(coins int64) decimal.Decimal {
	return decimal.NewFromInt(coins).Mul(r.CoinRate).Round(2)
}

// FormatAmount renders a currency amount with the configured symbol
func (r Rules) FormatAmount(amount decimal.Decimal) string {
	return r.Currency + amount.StringFixed(2)
}

// RulesService reads settings from the database, falling back to configured defaults
type RulesService struct {
	store    *storage.Store
	defaults Rules
}

// NewRulesService creates a rules service with defaults taken from cfg
func NewRulesService(store *storage.Store, cfg config.Config) *RulesService {
	return &RulesService{
		store: store,
		defaults: Rules{
			TasksEnabled:   true,
			TaskReward:     cfg.TaskReward,
			ReferralReward: cfg.ReferralReward,
			MinWithdrawal:  cfg.MinWithdrawal,
			CoinRate:       cfg.CoinRate,
			RequiredViews:  cfg.RequiredViews,
			Currency:       cfg.Currency,
		},
	}
}

// Defaults returns the configured rules without database overrides
func (s *RulesService) Defaults() Rules {
	return s.defaults
}

// Current returns the rules with database overrides applied. Unparseable stored
// values are logged and ignored.
func (s *RulesService) Current(ctx context.Context) (Rules, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return Rules{}, err
	}
	return s.apply(settings), nil
}

func (s *RulesService) apply(settings map[string]string) Rules {
	rules := s.defaults
	for key, raw := range settings {
		if err := setRule(&rules, key, raw); err != nil {
			logger.Debug(0, "rules_invalid_setting", fmt.Sprintf("key=%s value=%q error=%v", key, raw, err))
		}
	}
	return rules
}

// Set validates and stores one setting. It returns the rules after the change.
func (s *RulesService) Set(ctx context.Context, key, value string) (Rules, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)

	var check Rules
	if err := setRule(&check, key, value); err != nil {
		return Rules{}, err
	}
	if err := s.store.SetSetting(ctx, key, value); err != nil {
		return Rules{}, err
	}
	return s.Current(ctx)
}

// SetTasksEnabled toggles the ad task feature
func (s *RulesService) SetTasksEnabled(ctx context.Context, enabled bool) error {
	return s.store.SetSetting(ctx, storage.SettingTasksEnabled, strconv.FormatBool(enabled))
}

// SettingKeys lists the keys accepted by Set
func SettingKeys() []string {
	return []string{
		storage.SettingTasksEnabled,
		storage.SettingTaskReward,
		storage.SettingReferralReward,
		storage.SettingMinWithdrawal,
		storage.SettingCoinRate,
	}
}

func setRule(r *Rules, key, raw string) error {
	switch key {
	case storage.SettingTasksEnabled:
		v, err := parseSwitch(raw)
		if err != nil {
			return err
		}
		r.TasksEnabled = v
	case storage.SettingTaskReward:
		v, err := parsePositive(key, raw)
		if err != nil {
			return err
		}
		r.TaskReward = v
	case storage.SettingReferralReward:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return invalidInput("%s must be a whole number of coins, zero or more", key)
		}
		r.ReferralReward = v
	case storage.SettingMinWithdrawal:
		v, err := parsePositive(key, raw)
		if err != nil {
			return err
		}
		r.MinWithdrawal = v
	case storage.SettingCoinRate:
		v, err := decimal.NewFromString(raw)
		if err != nil || !v.IsPositive() {
			return invalidInput("%s must be a positive decimal number", key)
		}
		r.CoinRate = v
	default:
		return ErrUnknownSetting.withMessage("unknown setting %q, use one of: %s", key, strings.Join(SettingKeys(), ", "))
	}
	return nil
}

func parsePositive(key, raw string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, invalidInput("%s must be a positive whole number of coins", key)
	}
	return v, nil
}

// parseSwitch accepts on/off in addition to the strconv boolean spellings
func parseSwitch(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "on", "enable", "enabled", "yes":
		return true, nil
	case "off", "disable", "disabled", "no":
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalidInput("expected on or off, got %q", raw)
	}
	return v, nil
}
