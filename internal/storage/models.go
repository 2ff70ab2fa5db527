package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a bot user keyed by Telegram ID
type User struct {
	TelegramID       int64     `json:"telegram_id" db:"telegram_id"`
	Username         string    `json:"username" db:"username"`
	FirstName        string    `json:"first_name" db:"first_name"`
	Coins            int64     `json:"coins" db:"coins"`
	Bank             Bank      `json:"bank"`
	ReferredBy       int64     `json:"referred_by,omitempty" db:"referred_by"` // 0 when nobody referred the user
	ReferralCredited bool      `json:"referral_credited" db:"referral_credited"`
	IsBanned         bool      `json:"is_banned" db:"is_banned"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Bank is the payout destination linked to a user
type Bank struct {
	BankName      string `json:"bank_name" db:"bank_name"`
	AccountNumber string `json:"account_number" db:"account_number"`
	AccountName   string `json:"account_name" db:"account_name"`
}

// IsZero reports whether no bank account is on file
func (b Bank) IsZero() bool {
	return b.BankName == "" && b.AccountNumber == ""
}

// AdSession is one "watch N ads" task instance
type AdSession struct {
	ID          string     `json:"id" db:"id"`
	UserID      int64      `json:"user_id" db:"user_id"`
	Completed   bool       `json:"completed" db:"completed"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// AdView is one validated ad-watch event
type AdView struct {
	ID              int64     `json:"id" db:"id"`
	SessionID       string    `json:"session_id" db:"session_id"`
	UserID          int64     `json:"user_id" db:"user_id"`
	AdIndex         *int      `json:"ad_index,omitempty" db:"ad_index"`
	ExternalEventID string    `json:"external_event_id,omitempty" db:"external_event_id"`
	Validated       bool      `json:"validated" db:"validated"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// WithdrawalStatus represents the status of a payout request
type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "pending"
	WithdrawalStatusApproved WithdrawalStatus = "approved"
	WithdrawalStatusDeclined WithdrawalStatus = "declined"
)

// Withdrawal is one payout request. Bank details are a snapshot taken at request time.
type Withdrawal struct {
	ID          int64            `json:"id" db:"id"`
	UserID      int64            `json:"user_id" db:"user_id"`
	Coins       int64            `json:"coins" db:"coins"`
	Amount      decimal.Decimal  `json:"amount" db:"amount"`
	Bank        Bank             `json:"bank"`
	Status      WithdrawalStatus `json:"status" db:"status"`
	AdminID     int64            `json:"admin_id,omitempty" db:"admin_id"`
	Note        string           `json:"note,omitempty" db:"note"`
	RequestedAt time.Time        `json:"requested_at" db:"requested_at"`
	ProcessedAt *time.Time       `json:"processed_at,omitempty" db:"processed_at"`
}

// Ledger source types
const (
	SourceTaskReward       = "TASK_REWARD"
	SourceReferralBonus    = "REFERRAL_BONUS"
	SourceWithdrawalDebit  = "WITHDRAWAL_DEBIT"
	SourceWithdrawalRefund = "WITHDRAWAL_REFUND"
)

// Transaction represents a balance change
type Transaction struct {
	ID          int64     `json:"id" db:"id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	Amount      int64     `json:"amount" db:"amount"`           // can be negative
	SourceType  string    `json:"source_type" db:"source_type"` // one of the Source* constants
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// HelpRequest is a support message sent by a user
type HelpRequest struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Message   string    `json:"message" db:"message"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Help request statuses
const (
	HelpStatusOpen     = "open"
	HelpStatusAnswered = "answered"
)

// Stats is the admin dashboard summary
type Stats struct {
	Users              int64
	BannedUsers        int64
	CoinsInCirculation int64
	CompletedSessions  int64
	PendingWithdrawals int64
	PendingCoins       int64
}
