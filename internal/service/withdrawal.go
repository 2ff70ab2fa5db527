package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
	"github.com/Ejimurphy/task-earnings-bot/internal/storage"
)

// WithdrawalService handles payout requests and their admin review
type WithdrawalService struct {
	store    *storage.Store
	rules    *RulesService
	notifier *NotificationService
	admins   Admins
}

// NewWithdrawalService creates a new withdrawal service
func NewWithdrawalService(store *storage.Store, rules *RulesService, notifier *NotificationService, admins Admins) *WithdrawalService {
	return &WithdrawalService{store: store, rules: rules, notifier: notifier, admins: admins}
}

// Request debits coins and opens a pending withdrawal to the bank account on file
func (s *WithdrawalService) Request(ctx context.Context, userID, coins int64) (*storage.Withdrawal, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.IsBanned {
		return nil, ErrBanned
	}
	if user.Bank.IsZero() {
		return nil, ErrNoBankOnFile
	}

	rules, err := s.rules.Current(ctx)
	if err != nil {
		return nil, err
	}
	if coins < rules.MinWithdrawal {
		return nil, ErrBelowMinimum.withMessage("the minimum withdrawal is %d coins", rules.MinWithdrawal)
	}
	if coins > user.Coins {
		return nil, ErrInsufficientBalance.withMessage("insufficient balance: you have %d coins", user.Coins)
	}

	amount := rules.CoinsToCurrency(coins)

	var withdrawal *storage.Withdrawal
	err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
		debited, err := tx.DebitCoins(ctx, userID, coins)
		if err != nil {
			return err
		}
		if !debited {
			return ErrInsufficientBalance
		}

		withdrawal, err = tx.CreateWithdrawal(ctx, userID, coins, amount, user.Bank)
		if err != nil {
			return err
		}

		return tx.InsertTransaction(ctx, userID, -coins, storage.SourceWithdrawalDebit,
			fmt.Sprintf("Withdrawal #%d (%s)", withdrawal.ID, rules.FormatAmount(amount)))
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(userID, "withdrawal_requested", fmt.Sprintf("withdrawal_id=%d coins=%d amount=%s", withdrawal.ID, coins, amount.StringFixed(2)))

	s.notifier.NotifyWithdrawalRequested(withdrawal, user)
	return withdrawal, nil
}

// Approve marks a pending withdrawal as paid. Balances do not change.
func (s *WithdrawalService) Approve(ctx context.Context, withdrawalID, adminID int64) (*storage.Withdrawal, error) {
	w, err := s.resolve(ctx, withdrawalID, adminID, storage.WithdrawalStatusApproved, "")
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyWithdrawalApproved(w)
	return w, nil
}

// Decline rejects a pending withdrawal and refunds its coins in the same transaction
func (s *WithdrawalService) Decline(ctx context.Context, withdrawalID, adminID int64, reason string) (*storage.Withdrawal, error) {
	w, err := s.resolve(ctx, withdrawalID, adminID, storage.WithdrawalStatusDeclined, reason)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyWithdrawalDeclined(w)
	return w, nil
}

func (s *WithdrawalService) resolve(ctx context.Context, withdrawalID, adminID int64, status storage.WithdrawalStatus, note string) (*storage.Withdrawal, error) {
	if !s.admins.Contains(adminID) {
		return nil, ErrUnauthorized
	}

	var w *storage.Withdrawal
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		w, err = tx.GetWithdrawal(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if w == nil {
			return ErrWithdrawalNotFound
		}
		if w.Status != storage.WithdrawalStatusPending {
			return ErrAlreadyProcessed
		}

		changed, err := tx.ResolveWithdrawal(ctx, withdrawalID, status, adminID, note)
		if err != nil {
			return err
		}
		if !changed {
			return ErrAlreadyProcessed
		}

		if status == storage.WithdrawalStatusDeclined {
			if err := tx.CreditCoins(ctx, w.UserID, w.Coins); err != nil {
				return err
			}
			if err := tx.InsertTransaction(ctx, w.UserID, w.Coins, storage.SourceWithdrawalRefund,
				fmt.Sprintf("Refund for declined withdrawal #%d", w.ID)); err != nil {
				return err
			}
		}

		return tx.LogAdminAction(ctx, adminID, string(status)+"_withdrawal",
			fmt.Sprintf("withdrawal_id=%d user_id=%d coins=%d note=%q", w.ID, w.UserID, w.Coins, note))
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	w.Status = status
	w.AdminID = adminID
	w.Note = note
	w.ProcessedAt = &now

	logger.Debug(adminID, "withdrawal_"+string(status), fmt.Sprintf("withdrawal_id=%d user_id=%d coins=%d", w.ID, w.UserID, w.Coins))
	return w, nil
}

// Pending lists pending withdrawals, oldest first, for an admin
func (s *WithdrawalService) Pending(ctx context.Context, adminID int64, limit int) ([]*storage.Withdrawal, error) {
	if !s.admins.Contains(adminID) {
		return nil, ErrUnauthorized
	}
	return s.store.ListPendingWithdrawals(ctx, time.Now(), limit)
}

// History lists a user's most recent withdrawals
func (s *WithdrawalService) History(ctx context.Context, userID int64, limit int) ([]*storage.Withdrawal, error) {
	return s.store.ListUserWithdrawals(ctx, userID, limit)
}
