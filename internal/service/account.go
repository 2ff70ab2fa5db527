package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"

	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
	"github.com/Ejimurphy/task-earnings-bot/internal/storage"
)

const (
	minAccountDigits = 6
	maxAccountDigits = 20
	qrCodeSize       = 256
)

// Wallet is a user's balance summary
type Wallet struct {
	User      *storage.User
	Coins     int64
	Amount    decimal.Decimal
	Rules     Rules
	Referrals int64
}

// Referral is a user's share link and referral stats
type Referral struct {
	Link   string
	Count  int64
	Earned int64
	QRCode []byte // PNG of Link
}

// AccountService handles registration, bank details, wallets and referrals
type AccountService struct {
	store    *storage.Store
	rules    *RulesService
	notifier *NotificationService
}

// NewAccountService creates a new account service
func NewAccountService(store *storage.Store, rules *RulesService, notifier *NotificationService) *AccountService {
	return &AccountService{store: store, rules: rules, notifier: notifier}
}

// Register creates the user on first contact and refreshes names afterwards.
// payload is the /start parameter; a valid referrer is only recorded on creation.
func (s *AccountService) Register(ctx context.Context, telegramID int64, username, firstName, payload string) (*storage.User, bool, error) {
	existing, err := s.store.GetUser(ctx, telegramID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if existing.Username != username || existing.FirstName != firstName {
			if err := s.store.UpdateUserNames(ctx, telegramID, username, firstName); err != nil {
				return nil, false, err
			}
			existing.Username = username
			existing.FirstName = firstName
		}
		return existing, false, nil
	}

	referrerID, err := s.resolveReferrer(ctx, telegramID, payload)
	if err != nil {
		return nil, false, err
	}

	if err := s.store.CreateUser(ctx, telegramID, username, firstName, referrerID); err != nil {
		// Lost a race with a concurrent /start for the same user.
		if user, getErr := s.store.GetUser(ctx, telegramID); getErr == nil && user != nil {
			return user, false, nil
		}
		return nil, false, err
	}

	user, err := s.store.GetUser(ctx, telegramID)
	if err != nil {
		return nil, false, err
	}
	if user == nil {
		return nil, false, fmt.Errorf("user %d missing after insert", telegramID)
	}

	logger.Debug(telegramID, "user_registered", fmt.Sprintf("username=%s referred_by=%d", username, referrerID))

	if referrerID != 0 {
		s.notifier.NotifyReferralJoined(referrerID, firstName)
	}
	return user, true, nil
}

// resolveReferrer returns the referrer named by payload, or 0 when it is not an existing other user
func (s *AccountService) resolveReferrer(ctx context.Context, telegramID int64, payload string) (int64, error) {
	referrerID, ok := ParseReferralPayload(payload)
	if !ok {
		return 0, nil
	}
	if referrerID == telegramID {
		logger.Debug(telegramID, "referral_ignored", "self referral")
		return 0, nil
	}
	referrer, err := s.store.GetUser(ctx, referrerID)
	if err != nil {
		return 0, err
	}
	if referrer == nil {
		logger.Debug(telegramID, "referral_ignored", fmt.Sprintf("unknown referrer=%d", referrerID))
		return 0, nil
	}
	return referrerID, nil
}

// ParseReferralPayload extracts a referrer ID from a /start payload such as "123" or "ref_123"
func ParseReferralPayload(payload string) (int64, bool) {
	p := strings.TrimSpace(payload)
	p = strings.TrimPrefix(p, "ref_")
	p = strings.TrimPrefix(p, "ref")
	if p == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(p, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// SaveBank stores first-time bank details from a "Bank Name, Account Number, Account Holder Name" message
func (s *AccountService) SaveBank(ctx context.Context, telegramID int64, text string) (storage.Bank, error) {
	bank, err := ParseBankDetails(text)
	if err != nil {
		return storage.Bank{}, err
	}

	user, err := s.store.GetUser(ctx, telegramID)
	if err != nil {
		return storage.Bank{}, err
	}
	if user == nil {
		return storage.Bank{}, ErrUserNotFound
	}
	if !user.Bank.IsZero() {
		return storage.Bank{}, ErrBankOnFile
	}

	if err := s.store.SetBank(ctx, telegramID, bank); err != nil {
		return storage.Bank{}, err
	}
	logger.Debug(telegramID, "bank_saved", fmt.Sprintf("bank=%s account=%s", bank.BankName, maskAccount(bank.AccountNumber)))
	return bank, nil
}

// ChangeBank replaces bank details. The first line of text must repeat the bank
// name (any letter case) and account number on file; the second line holds the
// new details.
func (s *AccountService) ChangeBank(ctx context.Context, telegramID int64, text string) (storage.Bank, error) {
	old, next, err := ParseBankChange(text)
	if err != nil {
		return storage.Bank{}, err
	}

	err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
		user, err := tx.GetUser(ctx, telegramID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}
		if user.Bank.IsZero() {
			return ErrNoBankOnFile
		}
		if !sameBankAccount(user.Bank, old) {
			logger.Debug(telegramID, "bank_change_mismatch", fmt.Sprintf("claimed_bank=%s claimed_account=%s", old.BankName, maskAccount(old.AccountNumber)))
			return ErrMismatchedOldDetails
		}

		replaced, err := tx.ReplaceBank(ctx, telegramID, user.Bank, next)
		if err != nil {
			return err
		}
		if !replaced {
			return ErrMismatchedOldDetails
		}
		return nil
	})
	if err != nil {
		return storage.Bank{}, err
	}

	logger.Debug(telegramID, "bank_changed", fmt.Sprintf("bank=%s account=%s", next.BankName, maskAccount(next.AccountNumber)))
	return next, nil
}

// sameBankAccount compares bank names with Unicode case folding and account numbers exactly
func sameBankAccount(onFile, claimed storage.Bank) bool {
	return strings.EqualFold(strings.TrimSpace(onFile.BankName), strings.TrimSpace(claimed.BankName)) &&
		onFile.AccountNumber == claimed.AccountNumber
}

// ParseBankDetails parses "Bank Name, Account Number, Account Holder Name"
func ParseBankDetails(text string) (storage.Bank, error) {
	parts := strings.SplitN(strings.TrimSpace(text), ",", 3)
	if len(parts) != 3 {
		return storage.Bank{}, invalidInput("send your details as: Bank Name, Account Number, Account Holder Name")
	}
	bankName := strings.TrimSpace(parts[0])
	number, err := parseAccountNumber(parts[1])
	if err != nil {
		return storage.Bank{}, err
	}
	holder := strings.Join(strings.Fields(parts[2]), " ")
	if bankName == "" || holder == "" {
		return storage.Bank{}, invalidInput("bank name and account holder name must not be empty")
	}
	return storage.Bank{BankName: bankName, AccountNumber: number, AccountName: holder}, nil
}

// ParseBankChange parses two lines: "Old Bank, Old Account Number" and
// "New Bank, New Account Number, New Account Holder Name"
func ParseBankChange(text string) (old, next storage.Bank, err error) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) != 2 {
		return old, next, invalidInput("send two lines: first your old Bank Name, Account Number; then the new Bank Name, Account Number, Account Holder Name")
	}

	parts := strings.Split(lines[0], ",")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
		return old, next, invalidInput("the first line must be: Old Bank Name, Old Account Number")
	}
	old.BankName = strings.TrimSpace(parts[0])
	if old.AccountNumber, err = parseAccountNumber(parts[1]); err != nil {
		return old, next, err
	}

	next, err = ParseBankDetails(lines[1])
	return old, next, err
}

func parseAccountNumber(raw string) (string, error) {
	number := strings.Join(strings.Fields(raw), "")
	if len(number) < minAccountDigits || len(number) > maxAccountDigits {
		return "", invalidInput("account number must be %d to %d digits", minAccountDigits, maxAccountDigits)
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return "", invalidInput("account number must contain digits only")
		}
	}
	return number, nil
}

// Wallet returns the user's balance and its currency value
func (s *AccountService) Wallet(ctx context.Context, telegramID int64) (*Wallet, error) {
	user, err := s.store.GetUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	rules, err := s.rules.Current(ctx)
	if err != nil {
		return nil, err
	}
	referrals, err := s.store.CountReferrals(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	return &Wallet{
		User:      user,
		Coins:     user.Coins,
		Amount:    rules.CoinsToCurrency(user.Coins),
		Rules:     rules,
		Referrals: referrals,
	}, nil
}

// History returns a user's most recent ledger entries
func (s *AccountService) History(ctx context.Context, telegramID int64, limit int) ([]storage.Transaction, error) {
	return s.store.ListTransactions(ctx, telegramID, limit)
}

// ReferralInfo returns the user's share link, stats and a QR code of the link
func (s *AccountService) ReferralInfo(ctx context.Context, telegramID int64, botUsername string) (*Referral, error) {
	user, err := s.store.GetUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	count, err := s.store.CountReferrals(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	earned, err := s.store.SumTransactions(ctx, telegramID, storage.SourceReferralBonus)
	if err != nil {
		return nil, err
	}

	link := ReferralLink(botUsername, telegramID)
	png, err := qrcode.Encode(link, qrcode.Medium, qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to render referral QR code: %w", err)
	}

	return &Referral{Link: link, Count: count, Earned: earned, QRCode: png}, nil
}

// ReferralLink builds the t.me deep link that registers telegramID as referrer
func ReferralLink(botUsername string, telegramID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", strings.TrimPrefix(botUsername, "@"), telegramID)
}
