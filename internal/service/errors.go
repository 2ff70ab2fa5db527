package service

import (
	"errors"
	"fmt"
)

// Kind classifies service errors for the command and HTTP boundaries
type Kind int

const (
	KindTransientIO Kind = iota
	KindNotFound
	KindInvalidState
	KindPolicyViolation
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindPolicyViolation:
		return "policy_violation"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "transient_io"
	}
}

// Error is an expected, user-facing failure. Message is safe to show to users.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches errors by code so copies of a sentinel compare equal
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrUserNotFound       = &Error{KindNotFound, "user_not_found", "user not found"}
	ErrSessionNotFound    = &Error{KindNotFound, "session_not_found", "ad session not found"}
	ErrWithdrawalNotFound = &Error{KindNotFound, "withdrawal_not_found", "withdrawal not found"}

	ErrAlreadySettled   = &Error{KindInvalidState, "already_settled", "this task has already been rewarded"}
	ErrAlreadyProcessed = &Error{KindInvalidState, "already_processed", "this withdrawal has already been processed"}
	ErrIncomplete       = &Error{KindInvalidState, "incomplete", "not enough ads watched yet"}

	ErrFeatureDisabled      = &Error{KindPolicyViolation, "feature_disabled", "tasks are currently disabled"}
	ErrInsufficientBalance  = &Error{KindPolicyViolation, "insufficient_balance", "insufficient balance"}
	ErrBelowMinimum         = &Error{KindPolicyViolation, "below_minimum", "amount is below the minimum withdrawal"}
	ErrNoBankOnFile         = &Error{KindPolicyViolation, "no_bank_on_file", "no bank account on file"}
	ErrBankOnFile           = &Error{KindPolicyViolation, "bank_on_file", "bank details are already on file, use Change Bank instead"}
	ErrMismatchedOldDetails = &Error{KindPolicyViolation, "mismatched_old_details", "old bank details do not match our records"}
	ErrBanned               = &Error{KindPolicyViolation, "banned", "your account has been suspended"}
	ErrInvalidInput         = &Error{KindPolicyViolation, "invalid_input", "invalid input"}
	ErrSelfReferral         = &Error{KindPolicyViolation, "self_referral", "you cannot refer yourself"}
	ErrUnknownSetting       = &Error{KindPolicyViolation, "unknown_setting", "unknown setting"}
	ErrUnauthorized         = &Error{KindUnauthorized, "unauthorized", "this command is for admins only"}
)

// IncompleteError reports how far a session is from the settlement threshold
type IncompleteError struct {
	Count    int
	Required int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("incomplete: %d of %d ads watched", e.Count, e.Required)
}

// Is makes errors.Is(err, ErrIncomplete) hold
func (e *IncompleteError) Is(target error) bool {
	return target == ErrIncomplete
}

// withMessage returns a copy of a sentinel with a more specific message.
// The copy still matches the sentinel with errors.Is.
func (e *Error) withMessage(format string, args ...interface{}) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

func invalidInput(format string, args ...interface{}) error {
	return ErrInvalidInput.withMessage(format, args...)
}

// KindOf classifies err. Anything that is not a service error is TransientIO.
func KindOf(err error) Kind {
	var incomplete *IncompleteError
	if errors.As(err, &incomplete) {
		return KindInvalidState
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransientIO
}

// IsExpected reports whether err is a user-facing outcome rather than an I/O failure
func IsExpected(err error) bool {
	return err != nil && KindOf(err) != KindTransientIO
}
