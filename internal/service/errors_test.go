package service

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", ErrSessionNotFound, KindNotFound},
		{"wrapped invalid state", fmt.Errorf("settle: %w", ErrAlreadySettled), KindInvalidState},
		{"policy", ErrMismatchedOldDetails, KindPolicyViolation},
		{"unauthorized", ErrUnauthorized, KindUnauthorized},
		{"incomplete", &IncompleteError{Count: 3, Required: 10}, KindInvalidState},
		{"plain error", errors.New("disk full"), KindTransientIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIncompleteErrorIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &IncompleteError{Count: 9, Required: 10})
	if !errors.Is(err, ErrIncomplete) {
		t.Error("Expected IncompleteError to match ErrIncomplete")
	}
	var incomplete *IncompleteError
	if !errors.As(err, &incomplete) || incomplete.Count != 9 {
		t.Errorf("Expected count 9, got %+v", incomplete)
	}
}

func TestInvalidInputMatchesSentinel(t *testing.T) {
	err := invalidInput("account number must be %d to %d digits", 6, 20)
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("Expected invalidInput to match ErrInvalidInput")
	}
	if err.Error() != "account number must be 6 to 20 digits" {
		t.Errorf("Unexpected message %q", err.Error())
	}
	if IsExpected(errors.New("boom")) {
		t.Error("Plain errors are not expected outcomes")
	}
}
