package bot

import "sync"

// State is the step a user is at in a multi-message flow
type State int

const (
	StateNone State = iota
	StateAwaitingBankDetails
	StateAwaitingBankChange
	StateAwaitingWithdrawAmount
	StateAwaitingHelpMessage
)

func (s State) String() string {
	switch s {
	case StateAwaitingBankDetails:
		return "awaiting_bank_details"
	case StateAwaitingBankChange:
		return "awaiting_bank_change"
	case StateAwaitingWithdrawAmount:
		return "awaiting_withdraw_amount"
	case StateAwaitingHelpMessage:
		return "awaiting_help_message"
	default:
		return "none"
	}
}

// States keeps per-user conversation state in memory. Losing it on restart only
// means the user has to tap the menu button again.
type States struct {
	mu sync.Mutex
	m  map[int64]State
}

// NewStates creates an empty state table
func NewStates() *States {
	return &States{m: make(map[int64]State)}
}

// Get returns the user's state, StateNone when nothing is pending
func (s *States) Get(userID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[userID]
}

// Set records the user's next expected input
func (s *States) Set(userID int64, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == StateNone {
		delete(s.m, userID)
		return
	}
	s.m[userID] = state
}

// Clear resets the user to StateNone and returns the state that was pending
func (s *States) Clear(userID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.m[userID]
	delete(s.m, userID)
	return prev
}
