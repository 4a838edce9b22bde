package game

import "errors"

// Validation errors returned to callers. Each maps to a stable reason code
// so clients can tell "too late to cash out" apart from "insufficient
// balance" apart from "already cashed out".
var (
	ErrDuplicateBet        = errors.New("user already has a bet in this round")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("bet amount out of range")
	ErrInvalidAutoCashOut  = errors.New("auto cashout must be 0 or at least 1.01")
	ErrNoActiveBet         = errors.New("no active bet to cash out")
	ErrWrongPhase          = errors.New("operation not allowed in current round phase")
)

// ReasonCode returns the machine-readable code for a rejected command, or
// "internal_error" for anything outside the validation taxonomy.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateBet):
		return "duplicate_bet"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInvalidAutoCashOut):
		return "invalid_auto_cashout"
	case errors.Is(err, ErrNoActiveBet):
		return "no_active_bet"
	case errors.Is(err, ErrWrongPhase):
		return "wrong_phase"
	default:
		return "internal_error"
	}
}
