// Package balance is the game's client view of the external balance store.
// The round ledger never reads-then-writes a balance: every mutation is a
// single atomic operation conditioned on sufficient funds.
package balance

import (
	"context"
	"errors"
	"time"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

type Store interface {
	// Debit atomically deducts amount if the user's balance covers it and
	// returns the new balance, or ErrInsufficientFunds with no effect.
	Debit(ctx context.Context, userID string, amount float64) (float64, error)

	// Credit atomically adds amount and returns the new balance.
	Credit(ctx context.Context, userID string, amount float64) (float64, error)

	Get(ctx context.Context, userID string) (float64, error)
	Set(ctx context.Context, userID string, amount float64) error
}

// PendingSettlement is a credit that exhausted its retries and needs manual
// reconciliation. Money-affecting operations are never best effort.
type PendingSettlement struct {
	UserID     string    `json:"user_id"`
	RoundID    int64     `json:"round_id"`
	Amount     float64   `json:"amount"`
	Multiplier float64   `json:"multiplier"`
	Reason     string    `json:"reason"`
	FailedAt   time.Time `json:"failed_at"`
}

type PendingStore interface {
	Add(ctx context.Context, item PendingSettlement) error
	List(ctx context.Context, limit int64) ([]PendingSettlement, error)
}
