package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"crashd/internal/balance"
)

const (
	MinBetAmount   = 0.01
	MaxBetAmount   = 1000.0
	MinAutoCashOut = 1.01

	settleMaxRetries = 5
	settleTimeout    = 15 * time.Second
)

// Ledger owns the balance effects of the active round's wagers. It is only
// ever invoked from the scheduler's command loop, so it does no locking of
// round state itself. Credits that fail are retried off the tick path by the
// settlement worker and, if retries exhaust, parked for manual
// reconciliation.
type Ledger struct {
	store   balance.Store
	pending balance.PendingStore
	log     *zap.SugaredLogger

	settleCh chan balance.PendingSettlement
	stopCh   chan struct{}
	wg       sync.WaitGroup

	// newBackOff builds the retry policy for failed credits; swappable so
	// tests do not sit through real backoff intervals.
	newBackOff func() backoff.BackOff
}

func NewLedger(store balance.Store, pending balance.PendingStore, log *zap.SugaredLogger) *Ledger {
	return &Ledger{
		store:    store,
		pending:  pending,
		log:      log,
		settleCh: make(chan balance.PendingSettlement, 256),
		stopCh:   make(chan struct{}),
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), settleMaxRetries)
		},
	}
}

// Start launches the settlement worker.
func (l *Ledger) Start() {
	l.wg.Add(1)
	go l.settleLoop()
}

func (l *Ledger) Stop() {
	close(l.stopCh)
	l.wg.Wait()
}

// PlaceBet validates and debits the stake, then appends the wager. The
// duplicate check runs before the debit so a rejected second bet has no
// balance effect at all.
func (l *Ledger) PlaceBet(ctx context.Context, r *Round, req BetRequest, now time.Time) (*Wager, float64, error) {
	if req.Amount < MinBetAmount || req.Amount > MaxBetAmount {
		return nil, 0, ErrInvalidAmount
	}
	if req.AutoCashOut != 0 && req.AutoCashOut < MinAutoCashOut {
		return nil, 0, ErrInvalidAutoCashOut
	}
	if _, exists := r.Bet(req.UserID); exists {
		return nil, 0, ErrDuplicateBet
	}

	newBalance, err := l.store.Debit(ctx, req.UserID, req.Amount)
	if err != nil {
		if errors.Is(err, balance.ErrInsufficientFunds) {
			return nil, 0, ErrInsufficientBalance
		}
		return nil, 0, err
	}

	w, err := r.AddBet(req.UserID, req.Amount, req.AutoCashOut, now)
	if err != nil {
		// Unreachable after the check above, but the stake must not leak.
		l.enqueueSettlement(r.RoundID, req.UserID, req.Amount, 0, "bet rollback")
		return nil, 0, err
	}
	return w, newBalance, nil
}

// CashOut settles the user's wager at the given multiplier and credits the
// payout. A credit failure does not undo the cash-out: the wager stays
// settled and the payout moves to the retry path.
func (l *Ledger) CashOut(ctx context.Context, r *Round, userID string, multiplier float64, now time.Time) (*Wager, float64, error) {
	w, err := r.CashOutBet(userID, multiplier, now)
	if err != nil {
		return nil, 0, err
	}

	payout := w.Amount * multiplier
	newBalance, err := l.store.Credit(ctx, userID, payout)
	if err != nil {
		l.log.Warnf("[LEDGER] credit failed for user %s round %d, queued for retry: %v", userID, r.RoundID, err)
		l.enqueueSettlement(r.RoundID, userID, payout, multiplier, "cashout credit")
		return w, 0, nil
	}
	return w, newBalance, nil
}

// EvaluateAutoCashOuts settles every un-cashed-out wager whose target is at
// or below the current multiplier. Settlement happens at the wager's own
// target, not the tick value, so overshooting ticks cannot inflate payouts.
// Runs server-side every tick regardless of client liveness.
func (l *Ledger) EvaluateAutoCashOuts(ctx context.Context, r *Round, currentMultiplier float64, now time.Time) []*Wager {
	var settled []*Wager
	for _, w := range r.Bets {
		if w.CashedOut || w.AutoCashOut <= 0 || w.AutoCashOut > currentMultiplier {
			continue
		}
		if _, _, err := l.CashOut(ctx, r, w.UserID, w.AutoCashOut, now); err != nil {
			l.log.Errorf("[LEDGER] auto cashout for user %s round %d: %v", w.UserID, r.RoundID, err)
			continue
		}
		settled = append(settled, w)
	}
	return settled
}

// SettleAutosBelow settles every un-cashed-out wager whose auto target lies
// strictly below the given crash point, each at its own target. Runs on the
// crash transition: a single tick can jump past both a target and the crash
// point, and a target the curve passed before crashing still pays.
func (l *Ledger) SettleAutosBelow(ctx context.Context, r *Round, crashPoint float64, now time.Time) []*Wager {
	var settled []*Wager
	for _, w := range r.Bets {
		if w.CashedOut || w.AutoCashOut <= 0 || w.AutoCashOut >= crashPoint {
			continue
		}
		if _, _, err := l.CashOut(ctx, r, w.UserID, w.AutoCashOut, now); err != nil {
			l.log.Errorf("[LEDGER] auto cashout for user %s round %d: %v", w.UserID, r.RoundID, err)
			continue
		}
		settled = append(settled, w)
	}
	return settled
}

// RefundAll returns every un-cashed-out stake, used when a round is aborted
// on a fairness-integrity fault.
func (l *Ledger) RefundAll(ctx context.Context, r *Round) {
	for _, w := range r.Bets {
		if w.CashedOut {
			continue
		}
		if _, err := l.store.Credit(ctx, w.UserID, w.Amount); err != nil {
			l.log.Warnf("[LEDGER] refund failed for user %s round %d, queued for retry: %v", w.UserID, r.RoundID, err)
			l.enqueueSettlement(r.RoundID, w.UserID, w.Amount, 0, "round abort refund")
		}
	}
}

func (l *Ledger) enqueueSettlement(roundID int64, userID string, amount, multiplier float64, reason string) {
	item := balance.PendingSettlement{
		UserID:     userID,
		RoundID:    roundID,
		Amount:     amount,
		Multiplier: multiplier,
		Reason:     reason,
		FailedAt:   time.Now().UTC(),
	}
	select {
	case l.settleCh <- item:
	default:
		// Queue full: park immediately rather than block the round.
		l.park(item)
	}
}

func (l *Ledger) settleLoop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stopCh:
			return
		case item := <-l.settleCh:
			l.retryCredit(item)
		}
	}
}

func (l *Ledger) retryCredit(item balance.PendingSettlement) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	op := func() error {
		_, err := l.store.Credit(ctx, item.UserID, item.Amount)
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(l.newBackOff(), ctx))
	if err == nil {
		l.log.Infof("[LEDGER] retried credit succeeded: user %s amount %.2f (%s)", item.UserID, item.Amount, item.Reason)
		return
	}

	l.log.Errorf("[LEDGER] credit retries exhausted for user %s amount %.2f: %v", item.UserID, item.Amount, err)
	l.park(item)
}

func (l *Ledger) park(item balance.PendingSettlement) {
	if l.pending == nil {
		l.log.Errorf("[LEDGER] UNRECONCILED settlement (no pending store): %+v", item)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.pending.Add(ctx, item); err != nil {
		l.log.Errorf("[LEDGER] UNRECONCILED settlement, pending store failed: %+v: %v", item, err)
	}
}
