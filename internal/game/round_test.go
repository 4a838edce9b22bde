package game

import (
	"errors"
	"testing"
	"time"
)

func testRound(t *testing.T) *Round {
	t.Helper()
	return NewRound(7, "server_seed", "client_seed", 7, time.Now())
}

func TestNewRound(t *testing.T) {
	now := time.Now()
	r := NewRound(1, "abc", "xyz", 42, now)

	if r.Status != StatusWaiting {
		t.Errorf("Status = %v, want %v", r.Status, StatusWaiting)
	}
	if r.ServerSeedHash != HashServerSeed("abc") {
		t.Error("ServerSeedHash does not match the commitment of the seed")
	}
	if r.CrashPoint != DeriveCrashPoint("abc", "xyz", 42) {
		t.Error("CrashPoint does not match the derivation")
	}
	if r.CrashPoint < MinMultiplier {
		t.Errorf("CrashPoint = %v, below minimum", r.CrashPoint)
	}
	if r.StartedAt != nil || r.CrashedAt != nil || r.CompletedAt != nil {
		t.Error("phase timestamps must be nil until reached")
	}
}

func TestRound_AddBet_Duplicate(t *testing.T) {
	r := testRound(t)

	if _, err := r.AddBet("alice", 10, 0, time.Now()); err != nil {
		t.Fatalf("first AddBet failed: %v", err)
	}
	if _, err := r.AddBet("alice", 5, 0, time.Now()); !errors.Is(err, ErrDuplicateBet) {
		t.Errorf("second AddBet err = %v, want ErrDuplicateBet", err)
	}
	if len(r.Bets) != 1 {
		t.Errorf("bets = %d, want 1", len(r.Bets))
	}
}

func TestRound_CashOutBet(t *testing.T) {
	r := testRound(t)
	r.AddBet("alice", 10, 0, time.Now())

	w, err := r.CashOutBet("alice", 2.5, time.Now())
	if err != nil {
		t.Fatalf("CashOutBet failed: %v", err)
	}
	if !w.CashedOut {
		t.Error("wager not marked cashed out")
	}
	if w.CashOutMultiplier != 2.5 {
		t.Errorf("CashOutMultiplier = %v, want 2.5", w.CashOutMultiplier)
	}
	if w.Profit != 15 {
		t.Errorf("Profit = %v, want 15", w.Profit)
	}
	if w.CashedOutAt == nil {
		t.Error("CashedOutAt not set")
	}

	// A second cash-out of the same wager must fail.
	if _, err := r.CashOutBet("alice", 3.0, time.Now()); !errors.Is(err, ErrNoActiveBet) {
		t.Errorf("second cashout err = %v, want ErrNoActiveBet", err)
	}

	if _, err := r.CashOutBet("nobody", 2.0, time.Now()); !errors.Is(err, ErrNoActiveBet) {
		t.Errorf("cashout without bet err = %v, want ErrNoActiveBet", err)
	}
}

func TestRound_SettleLosses(t *testing.T) {
	r := testRound(t)
	r.AddBet("alice", 10, 0, time.Now())
	r.AddBet("bob", 20, 0, time.Now())
	r.CashOutBet("alice", 1.5, time.Now())

	if n := r.SettleLosses(); n != 1 {
		t.Errorf("SettleLosses = %d, want 1", n)
	}

	bob, _ := r.Bet("bob")
	if bob.Profit != -20 {
		t.Errorf("loser profit = %v, want -20", bob.Profit)
	}
	alice, _ := r.Bet("alice")
	if alice.Profit != 5 {
		t.Errorf("winner profit changed to %v, want 5", alice.Profit)
	}
}

func TestRound_Aggregates(t *testing.T) {
	r := testRound(t)
	r.AddBet("alice", 10, 0, time.Now())
	r.AddBet("bob", 20, 0, time.Now())
	r.AddBet("carol", 5, 0, time.Now())
	r.CashOutBet("alice", 2.0, time.Now())
	r.CashOutBet("carol", 1.2, time.Now())

	if got := r.TotalBetAmount(); got != 35 {
		t.Errorf("TotalBetAmount = %v, want 35", got)
	}
	if got := r.WinnerCount(); got != 2 {
		t.Errorf("WinnerCount = %v, want 2", got)
	}
	if got := r.TotalWinAmount(); got != 26 {
		t.Errorf("TotalWinAmount = %v, want 26", got)
	}
}

func TestRound_PublicBetsIsACopy(t *testing.T) {
	r := testRound(t)
	r.AddBet("alice", 10, 0, time.Now())

	public := r.PublicBets()
	public[0].Amount = 999

	w, _ := r.Bet("alice")
	if w.Amount != 10 {
		t.Error("mutating the public view changed the live wager")
	}
}

func TestRound_Archive(t *testing.T) {
	r := testRound(t)
	r.AddBet("alice", 10, 2.0, time.Now())
	r.AddBet("bob", 20, 0, time.Now())
	r.CashOutBet("alice", 2.0, time.Now())
	r.SettleLosses()

	completed := time.Now().UTC()
	r.CompletedAt = &completed

	e := r.Archive()
	if e.RoundID != r.RoundID {
		t.Errorf("RoundID = %v, want %v", e.RoundID, r.RoundID)
	}
	if e.TotalBets != 2 || e.TotalAmount != 30 {
		t.Errorf("totals = (%d, %v), want (2, 30)", e.TotalBets, e.TotalAmount)
	}
	if e.WinnerCount != 1 || e.WinAmount != 20 {
		t.Errorf("winners = (%d, %v), want (1, 20)", e.WinnerCount, e.WinAmount)
	}
	if !e.CompletedAt.Equal(completed) {
		t.Errorf("CompletedAt = %v, want %v", e.CompletedAt, completed)
	}
}
