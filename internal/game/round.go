package game

import "time"

type RoundStatus string

const (
	StatusWaiting   RoundStatus = "waiting"
	StatusFlying    RoundStatus = "flying"
	StatusCrashed   RoundStatus = "crashed"
	StatusCompleted RoundStatus = "completed"
)

// Wager is one player's stake in a round. At most one per user per round.
type Wager struct {
	UserID            string     `json:"user_id"`
	Amount            float64    `json:"amount"`
	AutoCashOut       float64    `json:"auto_cashout"`
	CashedOut         bool       `json:"cashed_out"`
	CashOutMultiplier float64    `json:"cashout_multiplier,omitempty"`
	Profit            float64    `json:"profit"`
	PlacedAt          time.Time  `json:"placed_at"`
	CashedOutAt       *time.Time `json:"cashed_out_at,omitempty"`
}

// Round is one instance of the shared game. The scheduler goroutine is the
// only writer for the lifetime of the round; everyone else sees copies.
type Round struct {
	RoundID        int64       `json:"round_id"`
	Status         RoundStatus `json:"status"`
	ServerSeed     string      `json:"-"` // secret until reveal
	ServerSeedHash string      `json:"server_seed_hash"`
	ClientSeed     string      `json:"client_seed"`
	Nonce          int64       `json:"nonce"`
	CrashPoint     float64     `json:"-"` // hidden until crashed
	CreatedAt      time.Time   `json:"created_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CrashedAt      *time.Time  `json:"crashed_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`

	// Bets preserves placement order; betIndex enforces one wager per user.
	Bets     []*Wager `json:"bets"`
	betIndex map[string]*Wager
}

func NewRound(roundID int64, serverSeed, clientSeed string, nonce int64, now time.Time) *Round {
	return &Round{
		RoundID:        roundID,
		Status:         StatusWaiting,
		ServerSeed:     serverSeed,
		ServerSeedHash: HashServerSeed(serverSeed),
		ClientSeed:     clientSeed,
		Nonce:          nonce,
		CrashPoint:     DeriveCrashPoint(serverSeed, clientSeed, nonce),
		CreatedAt:      now,
		betIndex:       make(map[string]*Wager),
	}
}

// AddBet appends a wager for userID. Fails with ErrDuplicateBet if the user
// already has one this round. Balance effects are the ledger's business.
func (r *Round) AddBet(userID string, amount, autoCashOut float64, now time.Time) (*Wager, error) {
	if _, exists := r.betIndex[userID]; exists {
		return nil, ErrDuplicateBet
	}

	w := &Wager{
		UserID:      userID,
		Amount:      amount,
		AutoCashOut: autoCashOut,
		PlacedAt:    now,
	}
	r.Bets = append(r.Bets, w)
	r.betIndex[userID] = w
	return w, nil
}

// Bet returns the user's wager this round, if any.
func (r *Round) Bet(userID string) (*Wager, bool) {
	w, ok := r.betIndex[userID]
	return w, ok
}

// CashOutBet settles the user's wager at the given multiplier. A second
// cash-out of the same wager fails with ErrNoActiveBet.
func (r *Round) CashOutBet(userID string, multiplier float64, now time.Time) (*Wager, error) {
	w, ok := r.betIndex[userID]
	if !ok || w.CashedOut {
		return nil, ErrNoActiveBet
	}

	w.CashedOut = true
	w.CashOutMultiplier = multiplier
	w.Profit = w.Amount*multiplier - w.Amount
	w.CashedOutAt = &now
	return w, nil
}

// SettleLosses finalizes every un-cashed-out wager as a loss. The stake was
// debited at placement, so there is no further balance effect to apply.
func (r *Round) SettleLosses() int {
	n := 0
	for _, w := range r.Bets {
		if !w.CashedOut {
			w.Profit = -w.Amount
			n++
		}
	}
	return n
}

func (r *Round) TotalBetAmount() float64 {
	total := 0.0
	for _, w := range r.Bets {
		total += w.Amount
	}
	return total
}

func (r *Round) WinnerCount() int {
	n := 0
	for _, w := range r.Bets {
		if w.CashedOut {
			n++
		}
	}
	return n
}

func (r *Round) TotalWinAmount() float64 {
	total := 0.0
	for _, w := range r.Bets {
		if w.CashedOut {
			total += w.Amount * w.CashOutMultiplier
		}
	}
	return total
}

// PublicBets is the broadcast-safe view of the wager list: amounts and
// settlement state, no balances.
func (r *Round) PublicBets() []Wager {
	out := make([]Wager, 0, len(r.Bets))
	for _, w := range r.Bets {
		out = append(out, *w)
	}
	return out
}

// ArchiveEntry is the immutable post-round summary. Created once at
// completion, never mutated afterwards.
type ArchiveEntry struct {
	RoundID        int64     `json:"round_id"`
	CrashPoint     float64   `json:"crash_point"`
	TotalBets      int       `json:"total_bets"`
	TotalAmount    float64   `json:"total_amount"`
	WinnerCount    int       `json:"winner_count"`
	WinAmount      float64   `json:"win_amount"`
	ServerSeed     string    `json:"server_seed"`
	ServerSeedHash string    `json:"server_seed_hash"`
	Nonce          int64     `json:"nonce"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Archive produces the summary handed to the round archive on completion.
func (r *Round) Archive() ArchiveEntry {
	completedAt := time.Now().UTC()
	if r.CompletedAt != nil {
		completedAt = *r.CompletedAt
	}
	return ArchiveEntry{
		RoundID:        r.RoundID,
		CrashPoint:     r.CrashPoint,
		TotalBets:      len(r.Bets),
		TotalAmount:    r.TotalBetAmount(),
		WinnerCount:    r.WinnerCount(),
		WinAmount:      r.TotalWinAmount(),
		ServerSeed:     r.ServerSeed,
		ServerSeedHash: r.ServerSeedHash,
		Nonce:          r.Nonce,
		CompletedAt:    completedAt,
	}
}
