package game

// Inbound command payloads and the closed set of outbound events. The wire
// framing (HTTP/WS JSON) lives in internal/server; these are the contracts.

type BetRequest struct {
	UserID      string  `json:"user_id"`
	Amount      float64 `json:"amount"`
	AutoCashOut float64 `json:"auto_cashout,omitempty"`
}

type BetResponse struct {
	Success bool    `json:"success"`
	Reason  string  `json:"reason,omitempty"`
	Message string  `json:"message,omitempty"`
	RoundID int64   `json:"round_id,omitempty"`
	Balance float64 `json:"balance,omitempty"`
}

type CashOutRequest struct {
	UserID string `json:"user_id"`
}

type CashOutResponse struct {
	Success    bool    `json:"success"`
	Reason     string  `json:"reason,omitempty"`
	Message    string  `json:"message,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty"`
	Payout     float64 `json:"payout,omitempty"`
	Profit     float64 `json:"profit,omitempty"`
	Balance    float64 `json:"balance,omitempty"`
}

// Snapshot is the late-join reconciliation view: everything a client needs
// to resync mid-round without replaying missed ticks.
type Snapshot struct {
	RoundID        int64       `json:"round_id"`
	Status         RoundStatus `json:"status"`
	ServerSeedHash string      `json:"server_seed_hash"`
	Multiplier     float64     `json:"multiplier"`
	ElapsedMs      int64       `json:"elapsed_ms"`
	TimeToStartMs  int64       `json:"time_to_start_ms,omitempty"`
	CrashPoint     float64     `json:"crash_point,omitempty"` // revealed only
	Bets           []Wager     `json:"bets"`
	YourBet        *Wager      `json:"your_bet,omitempty"`
}

// Outbound events, broadcast to every subscribed client.

const (
	EventRoundState = "round_state"
	EventCountdown  = "countdown"
	EventTick       = "multiplier_tick"
	EventBetPlaced  = "bet_placed"
	EventCashedOut  = "bet_cashed_out"
)

// Event is the broadcast envelope.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type RoundStateChanged struct {
	RoundID        int64       `json:"round_id"`
	Status         RoundStatus `json:"status"`
	ServerSeedHash string      `json:"server_seed_hash"`
	ServerSeed     string      `json:"server_seed,omitempty"` // only once revealed
	CrashPoint     float64     `json:"crash_point,omitempty"` // only crashed|completed
	TimeToStartMs  int64       `json:"time_to_start_ms,omitempty"`
	TotalBets      int         `json:"total_bets"`
	TotalAmount    float64     `json:"total_amount"`
}

type CountdownUpdate struct {
	RoundID       int64 `json:"round_id"`
	TimeToStartMs int64 `json:"time_to_start_ms"`
}

type MultiplierTick struct {
	RoundID    int64   `json:"round_id"`
	Multiplier float64 `json:"multiplier"`
	ElapsedMs  int64   `json:"elapsed_ms"`
}

type BetPlaced struct {
	RoundID     int64   `json:"round_id"`
	UserID      string  `json:"user_id"`
	Amount      float64 `json:"amount"`
	AutoCashOut float64 `json:"auto_cashout,omitempty"`
}

type BetCashedOut struct {
	RoundID    int64   `json:"round_id"`
	UserID     string  `json:"user_id"`
	Multiplier float64 `json:"multiplier"`
	Payout     float64 `json:"payout"`
	Profit     float64 `json:"profit"`
	IsAuto     bool    `json:"is_auto"`
}
