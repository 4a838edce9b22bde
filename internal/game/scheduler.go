package game

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultWaitingDuration = 7 * time.Second
	DefaultCrashedDuration = 3 * time.Second
	DefaultTickInterval    = 80 * time.Millisecond

	commandQueueSize = 1024
	commandTimeout   = 5 * time.Second
	balanceOpTimeout = 2 * time.Second
	archiveTimeout   = 15 * time.Second
)

type Config struct {
	WaitingDuration   time.Duration
	CrashedDuration   time.Duration
	TickInterval      time.Duration
	CountdownInterval time.Duration
	ClientSeed        string
}

func DefaultConfig() Config {
	return Config{
		WaitingDuration:   DefaultWaitingDuration,
		CrashedDuration:   DefaultCrashedDuration,
		TickInterval:      DefaultTickInterval,
		CountdownInterval: time.Second,
		ClientSeed:        "crash-client",
	}
}

// Broadcaster fans events out to subscribed clients. Delivery is best
// effort; the scheduler never depends on an observer receiving anything.
type Broadcaster interface {
	Broadcast(event Event)
}

// Archiver persists completed-round summaries.
type Archiver interface {
	Archive(ctx context.Context, entry ArchiveEntry) error
}

// The command set is closed: everything that can touch the live round is one
// of these, serialized onto a single queue. The total ordering means a
// cash-out can never race the crash reveal and two devices can never
// double-settle one wager: exactly one command is interpreted against the
// round at a time.
type command interface{ isCommand() }

type placeBetCmd struct {
	req  BetRequest
	resp chan BetResponse
}

type cashOutCmd struct {
	req  CashOutRequest
	resp chan CashOutResponse
}

type tickCmd struct {
	roundID int64
}

type advancePhaseCmd struct {
	roundID int64
	from    RoundStatus
}

type snapshotCmd struct {
	userID string
	resp   chan Snapshot
}

func (placeBetCmd) isCommand()     {}
func (cashOutCmd) isCommand()      {}
func (tickCmd) isCommand()         {}
func (advancePhaseCmd) isCommand() {}
func (snapshotCmd) isCommand()     {}

// Scheduler owns the live round. One goroutine drains the command queue;
// the ledger and fairness generator are only ever invoked from that
// goroutine, and the hub and archive observe transitions downstream.
type Scheduler struct {
	cfg     Config
	ledger  *Ledger
	hub     Broadcaster
	archive Archiver
	log     *zap.SugaredLogger

	commands chan command
	stopCh   chan struct{}
	wg       sync.WaitGroup

	// now is swappable so the state machine can be driven deterministically
	// in tests.
	now func() time.Time

	round         *Round
	roundSeq      int64
	nonce         int64
	seedEpoch     string
	phaseDeadline time.Time
	stopTicker    func()
}

func NewScheduler(cfg Config, ledger *Ledger, hub Broadcaster, archiver Archiver, log *zap.SugaredLogger) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.CountdownInterval <= 0 {
		cfg.CountdownInterval = time.Second
	}
	if cfg.ClientSeed == "" {
		cfg.ClientSeed = "crash-client"
	}
	return &Scheduler{
		cfg:       cfg,
		ledger:    ledger,
		hub:       hub,
		archive:   archiver,
		log:       log,
		commands:  make(chan command, commandQueueSize),
		stopCh:    make(chan struct{}),
		now:       time.Now,
		seedEpoch: uuid.NewString(),
	}
}

func (s *Scheduler) Start() {
	s.ledger.Start()
	s.wg.Add(1)
	go s.loop()
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.ledger.Stop()
}

// PlaceBet enqueues the command and waits for its serialized result.
func (s *Scheduler) PlaceBet(req BetRequest) BetResponse {
	resp := make(chan BetResponse, 1)
	select {
	case s.commands <- placeBetCmd{req: req, resp: resp}:
	default:
		return BetResponse{Success: false, Reason: "queue_full", Message: "Server busy, try again"}
	}

	select {
	case r := <-resp:
		return r
	case <-time.After(commandTimeout):
		return BetResponse{Success: false, Reason: "timeout", Message: "Bet timed out"}
	}
}

func (s *Scheduler) CashOut(req CashOutRequest) CashOutResponse {
	resp := make(chan CashOutResponse, 1)
	select {
	case s.commands <- cashOutCmd{req: req, resp: resp}:
	default:
		return CashOutResponse{Success: false, Reason: "queue_full", Message: "Server busy, try again"}
	}

	select {
	case r := <-resp:
		return r
	case <-time.After(commandTimeout):
		return CashOutResponse{Success: false, Reason: "timeout", Message: "Cashout timed out"}
	}
}

// GetSnapshot serves the reconciliation path: a reconnecting client gets the
// authoritative mid-round view instead of replaying missed ticks. It runs
// through the command queue so it observes a consistent state.
func (s *Scheduler) GetSnapshot(userID string) (Snapshot, bool) {
	resp := make(chan Snapshot, 1)
	select {
	case s.commands <- snapshotCmd{userID: userID, resp: resp}:
	default:
		return Snapshot{}, false
	}

	select {
	case snap := <-resp:
		return snap, true
	case <-time.After(commandTimeout):
		return Snapshot{}, false
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	s.startRound()

	for {
		select {
		case <-s.stopCh:
			s.stopPhaseTicker()
			s.log.Infof("[GAME] scheduler stopped at round %d", s.roundSeq)
			return
		case cmd := <-s.commands:
			s.handle(cmd)
		}
	}
}

func (s *Scheduler) handle(cmd command) {
	switch c := cmd.(type) {
	case placeBetCmd:
		c.resp <- s.handlePlaceBet(c.req)
	case cashOutCmd:
		c.resp <- s.handleCashOut(c.req)
	case tickCmd:
		s.handleTick(c)
	case advancePhaseCmd:
		s.handleAdvance(c)
	case snapshotCmd:
		c.resp <- s.snapshot(c.userID)
	}
}

// startRound allocates the next roundId/nonce, commits a fresh seed and
// derives the crash point. The crash point exists from this moment but is
// revealed only on the crashed transition.
func (s *Scheduler) startRound() {
	s.roundSeq++
	s.nonce++

	serverSeed := GenerateServerSeed()
	round := NewRound(s.roundSeq, serverSeed, s.cfg.ClientSeed, s.nonce, s.now())

	if !VerifyCommitment(round.ServerSeed, round.ServerSeedHash) || round.CrashPoint < MinMultiplier {
		// Compromised derivation must never drive a round.
		s.log.Errorf("[FAIR] integrity fault generating round %d, rotating seed epoch", s.roundSeq)
		s.rotateEpoch()
		s.startRound()
		return
	}

	s.round = round
	s.phaseDeadline = s.now().Add(s.cfg.WaitingDuration)

	s.log.Infof("[GAME] round %d created, commitment %s..., crash point %.2fx (hidden)",
		round.RoundID, round.ServerSeedHash[:16], round.CrashPoint)

	s.publishState()
	s.startPhaseTicker(s.cfg.CountdownInterval)
	s.armAdvance(StatusWaiting, s.cfg.WaitingDuration)
}

func (s *Scheduler) handlePlaceBet(req BetRequest) BetResponse {
	if s.round == nil || s.round.Status != StatusWaiting {
		return BetResponse{Success: false, Reason: ReasonCode(ErrWrongPhase), Message: "Betting is closed"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), balanceOpTimeout)
	defer cancel()

	w, newBalance, err := s.ledger.PlaceBet(ctx, s.round, req, s.now())
	if err != nil {
		return BetResponse{Success: false, Reason: ReasonCode(err), Message: err.Error()}
	}

	s.hub.Broadcast(Event{Type: EventBetPlaced, Data: BetPlaced{
		RoundID:     s.round.RoundID,
		UserID:      w.UserID,
		Amount:      w.Amount,
		AutoCashOut: w.AutoCashOut,
	}})

	s.log.Infof("[BET] user %s placed %.2f on round %d (auto %.2fx)", w.UserID, w.Amount, s.round.RoundID, w.AutoCashOut)
	return BetResponse{Success: true, RoundID: s.round.RoundID, Balance: newBalance, Message: "Bet placed"}
}

func (s *Scheduler) handleCashOut(req CashOutRequest) CashOutResponse {
	if s.round == nil || s.round.Status != StatusFlying {
		return CashOutResponse{Success: false, Reason: ReasonCode(ErrWrongPhase), Message: "Cashout is closed"}
	}

	// The multiplier is evaluated at command-processing time, not at
	// request receipt. If the curve already passed the crash point the
	// crash simply hasn't been processed yet and this cash-out is late.
	now := s.now()
	multiplier := MultiplierAt(now.Sub(*s.round.StartedAt))
	if multiplier >= s.round.CrashPoint {
		return CashOutResponse{Success: false, Reason: ReasonCode(ErrWrongPhase), Message: "Too late, round crashed"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), balanceOpTimeout)
	defer cancel()

	w, newBalance, err := s.ledger.CashOut(ctx, s.round, req.UserID, multiplier, now)
	if err != nil {
		return CashOutResponse{Success: false, Reason: ReasonCode(err), Message: err.Error()}
	}

	s.hub.Broadcast(Event{Type: EventCashedOut, Data: BetCashedOut{
		RoundID:    s.round.RoundID,
		UserID:     w.UserID,
		Multiplier: w.CashOutMultiplier,
		Payout:     w.Amount * w.CashOutMultiplier,
		Profit:     w.Profit,
		IsAuto:     false,
	}})

	s.log.Infof("[CASHOUT] user %s cashed out at %.2fx on round %d (profit %.2f)", w.UserID, multiplier, s.round.RoundID, w.Profit)
	return CashOutResponse{
		Success:    true,
		Multiplier: w.CashOutMultiplier,
		Payout:     w.Amount * w.CashOutMultiplier,
		Profit:     w.Profit,
		Balance:    newBalance,
		Message:    "Cashed out",
	}
}

func (s *Scheduler) handleTick(cmd tickCmd) {
	if s.round == nil || cmd.roundID != s.round.RoundID {
		return // stale timer from a previous round
	}

	switch s.round.Status {
	case StatusWaiting:
		remaining := s.phaseDeadline.Sub(s.now())
		if remaining < 0 {
			remaining = 0
		}
		s.hub.Broadcast(Event{Type: EventCountdown, Data: CountdownUpdate{
			RoundID:       s.round.RoundID,
			TimeToStartMs: remaining.Milliseconds(),
		}})

	case StatusFlying:
		now := s.now()
		elapsed := now.Sub(*s.round.StartedAt)
		multiplier := MultiplierAt(elapsed)

		if multiplier >= s.round.CrashPoint {
			s.crash(now)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), balanceOpTimeout)
		settled := s.ledger.EvaluateAutoCashOuts(ctx, s.round, multiplier, now)
		cancel()
		for _, w := range settled {
			s.hub.Broadcast(Event{Type: EventCashedOut, Data: BetCashedOut{
				RoundID:    s.round.RoundID,
				UserID:     w.UserID,
				Multiplier: w.CashOutMultiplier,
				Payout:     w.Amount * w.CashOutMultiplier,
				Profit:     w.Profit,
				IsAuto:     true,
			}})
			s.log.Infof("[CASHOUT] auto cashout for user %s at %.2fx on round %d", w.UserID, w.CashOutMultiplier, s.round.RoundID)
		}

		s.hub.Broadcast(Event{Type: EventTick, Data: MultiplierTick{
			RoundID:    s.round.RoundID,
			Multiplier: multiplier,
			ElapsedMs:  elapsed.Milliseconds(),
		}})
	}
}

func (s *Scheduler) handleAdvance(cmd advancePhaseCmd) {
	if s.round == nil || cmd.roundID != s.round.RoundID || cmd.from != s.round.Status {
		return // stale timer
	}

	switch cmd.from {
	case StatusWaiting:
		s.startFlight()
	case StatusCrashed:
		s.completeRound()
	}
}

// startFlight begins the multiplier climb. The round starts whether or not
// any bets exist, to keep the public clock predictable.
func (s *Scheduler) startFlight() {
	s.stopPhaseTicker()

	now := s.now()
	s.round.Status = StatusFlying
	s.round.StartedAt = &now

	s.log.Infof("[GAME] round %d flying with %d bets (%.2f total)",
		s.round.RoundID, len(s.round.Bets), s.round.TotalBetAmount())

	s.publishState()
	s.startPhaseTicker(s.cfg.TickInterval)
}

// crash is the terminal flight event: the curve reached the pre-committed
// crash point. The reveal happens-after the last in-window cash-out because
// both run on the same command queue.
func (s *Scheduler) crash(now time.Time) {
	s.stopPhaseTicker()

	// The crashing tick may have overshot auto targets along with the crash
	// point itself. Targets below the crash point still pay at their own
	// value before losses settle.
	ctx, cancel := context.WithTimeout(context.Background(), balanceOpTimeout)
	settled := s.ledger.SettleAutosBelow(ctx, s.round, s.round.CrashPoint, now)
	cancel()
	for _, w := range settled {
		s.hub.Broadcast(Event{Type: EventCashedOut, Data: BetCashedOut{
			RoundID:    s.round.RoundID,
			UserID:     w.UserID,
			Multiplier: w.CashOutMultiplier,
			Payout:     w.Amount * w.CashOutMultiplier,
			Profit:     w.Profit,
			IsAuto:     true,
		}})
		s.log.Infof("[CASHOUT] auto cashout for user %s at %.2fx on round %d", w.UserID, w.CashOutMultiplier, s.round.RoundID)
	}

	s.round.Status = StatusCrashed
	s.round.CrashedAt = &now
	lost := s.round.SettleLosses()

	s.log.Infof("[GAME] round %d crashed at %.2fx (%d winners, %d losses)",
		s.round.RoundID, s.round.CrashPoint, s.round.WinnerCount(), lost)

	s.publishState()
	s.armAdvance(StatusCrashed, s.cfg.CrashedDuration)
}

func (s *Scheduler) completeRound() {
	now := s.now()
	s.round.Status = StatusCompleted
	s.round.CompletedAt = &now

	s.publishState()

	if s.archive != nil {
		// The entry is an immutable copy; persistence runs off the command
		// loop so a slow archive never delays the next round.
		entry := s.round.Archive()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
			defer cancel()
			if err := s.archive.Archive(ctx, entry); err != nil {
				s.log.Errorf("[ARCHIVE] round %d: %v", entry.RoundID, err)
			}
		}()
	}

	s.log.Infof("[GAME] round %d completed", s.round.RoundID)
	s.startRound()
}

// rotateEpoch starts a new seed epoch after a fairness-integrity fault so a
// possibly compromised seed/nonce sequence is never continued.
func (s *Scheduler) rotateEpoch() {
	s.seedEpoch = uuid.NewString()
	s.nonce = 0
	if s.round != nil && s.round.Status != StatusCompleted {
		ctx, cancel := context.WithTimeout(context.Background(), balanceOpTimeout)
		s.ledger.RefundAll(ctx, s.round)
		cancel()
		now := s.now()
		s.round.Status = StatusCompleted
		s.round.CompletedAt = &now
		s.publishState()
	}
}

func (s *Scheduler) snapshot(userID string) Snapshot {
	if s.round == nil {
		return Snapshot{}
	}

	snap := Snapshot{
		RoundID:        s.round.RoundID,
		Status:         s.round.Status,
		ServerSeedHash: s.round.ServerSeedHash,
		Multiplier:     MinMultiplier,
		Bets:           s.round.PublicBets(),
	}

	switch s.round.Status {
	case StatusWaiting:
		remaining := s.phaseDeadline.Sub(s.now())
		if remaining < 0 {
			remaining = 0
		}
		snap.TimeToStartMs = remaining.Milliseconds()
	case StatusFlying:
		elapsed := s.now().Sub(*s.round.StartedAt)
		snap.ElapsedMs = elapsed.Milliseconds()
		snap.Multiplier = MultiplierAt(elapsed)
	case StatusCrashed, StatusCompleted:
		snap.Multiplier = s.round.CrashPoint
		snap.CrashPoint = s.round.CrashPoint
		if s.round.StartedAt != nil && s.round.CrashedAt != nil {
			snap.ElapsedMs = s.round.CrashedAt.Sub(*s.round.StartedAt).Milliseconds()
		}
	}

	if w, ok := s.round.Bet(userID); ok {
		bet := *w
		snap.YourBet = &bet
	}
	return snap
}

func (s *Scheduler) publishState() {
	state := RoundStateChanged{
		RoundID:        s.round.RoundID,
		Status:         s.round.Status,
		ServerSeedHash: s.round.ServerSeedHash,
		TotalBets:      len(s.round.Bets),
		TotalAmount:    s.round.TotalBetAmount(),
	}

	if s.round.Status == StatusWaiting {
		state.TimeToStartMs = s.phaseDeadline.Sub(s.now()).Milliseconds()
	}

	// The crash point and seed stay secret until the round is over.
	if s.round.Status == StatusCrashed || s.round.Status == StatusCompleted {
		state.CrashPoint = s.round.CrashPoint
		state.ServerSeed = s.round.ServerSeed
	}

	s.hub.Broadcast(Event{Type: EventRoundState, Data: state})
}

// startPhaseTicker feeds tick commands for the current round into the
// command queue until stopped.
func (s *Scheduler) startPhaseTicker(interval time.Duration) {
	s.stopPhaseTicker()

	roundID := s.round.RoundID
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				select {
				case s.commands <- tickCmd{roundID: roundID}:
				case <-done:
					return
				case <-s.stopCh:
					return
				}
			}
		}
	}()

	s.stopTicker = func() { close(done) }
}

func (s *Scheduler) stopPhaseTicker() {
	if s.stopTicker != nil {
		s.stopTicker()
		s.stopTicker = nil
	}
}

// armAdvance schedules the phase transition timer. The command carries the
// round and phase it was armed for, so a late-firing timer is harmless.
func (s *Scheduler) armAdvance(from RoundStatus, after time.Duration) {
	roundID := s.round.RoundID
	time.AfterFunc(after, func() {
		select {
		case s.commands <- advancePhaseCmd{roundID: roundID, from: from}:
		case <-s.stopCh:
		}
	})
}
