package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"crashd/internal/game"
)

const (
	keyCurrentRound = "crash:round:current"
	keyRoundPrefix  = "crash:round:"
	roundKeyTTL     = time.Hour
)

// RoundMirror keeps the latest round state visible in Redis for operational
// tooling. It subscribes to the broadcast stream and writes only on phase
// transitions, never on ticks, so the round loop stays off the network for
// the hot path.
type RoundMirror struct {
	rdb *redis.Client
	log *zap.SugaredLogger
}

var _ game.Broadcaster = (*RoundMirror)(nil)

func NewRoundMirror(rdb *redis.Client, log *zap.SugaredLogger) *RoundMirror {
	return &RoundMirror{rdb: rdb, log: log}
}

func (m *RoundMirror) Broadcast(event game.Event) {
	state, ok := event.Data.(game.RoundStateChanged)
	if !ok {
		return
	}

	data, err := json.Marshal(state)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := m.rdb.TxPipeline()
	pipe.Set(ctx, keyCurrentRound, data, 0)
	pipe.Set(ctx, fmt.Sprintf("%s%d", keyRoundPrefix, state.RoundID), data, roundKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		// Mirror only; the round does not depend on it.
		m.log.Warnf("[CACHE] round mirror update failed: %v", err)
	}
}
