package balance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyBalancePrefix    = "crash:balance:"
	keyPendingSettle    = "crash:settlements:pending"
	pendingListMaxItems = 1000
)

// debitScript checks and deducts in one server-side step, so a concurrent
// debit from another subsystem can never interleave between the read and
// the write. Returns nil when funds are insufficient.
var debitScript = redis.NewScript(`
local bal = tonumber(redis.call('GET', KEYS[1]) or '0')
local amt = tonumber(ARGV[1])
if bal < amt then
  return false
end
return redis.call('INCRBYFLOAT', KEYS[1], -amt)
`)

// RedisStore implements Store on Redis, the store shared with the deposit
// and single-player game subsystems.
type RedisStore struct {
	client *redis.Client
}

var (
	_ Store        = (*RedisStore)(nil)
	_ PendingStore = (*RedisPendingStore)(nil)
)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Debit(ctx context.Context, userID string, amount float64) (float64, error) {
	res, err := debitScript.Run(ctx, s.client, []string{keyBalancePrefix + userID}, amount).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("debit %s: %w", userID, err)
	}

	newBalance, err := strconv.ParseFloat(fmt.Sprintf("%v", res), 64)
	if err != nil {
		return 0, fmt.Errorf("debit %s: bad script reply %v", userID, res)
	}
	return newBalance, nil
}

func (s *RedisStore) Credit(ctx context.Context, userID string, amount float64) (float64, error) {
	newBalance, err := s.client.IncrByFloat(ctx, keyBalancePrefix+userID, amount).Result()
	if err != nil {
		return 0, fmt.Errorf("credit %s: %w", userID, err)
	}
	return newBalance, nil
}

func (s *RedisStore) Get(ctx context.Context, userID string) (float64, error) {
	bal, err := s.client.Get(ctx, keyBalancePrefix+userID).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance %s: %w", userID, err)
	}
	return bal, nil
}

func (s *RedisStore) Set(ctx context.Context, userID string, amount float64) error {
	return s.client.Set(ctx, keyBalancePrefix+userID, amount, 0).Err()
}

// RedisPendingStore keeps settlements awaiting manual reconciliation in a
// capped list.
type RedisPendingStore struct {
	client *redis.Client
}

func NewRedisPendingStore(client *redis.Client) *RedisPendingStore {
	return &RedisPendingStore{client: client}
}

func (s *RedisPendingStore) Add(ctx context.Context, item PendingSettlement) error {
	if item.FailedAt.IsZero() {
		item.FailedAt = time.Now().UTC()
	}
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, keyPendingSettle, data)
	pipe.LTrim(ctx, keyPendingSettle, 0, pendingListMaxItems-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisPendingStore) List(ctx context.Context, limit int64) ([]PendingSettlement, error) {
	if limit <= 0 || limit > pendingListMaxItems {
		limit = pendingListMaxItems
	}
	raw, err := s.client.LRange(ctx, keyPendingSettle, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	items := make([]PendingSettlement, 0, len(raw))
	for _, entry := range raw {
		var item PendingSettlement
		if json.Unmarshal([]byte(entry), &item) == nil {
			items = append(items, item)
		}
	}
	return items, nil
}
