// Package archive persists completed-round summaries for the public crash
// history and for audit. Entries are written once and never mutated.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"crashd/internal/game"
)

const (
	keyHistory     = "crash:history"
	historyMaxSize = 100

	insertRetries = 3
)

// HistoryItem is the public slice of an archived round used by the history
// display.
type HistoryItem struct {
	RoundID     int64     `json:"round_id"`
	CrashPoint  float64   `json:"crash_point"`
	TotalBets   int       `json:"total_bets"`
	TotalAmount float64   `json:"total_amount"`
	CompletedAt time.Time `json:"completed_at"`
}

// Store writes archive entries to Postgres and mirrors the public view into
// a capped Redis list so the history endpoint stays off the database.
type Store struct {
	db  *sql.DB
	rdb *redis.Client
	log *zap.SugaredLogger
}

func NewStore(db *sql.DB, rdb *redis.Client, log *zap.SugaredLogger) *Store {
	return &Store{db: db, rdb: rdb, log: log}
}

// Archive inserts the summary row. ON CONFLICT DO NOTHING keeps entries
// immutable even if a retry races a successful earlier attempt.
func (s *Store) Archive(ctx context.Context, e game.ArchiveEntry) error {
	op := func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO crash_rounds
				(round_id, crash_point, total_bets, total_amount, winner_count,
				 win_amount, server_seed, server_seed_hash, nonce, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (round_id) DO NOTHING`,
			e.RoundID, e.CrashPoint, e.TotalBets, e.TotalAmount, e.WinnerCount,
			e.WinAmount, e.ServerSeed, e.ServerSeedHash, e.Nonce, e.CompletedAt)
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), insertRetries), ctx))
	if err != nil {
		return fmt.Errorf("archive round %d: %w", e.RoundID, err)
	}

	s.cacheHistory(ctx, e)
	return nil
}

func (s *Store) cacheHistory(ctx context.Context, e game.ArchiveEntry) {
	if s.rdb == nil {
		return
	}

	item := HistoryItem{
		RoundID:     e.RoundID,
		CrashPoint:  e.CrashPoint,
		TotalBets:   e.TotalBets,
		TotalAmount: e.TotalAmount,
		CompletedAt: e.CompletedAt,
	}
	data, err := json.Marshal(item)
	if err != nil {
		return
	}

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, keyHistory, data)
	pipe.LTrim(ctx, keyHistory, 0, historyMaxSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		// Cache only; Postgres already holds the row.
		s.log.Warnf("[ARCHIVE] history cache update failed: %v", err)
	}
}

// History returns the last N completed rounds, newest first. Redis fast
// path, Postgres fallback.
func (s *Store) History(ctx context.Context, limit int) ([]HistoryItem, error) {
	if limit <= 0 || limit > historyMaxSize {
		limit = 50
	}

	if items, err := s.historyFromCache(ctx, limit); err == nil && len(items) > 0 {
		return items, nil
	}
	return s.historyFromDB(ctx, limit)
}

func (s *Store) historyFromCache(ctx context.Context, limit int) ([]HistoryItem, error) {
	if s.rdb == nil {
		return nil, redis.Nil
	}

	raw, err := s.rdb.LRange(ctx, keyHistory, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	items := make([]HistoryItem, 0, len(raw))
	for _, entry := range raw {
		var item HistoryItem
		if json.Unmarshal([]byte(entry), &item) == nil {
			items = append(items, item)
		}
	}
	return items, nil
}

func (s *Store) historyFromDB(ctx context.Context, limit int) ([]HistoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT round_id, crash_point, total_bets, total_amount, completed_at
		FROM crash_rounds
		ORDER BY round_id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}
	defer rows.Close()

	var items []HistoryItem
	for rows.Next() {
		var item HistoryItem
		if err := rows.Scan(&item.RoundID, &item.CrashPoint, &item.TotalBets,
			&item.TotalAmount, &item.CompletedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
