package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"crashd/internal/archive"
	"crashd/internal/balance"
	"crashd/internal/cache"
	"crashd/internal/database"
	"crashd/internal/game"
	"crashd/internal/logger"
)

// broadcastTee fans scheduler events to every sink: the websocket hub and
// the Redis round mirror observe the same stream.
type broadcastTee []game.Broadcaster

func (t broadcastTee) Broadcast(event game.Event) {
	for _, sink := range t {
		sink.Broadcast(event)
	}
}

type FiberServer struct {
	*fiber.App

	db        database.Service
	cache     cache.Service
	balances  balance.Store
	pending   balance.PendingStore
	history   *archive.Store
	hub       *game.Hub
	scheduler *game.Scheduler
}

func New() *FiberServer {
	db := database.New()

	redisService := cache.New()
	if redisService == nil {
		logger.L.Fatal("[SERVER] redis is required for the balance store")
	}

	balances := balance.NewRedisStore(redisService.Client())
	pending := balance.NewRedisPendingStore(redisService.Client())
	history := archive.NewStore(db.DB(), redisService.Client(), logger.L)

	hub := game.NewHub(logger.L)
	mirror := cache.NewRoundMirror(redisService.Client(), logger.L)
	ledger := game.NewLedger(balances, pending, logger.L)
	scheduler := game.NewScheduler(game.DefaultConfig(), ledger,
		broadcastTee{hub, mirror}, history, logger.L)

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "crashd",
			AppName:       "crashd",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		db:        db,
		cache:     redisService,
		balances:  balances,
		pending:   pending,
		history:   history,
		hub:       hub,
		scheduler: scheduler,
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	go hub.Run()
	scheduler.Start()

	logger.Infof("[SERVER] round scheduler started")

	return server
}

// Shutdown stops the round loop and closes connections.
func (s *FiberServer) Shutdown() error {
	logger.Infof("[SERVER] shutting down...")

	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}
