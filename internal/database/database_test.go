package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"crashd/internal/archive"
	"crashd/internal/game"
)

func mustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	var (
		dbName = "database"
		dbPwd  = "password"
		dbUser = "user"
	)

	// Create context with timeout to prevent hanging
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbContainer, err := postgres.Run(
		ctx,
		"postgres:latest",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	database = dbName
	password = dbPwd
	username = dbUser

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, err
	}

	dbPort, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, err
	}

	host = dbHost
	port = dbPort.Port()

	return dbContainer.Terminate, err
}

func TestMain(m *testing.M) {
	// Skip integration tests if SKIP_INTEGRATION env var is set
	if os.Getenv("SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}

	// Skip if Docker is not available
	if os.Getenv("CI") == "" && !isDockerAvailable() {
		os.Exit(0)
	}

	teardown, err := mustStartPostgresContainer()
	if err != nil {
		// Don't fail, just skip tests if container can't start
		os.Exit(0)
	}

	code := m.Run()

	if teardown != nil {
		teardown(context.Background())
	}

	os.Exit(code)
}

func isDockerAvailable() (available bool) {
	// testcontainers panics (rather than returning an error) when no Docker
	// host can be found; treat that as "not available" so tests skip.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.DaemonHost(ctx)
	return err == nil
}

func TestNew(t *testing.T) {
	srv := New()
	if srv == nil {
		t.Fatal("New() returned nil")
	}
}

func TestHealth(t *testing.T) {
	srv := New()

	stats := srv.Health()

	if stats["status"] != "up" {
		t.Fatalf("expected status to be up, got %s", stats["status"])
	}

	if _, ok := stats["error"]; ok {
		t.Fatalf("expected error not to be present")
	}

	if stats["message"] != "It's healthy" {
		t.Fatalf("expected message to be 'It's healthy', got %s", stats["message"])
	}
}

func TestMigrationsAndArchiveRoundtrip(t *testing.T) {
	srv := New()
	db := srv.DB()

	if err := RunMigrations(db, "../../migrations"); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	version, dirty, err := MigrationVersion(db, "../../migrations")
	if err != nil {
		t.Fatalf("MigrationVersion failed: %v", err)
	}
	if dirty {
		t.Fatal("schema reported dirty after migrating up")
	}
	if version == 0 {
		t.Fatal("expected a non-zero schema version")
	}

	store := archive.NewStore(db, nil, zap.NewNop().Sugar())
	ctx := context.Background()

	entry := game.ArchiveEntry{
		RoundID:        9001,
		CrashPoint:     2.37,
		TotalBets:      3,
		TotalAmount:    45.5,
		WinnerCount:    2,
		WinAmount:      60.25,
		ServerSeed:     "deadbeef",
		ServerSeedHash: "feedface",
		Nonce:          17,
		CompletedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := store.Archive(ctx, entry); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	// Replays must not duplicate or mutate the archived row.
	if err := store.Archive(ctx, entry); err != nil {
		t.Fatalf("second Archive failed: %v", err)
	}

	items, err := store.History(ctx, 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 archived round, got %d", len(items))
	}
	if items[0].RoundID != entry.RoundID || items[0].CrashPoint != entry.CrashPoint {
		t.Errorf("archived round = %+v, want %+v", items[0], entry)
	}
}

func TestClose(t *testing.T) {
	srv := New()

	if srv.Close() != nil {
		t.Fatalf("expected Close() to return nil")
	}
}
