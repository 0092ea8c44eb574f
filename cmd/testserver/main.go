// testserver starts a syncdeck API server with a stub runner and an
// in-memory database for end-to-end testing.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/avelier/syncdeck/internal/api"
	"github.com/avelier/syncdeck/internal/engine"
	"github.com/avelier/syncdeck/internal/model"
	"github.com/avelier/syncdeck/internal/runner"
	"github.com/avelier/syncdeck/internal/store"
)

// stubRunner fakes a sync runner that becomes healthy after a short warmup
// and reports a fixed result, so resolver polling and the full run
// lifecycle can be exercised without spawning processes.
type stubRunner struct {
	id      string
	readyAt time.Time
	delay   time.Duration
}

func (s *stubRunner) ID() string { return s.id }

func (s *stubRunner) Health(_ context.Context) error {
	if time.Now().Before(s.readyAt) {
		return context.DeadlineExceeded
	}
	return nil
}

func (s *stubRunner) RunSync(ctx context.Context, req runner.SyncRequest) (runner.SyncResult, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return runner.SyncResult{}, ctx.Err()
	}

	lines := []string{
		"connecting to source " + req.SourceID,
		"extracted 1200 records",
		"loading into " + req.DestinationID,
		"sync complete",
	}
	if req.LogWriter != nil {
		for _, line := range lines {
			req.LogWriter(line)
		}
	}

	return runner.SyncResult{
		Records:    1200,
		Bytes:      98304,
		DurationMS: int(s.delay.Milliseconds()),
		LogLines:   lines,
	}, nil
}

func (s *stubRunner) Teardown(_ context.Context) error { return nil }

// stubFactory hands out one warm-up stub per runner identifier.
type stubFactory struct{}

func (stubFactory) Get(_ context.Context, id string) (runner.Runner, error) {
	return &stubRunner{
		id:      id,
		readyAt: time.Now().Add(2 * time.Second),
		delay:   500 * time.Millisecond,
	}, nil
}

func main() {
	addr := ":8080"
	if v := os.Getenv("SYNCDECK_LISTEN_ADDR"); v != "" {
		addr = v
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	seed := []model.Integration{
		{ID: "postgres", Name: "PostgreSQL", Kind: model.KindSource, Version: "1.4.0"},
		{ID: "warehouse", Name: "Local Warehouse", Kind: model.KindDestination, Version: "0.4.0"},
	}
	if err := db.SeedIntegrations(context.Background(), seed); err != nil {
		log.Fatalf("failed to seed integrations: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	res := runner.NewResolver(runner.Config{
		Mode:         model.ModeLocal,
		PollInterval: 250 * time.Millisecond,
		LocalTimeout: 10 * time.Second,
	}, stubFactory{}, stubFactory{}, logger)

	eng := engine.NewEngine(db, res, nil, logger)
	srv := api.NewServer(addr, db, eng, res, nil, logger)

	logger.Info("testserver: starting", "addr", addr)
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
