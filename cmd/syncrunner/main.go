// Command syncrunner is the per-runner daemon the control plane spawns in
// local mode. It serves HTTP over a unix socket: a readiness endpoint the
// resolver polls, and a sync endpoint the engine drives.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/avelier/syncdeck/internal/runner"
)

const shutdownTimeout = 5 * time.Second

// daemon holds the runner's identity and readiness state.
type daemon struct {
	runnerID string
	readyAt  time.Time
	logger   *slog.Logger
}

func main() {
	var (
		socket     = flag.String("socket", "", "unix socket path to serve on")
		runnerID   = flag.String("runner-id", "", "identifier of this runner")
		readyAfter = flag.Duration("ready-after", 0, "report unhealthy for this long after start")
	)
	flag.Parse()

	if *socket == "" || *runnerID == "" {
		log.Fatal("both --socket and --runner-id are required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("runner_id", *runnerID)

	d := &daemon{
		runnerID: *runnerID,
		readyAt:  time.Now().Add(*readyAfter),
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", d.handleHealthz)
	r.Post("/v1/sync", d.handleSync)

	l, err := net.Listen("unix", *socket)
	if err != nil {
		log.Fatalf("listen on %s: %v", *socket, err)
	}

	srv := &http.Server{Handler: r}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("syncrunner listening", "socket", *socket)
		if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		log.Fatalf("serve: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}

func (d *daemon) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if time.Now().Before(d.readyAt) {
		http.Error(w, "warming up", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "runner_id": d.runnerID})
}

// handleSync simulates one sync pass. A real connector would stream from
// the source and write batches to the destination here.
func (d *daemon) handleSync(w http.ResponseWriter, r *http.Request) {
	var req runner.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	d.logger.Info("sync started",
		"run_id", req.RunID,
		"connection_id", req.ConnectionID,
		"source_id", req.SourceID,
		"destination_id", req.DestinationID,
	)

	start := time.Now()
	records := int64(rand.Intn(5000) + 100)
	bytes := records * int64(rand.Intn(400)+64)

	result := runner.SyncResult{
		Records:    records,
		Bytes:      bytes,
		DurationMS: int(time.Since(start).Milliseconds()),
		LogLines: []string{
			fmt.Sprintf("connecting to source %s", req.SourceID),
			fmt.Sprintf("extracted %d records", records),
			fmt.Sprintf("loading into %s", req.DestinationID),
			fmt.Sprintf("loaded %d bytes", bytes),
			"sync complete",
		},
	}

	d.logger.Info("sync finished", "run_id", req.RunID, "records", records, "bytes", bytes)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		d.logger.Error("encode sync result", "error", err)
	}
}
