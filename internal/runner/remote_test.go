package runner_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/avelier/syncdeck/internal/runner"
)

// fleetServer fakes the hosted runner control API for a single runner id.
func fleetServer(t *testing.T, id string, healthy *atomic.Bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	base := "/v1/runners/" + id

	mux.HandleFunc(base, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]string{"id": id, "state": "provisioned"})
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc(base+"/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if healthy != nil && !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc(base+"/sync", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req runner.SyncRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(runner.SyncResult{
			Records:    10,
			Bytes:      512,
			DurationMS: 7,
			LogLines:   []string{"sync complete"},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteFactoryGetUnknownRunner(t *testing.T) {
	srv := fleetServer(t, "known", nil)
	f := runner.NewRemoteFactory(srv.URL)

	_, err := f.Get(context.Background(), "unknown")
	if err == nil {
		t.Fatal("Get succeeded for a runner the fleet does not know")
	}
	if !strings.Contains(err.Error(), "unknown") {
		t.Errorf("error %q does not name the runner", err)
	}
}

func TestRemoteFactoryGetEmptyID(t *testing.T) {
	f := runner.NewRemoteFactory("http://fleet.invalid")
	if _, err := f.Get(context.Background(), ""); err == nil {
		t.Fatal("Get accepted empty runner id, want error")
	}
}

func TestRemoteRunnerHealthTransition(t *testing.T) {
	var healthy atomic.Bool
	srv := fleetServer(t, "r1", &healthy)
	f := runner.NewRemoteFactory(srv.URL)

	h, err := f.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h.ID() != "r1" {
		t.Errorf("handle ID = %q, want %q", h.ID(), "r1")
	}

	if err := h.Health(context.Background()); err == nil {
		t.Fatal("Health succeeded while fleet reports unavailable")
	}

	healthy.Store(true)
	if err := h.Health(context.Background()); err != nil {
		t.Fatalf("Health after fleet became ready: %v", err)
	}
}

func TestRemoteRunnerRunSync(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := fleetServer(t, "r1", &healthy)
	f := runner.NewRemoteFactory(srv.URL)

	h, err := f.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	var lines []string
	result, err := h.RunSync(context.Background(), runner.SyncRequest{
		RunID:     "run-9",
		LogWriter: func(line string) { lines = append(lines, line) },
	})
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if result.Records != 10 {
		t.Errorf("Records = %d, want 10", result.Records)
	}
	if len(lines) != 1 || lines[0] != "sync complete" {
		t.Errorf("log lines = %v, want [sync complete]", lines)
	}
}

func TestRemoteRunnerTeardown(t *testing.T) {
	srv := fleetServer(t, "r1", nil)
	f := runner.NewRemoteFactory(srv.URL)

	h, err := f.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := h.Teardown(context.Background()); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
}

func TestRemoteFactoryGetFleetUnreachable(t *testing.T) {
	srv := fleetServer(t, "r1", nil)
	url := srv.URL
	srv.Close()

	f := runner.NewRemoteFactory(url)
	if _, err := f.Get(context.Background(), "r1"); err == nil {
		t.Fatal("Get succeeded against a closed fleet server")
	}
}
