package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avelier/syncdeck/internal/engine"
	"github.com/avelier/syncdeck/internal/filestore"
	"github.com/avelier/syncdeck/internal/model"
	"github.com/avelier/syncdeck/internal/runner"
	"github.com/avelier/syncdeck/internal/store"
)

// stubRunner is a configurable runner handle for engine tests.
type stubRunner struct {
	id       string
	healthy  bool
	logLines []string
	result   runner.SyncResult
	syncErr  error
	delay    time.Duration
}

func (s *stubRunner) ID() string { return s.id }

func (s *stubRunner) Health(_ context.Context) error {
	if !s.healthy {
		return errors.New("not ready")
	}
	return nil
}

func (s *stubRunner) RunSync(ctx context.Context, req runner.SyncRequest) (runner.SyncResult, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return runner.SyncResult{}, ctx.Err()
	}
	if s.syncErr != nil {
		return runner.SyncResult{}, s.syncErr
	}
	if req.LogWriter != nil {
		for _, line := range s.logLines {
			req.LogWriter(line)
		}
	}
	return s.result, nil
}

func (s *stubRunner) Teardown(_ context.Context) error { return nil }

// stubFactory hands out a fixed runner handle.
type stubFactory struct {
	runner runner.Runner
}

func (f *stubFactory) Get(_ context.Context, _ string) (runner.Runner, error) {
	return f.runner, nil
}

func newTestEngine(t *testing.T, h runner.Runner, files *filestore.Client) (*engine.Engine, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	res := runner.NewResolver(runner.Config{
		Mode:         model.ModeLocal,
		PollInterval: 10 * time.Millisecond,
		LocalTimeout: 200 * time.Millisecond,
	}, &stubFactory{runner: h}, &stubFactory{}, logger)

	eng := engine.NewEngine(s, res, files, logger)
	return eng, s
}

func makeConnection() *model.Connection {
	now := time.Now().UTC()
	return &model.Connection{
		ID:            model.NewID(),
		Name:          "pg to warehouse",
		SourceID:      "postgres",
		DestinationID: "warehouse",
		RunnerID:      "runner-1",
		Enabled:       true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// waitForStatus polls the store until the run reaches the expected status.
func waitForStatus(t *testing.T, s store.Store, id, expected string, timeout time.Duration) *model.SyncRun {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		r, err := s.GetRun(context.Background(), id)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if r.Status == expected {
			return r
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach status %q within %v", id, expected, timeout)
	return nil
}

func TestTriggerSyncHappyPath(t *testing.T) {
	h := &stubRunner{
		id:       "runner-1",
		healthy:  true,
		logLines: []string{"extracting", "loading"},
		result:   runner.SyncResult{Records: 250, Bytes: 8192, DurationMS: 12},
	}
	eng, s := newTestEngine(t, h, nil)

	conn := makeConnection()
	run, err := eng.TriggerSync(context.Background(), conn)
	if err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}
	if run.Status != model.StatusPending {
		t.Errorf("initial status = %q, want pending", run.Status)
	}

	got := waitForStatus(t, s, run.ID, model.StatusSucceeded, 5*time.Second)
	eng.Wait()

	if got.Records == nil || *got.Records != 250 {
		t.Errorf("Records = %v, want 250", got.Records)
	}
	if got.Bytes == nil || *got.Bytes != 8192 {
		t.Errorf("Bytes = %v, want 8192", got.Bytes)
	}
	if got.DurationMS == nil || *got.DurationMS != 12 {
		t.Errorf("DurationMS = %v, want runner-reported 12", got.DurationMS)
	}

	lines, err := s.GetLogLines(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetLogLines: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("persisted %d log lines, want 2", len(lines))
	}
	if lines[0].Line != "extracting" {
		t.Errorf("first line = %q, want extracting", lines[0].Line)
	}
}

func TestTriggerSyncDisabledConnection(t *testing.T) {
	eng, _ := newTestEngine(t, &stubRunner{healthy: true}, nil)

	conn := makeConnection()
	conn.Enabled = false

	if _, err := eng.TriggerSync(context.Background(), conn); !errors.Is(err, engine.ErrConnectionDisabled) {
		t.Fatalf("TriggerSync error = %v, want ErrConnectionDisabled", err)
	}
}

func TestSyncFailsWhenRunnerNeverHealthy(t *testing.T) {
	h := &stubRunner{id: "runner-1", healthy: false}
	eng, s := newTestEngine(t, h, nil)

	run, err := eng.TriggerSync(context.Background(), makeConnection())
	if err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}

	got := waitForStatus(t, s, run.ID, model.StatusFailed, 5*time.Second)
	eng.Wait()

	if !strings.Contains(got.Error, "resolve runner") {
		t.Errorf("run error = %q, want resolver failure", got.Error)
	}
	if !strings.Contains(got.Error, "did not become healthy") {
		t.Errorf("run error = %q, want health timeout detail", got.Error)
	}
}

func TestSyncFailsWhenRunnerErrors(t *testing.T) {
	h := &stubRunner{
		id:      "runner-1",
		healthy: true,
		syncErr: errors.New("source unreachable"),
	}
	eng, s := newTestEngine(t, h, nil)

	run, err := eng.TriggerSync(context.Background(), makeConnection())
	if err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}

	got := waitForStatus(t, s, run.ID, model.StatusFailed, 5*time.Second)
	eng.Wait()

	if !strings.Contains(got.Error, "source unreachable") {
		t.Errorf("run error = %q, want runner error", got.Error)
	}
	if got.StartedAt == nil {
		t.Error("StartedAt not set on failed run")
	}
}

func TestSyncTimeout(t *testing.T) {
	h := &stubRunner{
		id:      "runner-1",
		healthy: true,
		delay:   10 * time.Second,
	}
	eng, s := newTestEngine(t, h, nil)
	eng.SetSyncTimeout(100 * time.Millisecond)

	run, err := eng.TriggerSync(context.Background(), makeConnection())
	if err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}

	got := waitForStatus(t, s, run.ID, model.StatusFailed, 5*time.Second)
	eng.Wait()

	if !strings.Contains(got.Error, "timed out") {
		t.Errorf("run error = %q, want timeout message", got.Error)
	}
}

func TestSyncUploadsArtifact(t *testing.T) {
	var mu sync.Mutex
	objects := make(map[string][]byte)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/v1/files/")
		switch r.Method {
		case http.MethodPut:
			data, _ := io.ReadAll(r.Body)
			mu.Lock()
			objects[key] = data
			mu.Unlock()
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)

	h := &stubRunner{
		id:       "runner-1",
		healthy:  true,
		logLines: []string{"extracting", "loading"},
		result:   runner.SyncResult{Records: 1},
	}
	eng, s := newTestEngine(t, h, filestore.NewClient(srv.URL))

	run, err := eng.TriggerSync(context.Background(), makeConnection())
	if err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}

	got := waitForStatus(t, s, run.ID, model.StatusSucceeded, 5*time.Second)
	eng.Wait()

	wantKey := "runs/" + run.ID + "/logs.txt"
	if got.ArtifactKey != wantKey {
		t.Fatalf("ArtifactKey = %q, want %q", got.ArtifactKey, wantKey)
	}

	mu.Lock()
	data := objects[wantKey]
	mu.Unlock()
	if string(data) != "extracting\nloading\n" {
		t.Errorf("artifact content = %q", data)
	}
}

func TestLogsStreamToBroker(t *testing.T) {
	h := &stubRunner{
		id:       "runner-1",
		healthy:  true,
		logLines: []string{"one", "two"},
		// Give the subscriber time to attach before lines are published.
		delay: 100 * time.Millisecond,
	}
	eng, _ := newTestEngine(t, h, nil)

	run, err := eng.TriggerSync(context.Background(), makeConnection())
	if err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}

	ch, unsub := eng.Broker().Subscribe(run.ID)
	defer unsub()

	var got []string
	for line := range ch {
		got = append(got, line)
	}
	eng.Wait()

	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("streamed lines = %v, want [one two]", got)
	}
}
