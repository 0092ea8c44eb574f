package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avelier/syncdeck/internal/filestore"
	"github.com/avelier/syncdeck/internal/model"
	"github.com/avelier/syncdeck/internal/runner"
	"github.com/avelier/syncdeck/internal/store"
)

// DefaultSyncTimeout bounds a single sync execution, resolver wait included.
const DefaultSyncTimeout = 30 * time.Minute

// ErrConnectionDisabled is returned when a sync is triggered on a disabled connection.
var ErrConnectionDisabled = errors.New("connection is disabled")

// Engine orchestrates asynchronous sync execution.
type Engine struct {
	store    store.Store
	resolver *runner.Resolver
	files    *filestore.Client // nil disables artifact uploads
	logger   *slog.Logger
	wg       sync.WaitGroup
	broker   *LogBroker
	timeout  time.Duration
}

// NewEngine creates a new sync engine. files may be nil when no file store
// is configured.
func NewEngine(s store.Store, res *runner.Resolver, files *filestore.Client, logger *slog.Logger) *Engine {
	return &Engine{
		store:    s,
		resolver: res,
		files:    files,
		logger:   logger,
		broker:   NewLogBroker(),
		timeout:  DefaultSyncTimeout,
	}
}

// SetSyncTimeout overrides the per-run execution budget.
func (e *Engine) SetSyncTimeout(d time.Duration) {
	if d > 0 {
		e.timeout = d
	}
}

// Broker returns the engine's log broker for SSE subscription.
func (e *Engine) Broker() *LogBroker {
	return e.broker
}

// Wait blocks until all in-flight sync goroutines complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// TriggerSync creates a sync run record and launches asynchronous execution
// in a goroutine. The run is stored with status "pending" before returning.
// The goroutine operates on copies to avoid data races with the caller.
func (e *Engine) TriggerSync(ctx context.Context, conn *model.Connection) (*model.SyncRun, error) {
	if !conn.Enabled {
		return nil, ErrConnectionDisabled
	}

	run := &model.SyncRun{
		ID:           model.NewID(),
		ConnectionID: conn.ID,
		Status:       model.StatusPending,
		RunnerID:     conn.RunnerID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create sync run: %w", err)
	}

	connCopy := *conn
	runCopy := *run
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.execute(&connCopy, &runCopy)
	}()

	return run, nil
}

// execute drives the run lifecycle in a goroutine: pending→running→succeeded/failed.
func (e *Engine) execute(conn *model.Connection, run *model.SyncRun) {
	// Close the log stream when execution finishes, regardless of outcome.
	defer e.broker.Close(run.ID)

	if err := e.store.UpdateRunStatus(context.Background(), run.ID, model.StatusRunning); err != nil {
		e.logger.Error("failed to transition to running", "run_id", run.ID, "error", err)
		e.finishFailed(run.ID, nil, fmt.Sprintf("failed to start: %v", err))
		return
	}

	// Capture start time right after the running transition so started_at
	// stays consistent across success, failure, and resolve-error paths.
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	// The log writer dual-writes: persist to SQLite for historical viewing,
	// then publish to the broker for real-time SSE.
	var seq atomic.Int32
	logWriter := func(line string) {
		currentSeq := int(seq.Add(1) - 1)
		if err := e.store.InsertLogLine(ctx, run.ID, currentSeq, line); err != nil {
			e.logger.Error("failed to persist log line", "run_id", run.ID, "seq", currentSeq, "error", err)
		}
		e.broker.Publish(run.ID, line)
	}

	h, err := e.resolver.Resolve(ctx, conn.RunnerID)
	if err != nil {
		e.finishFailed(run.ID, &start, fmt.Sprintf("resolve runner: %v", err))
		return
	}

	result, err := h.RunSync(ctx, runner.SyncRequest{
		RunID:         run.ID,
		ConnectionID:  conn.ID,
		SourceID:      conn.SourceID,
		DestinationID: conn.DestinationID,
		LogWriter:     logWriter,
	})
	durationMS := int(time.Since(start).Milliseconds())

	if err != nil {
		errMsg := err.Error()
		if ctx.Err() == context.DeadlineExceeded {
			errMsg = fmt.Sprintf("sync timed out after %s", e.timeout)
		}
		e.finishFailed(run.ID, &start, errMsg)
		return
	}

	// Prefer the runner-reported duration when present.
	dur := durationMS
	if result.DurationMS > 0 {
		dur = result.DurationMS
	}

	now := time.Now().UTC()
	completed := &model.SyncRun{
		ID:           run.ID,
		ConnectionID: run.ConnectionID,
		Status:       model.StatusSucceeded,
		RunnerID:     run.RunnerID,
		Records:      &result.Records,
		Bytes:        &result.Bytes,
		DurationMS:   &dur,
		StartedAt:    &start,
		FinishedAt:   &now,
	}
	completed.ArtifactKey = e.uploadArtifact(ctx, run.ID)

	if err := e.store.UpdateRun(context.Background(), completed); err != nil {
		e.logger.Error("failed to update completed run", "run_id", run.ID, "error", err)
	}
}

// uploadArtifact stores the run's log lines in the file store and returns
// the artifact key. Upload failures are logged, not fatal: the run outcome
// stands regardless.
func (e *Engine) uploadArtifact(ctx context.Context, runID string) string {
	if e.files == nil {
		return ""
	}

	lines, err := e.store.GetLogLines(ctx, runID)
	if err != nil {
		e.logger.Error("failed to read log lines for artifact", "run_id", runID, "error", err)
		return ""
	}
	if len(lines) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l.Line)
		sb.WriteByte('\n')
	}

	key := "runs/" + runID + "/logs.txt"
	if err := e.files.Upload(ctx, key, strings.NewReader(sb.String())); err != nil {
		e.logger.Error("failed to upload run artifact", "run_id", runID, "key", key, "error", err)
		return ""
	}
	return key
}

// finishFailed marks a run as failed with the given error message.
// startedAt may be nil if execution never started.
func (e *Engine) finishFailed(id string, startedAt *time.Time, errMsg string) {
	now := time.Now().UTC()
	var durationMS int
	if startedAt != nil {
		durationMS = int(time.Since(*startedAt).Milliseconds())
	}

	run := &model.SyncRun{
		ID:         id,
		Status:     model.StatusFailed,
		Error:      errMsg,
		DurationMS: &durationMS,
		StartedAt:  startedAt,
		FinishedAt: &now,
	}

	if err := e.store.UpdateRun(context.Background(), run); err != nil {
		e.logger.Error("failed to update failed run", "run_id", id, "error", err)
	}
}
