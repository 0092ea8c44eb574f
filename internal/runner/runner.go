// Package runner provides handles to the external runner processes that
// execute sync work, and the resolver that obtains a healthy handle for a
// given runner identifier. Two handle variants exist: locally spawned
// processes and remotely hosted runners, selected by deployment mode.
package runner

import "context"

// Runner is an opaque handle to a running sync-runner process.
type Runner interface {
	// ID returns the runner identifier this handle was obtained for.
	ID() string

	// Health performs a no-argument readiness query against the runner.
	// A nil return means the runner answered and is ready for work.
	Health(ctx context.Context) error

	// RunSync executes one sync on the runner and blocks until it finishes.
	RunSync(ctx context.Context, req SyncRequest) (SyncResult, error)

	// Teardown stops the runner. The resolver never calls this; teardown
	// is always the caller's responsibility.
	Teardown(ctx context.Context) error
}

// Factory obtains runner handles by identifier.
type Factory interface {
	Get(ctx context.Context, id string) (Runner, error)
}

// SyncRequest describes one sync execution handed to a runner.
type SyncRequest struct {
	RunID         string `json:"run_id"`
	ConnectionID  string `json:"connection_id"`
	SourceID      string `json:"source_id"`
	DestinationID string `json:"destination_id"`

	// LogWriter is an optional callback invoked once per log line the
	// runner reports for this sync.
	LogWriter func(line string) `json:"-"`
}

// SyncResult holds what a runner reports after executing a sync.
type SyncResult struct {
	Records    int64    `json:"records"`
	Bytes      int64    `json:"bytes"`
	DurationMS int      `json:"duration_ms"`
	LogLines   []string `json:"log_lines,omitempty"`
}
