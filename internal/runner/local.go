package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

const (
	socketSuffix = ".sock"

	// localHTTPTimeout bounds each request to a local runner. Health checks
	// must fail fast so the resolver's poll cadence holds.
	localHTTPTimeout = 5 * time.Second

	// gracefulStopTimeout is the time a runner gets to exit after SIGTERM
	// before Teardown escalates to SIGKILL.
	gracefulStopTimeout = 3 * time.Second
)

// localProc tracks one spawned runner process.
type localProc struct {
	cmd    *exec.Cmd
	socket string
	done   chan struct{} // closed when the process exits
}

func (p *localProc) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// LocalFactory spawns sync-runner processes on this host, one per runner
// identifier, each serving HTTP over its own unix socket under baseDir.
// Repeated Get calls for the same identifier reuse the running process.
type LocalFactory struct {
	baseDir string
	binary  string
	logger  *slog.Logger

	mu    sync.Mutex
	procs map[string]*localProc
}

// NewLocalFactory creates a factory that spawns the given runner binary
// with sockets under baseDir.
func NewLocalFactory(baseDir, binary string, logger *slog.Logger) *LocalFactory {
	return &LocalFactory{
		baseDir: baseDir,
		binary:  binary,
		logger:  logger,
		procs:   make(map[string]*localProc),
	}
}

// Get returns a handle to the runner process for id, spawning it first if
// it is not already running. The handle is usable immediately; readiness is
// the resolver's concern.
func (f *LocalFactory) Get(_ context.Context, id string) (Runner, error) {
	if id == "" {
		return nil, errors.New("runner id is empty")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.procs[id]; ok && p.alive() {
		return f.newHandle(id, p), nil
	}

	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create runner dir: %w", err)
	}

	socket := filepath.Join(f.baseDir, id+socketSuffix)
	// A crashed runner can leave its socket behind; the new process must be
	// able to bind it.
	_ = os.Remove(socket)

	cmd := exec.Command(f.binary, "--socket", socket, "--runner-id", id)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn runner %s: %w", id, err)
	}

	p := &localProc{cmd: cmd, socket: socket, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		close(p.done)
		f.logger.Info("runner process exited", "runner_id", id, "error", err)
	}()

	f.procs[id] = p
	f.logger.Info("spawned runner process", "runner_id", id, "pid", cmd.Process.Pid, "socket", socket)

	return f.newHandle(id, p), nil
}

// newHandle builds a handle whose HTTP client dials the runner's unix socket.
func (f *LocalFactory) newHandle(id string, p *localProc) *localRunner {
	return &localRunner{
		id:      id,
		factory: f,
		proc:    p,
		client: &http.Client{
			Timeout: localHTTPTimeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", p.socket)
				},
			},
		},
	}
}

// stop terminates the runner process for id: SIGTERM first, SIGKILL if it
// does not exit within the grace period.
func (f *LocalFactory) stop(ctx context.Context, id string) error {
	f.mu.Lock()
	p, ok := f.procs[id]
	if ok {
		delete(f.procs, id)
	}
	f.mu.Unlock()

	if !ok || !p.alive() {
		return nil
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal runner %s: %w", id, err)
	}

	select {
	case <-p.done:
	case <-time.After(gracefulStopTimeout):
		if err := p.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill runner %s: %w", id, err)
		}
		<-p.done
	case <-ctx.Done():
		return fmt.Errorf("stop runner %s: %w", id, ctx.Err())
	}

	_ = os.Remove(p.socket)
	return nil
}

// localRunner is a handle to a runner process on this host. All traffic
// goes over the process's unix socket; the URL host is a placeholder.
type localRunner struct {
	id      string
	factory *LocalFactory
	proc    *localProc
	client  *http.Client
}

func (r *localRunner) ID() string { return r.id }

func (r *localRunner) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://runner/healthz", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check runner %s: %w", r.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check runner %s: status %d", r.id, resp.StatusCode)
	}
	return nil
}

func (r *localRunner) RunSync(ctx context.Context, syncReq SyncRequest) (SyncResult, error) {
	body, err := json.Marshal(syncReq)
	if err != nil {
		return SyncResult{}, fmt.Errorf("marshal sync request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://runner/v1/sync", bytes.NewReader(body))
	if err != nil {
		return SyncResult{}, fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// A sync can far outlive the per-request timeout used for health
	// checks, so issue it on a client without one; ctx still bounds it.
	client := &http.Client{Transport: r.client.Transport}
	resp, err := client.Do(req)
	if err != nil {
		return SyncResult{}, fmt.Errorf("run sync on runner %s: %w", r.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return SyncResult{}, fmt.Errorf("run sync on runner %s: status %d: %s", r.id, resp.StatusCode, msg)
	}

	var result SyncResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return SyncResult{}, fmt.Errorf("decode sync result: %w", err)
	}

	if syncReq.LogWriter != nil {
		for _, line := range result.LogLines {
			syncReq.LogWriter(line)
		}
	}
	return result, nil
}

func (r *localRunner) Teardown(ctx context.Context) error {
	return r.factory.stop(ctx, r.id)
}
