package e2e

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

const (
	startupTimeout = 10 * time.Second
	pollInterval   = 100 * time.Millisecond
)

// lockedBuffer is a thread-safe wrapper around bytes.Buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (lb *lockedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.Write(p)
}

func (lb *lockedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.String()
}

// serverProc holds the running control-plane subprocess and its output.
type serverProc struct {
	cmd    *exec.Cmd
	stdout *lockedBuffer
	url    string
}

var (
	builtServer string
	builtRunner string
	buildOnce   sync.Once
	buildErr    error
)

// getBinaries builds both the control plane and the runner daemon once per
// test run. Local mode needs the runner binary on disk to spawn.
func getBinaries(t *testing.T) (server, runner string) {
	t.Helper()
	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "syncdeck-e2e-*")
		if err != nil {
			buildErr = err
			return
		}
		root := findRepoRoot(t)

		for _, b := range []struct {
			out string
			pkg string
		}{
			{filepath.Join(dir, "syncdeck"), "./cmd/syncdeck"},
			{filepath.Join(dir, "syncrunner"), "./cmd/syncrunner"},
		} {
			cmd := exec.Command("go", "build", "-o", b.out, b.pkg)
			cmd.Dir = root
			out, err := cmd.CombinedOutput()
			if err != nil {
				buildErr = fmt.Errorf("go build %s failed: %w\n%s", b.pkg, err, out)
				return
			}
		}
		builtServer = filepath.Join(dir, "syncdeck")
		builtRunner = filepath.Join(dir, "syncrunner")
	})
	if buildErr != nil {
		t.Fatal(buildErr)
	}
	return builtServer, builtRunner
}

func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find repo root")
		}
		dir = parent
	}
}

// startServer launches the control plane in local mode, pointed at the
// built runner binary, and waits for it to report healthy.
func startServer(t *testing.T) *serverProc {
	t.Helper()
	server, runner := getBinaries(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "test.db")
	runnerDir := filepath.Join(tmp, "runners")

	stdout := &lockedBuffer{}
	cmd := exec.Command(server)
	cmd.Env = append(os.Environ(),
		"SYNCDECK_LISTEN_ADDR="+addr,
		"SYNCDECK_DB_PATH="+dbPath,
		"SYNCDECK_LOG_LEVEL=info",
		"SYNCDECK_MODE=local",
		"SYNCDECK_RUNNER_BASE_DIR="+runnerDir,
		"SYNCDECK_RUNNER_BINARY="+runner,
	)
	cmd.Stdout = stdout
	cmd.Stderr = stdout

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}

	sp := &serverProc{
		cmd:    cmd,
		stdout: stdout,
		url:    "http://" + addr,
	}

	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(sp.url + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				return sp
			}
		}
		time.Sleep(pollInterval)
	}
	t.Fatalf("server did not become ready within %v\nstdout:\n%s", startupTimeout, stdout.String())
	return nil
}
