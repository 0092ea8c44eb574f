package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// remoteHTTPTimeout bounds lookup, health, and teardown calls against the
// hosted runner API. Sync execution is bounded by the caller's context only.
const remoteHTTPTimeout = 10 * time.Second

// RemoteFactory obtains handles to runners hosted by a remote fleet,
// addressed through its control API.
type RemoteFactory struct {
	baseURL string
	client  *http.Client
}

// NewRemoteFactory creates a factory talking to the hosted runner API at
// baseURL.
func NewRemoteFactory(baseURL string) *RemoteFactory {
	return &RemoteFactory{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: remoteHTTPTimeout},
	}
}

// remoteRunnerInfo is the fleet's description of a runner.
type remoteRunnerInfo struct {
	ID    string `json:"id"`
	State string `json:"state,omitempty"`
}

// Get looks the runner up in the fleet and returns a handle to it. An
// unknown runner or an unreachable fleet is an acquisition failure and
// propagates to the caller.
func (f *RemoteFactory) Get(ctx context.Context, id string) (Runner, error) {
	if id == "" {
		return nil, errors.New("runner id is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.runnerURL(id), nil)
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("look up runner %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("runner %s not found in fleet", id)
	default:
		return nil, fmt.Errorf("look up runner %s: status %d", id, resp.StatusCode)
	}

	var info remoteRunnerInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode runner info: %w", err)
	}

	return &remoteRunner{id: id, factory: f}, nil
}

func (f *RemoteFactory) runnerURL(id string) string {
	return f.baseURL + "/v1/runners/" + id
}

// remoteRunner is a handle to a runner hosted by the remote fleet.
type remoteRunner struct {
	id      string
	factory *RemoteFactory
}

func (r *remoteRunner) ID() string { return r.id }

func (r *remoteRunner) Health(ctx context.Context) error {
	url := r.factory.runnerURL(r.id) + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := r.factory.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check runner %s: %w", r.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check runner %s: status %d", r.id, resp.StatusCode)
	}
	return nil
}

func (r *remoteRunner) RunSync(ctx context.Context, syncReq SyncRequest) (SyncResult, error) {
	body, err := json.Marshal(syncReq)
	if err != nil {
		return SyncResult{}, fmt.Errorf("marshal sync request: %w", err)
	}

	url := r.factory.runnerURL(r.id) + "/sync"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return SyncResult{}, fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// No client timeout here: syncs run for as long as ctx allows.
	client := &http.Client{}
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

func (r *remoteRunner) Teardown(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, r.factory.runnerURL(r.id), nil)
	if err != nil {
		return fmt.Errorf("build teardown request: %w", err)
	}

	resp, err := r.factory.client.Do(req)
	if err != nil {
		return fmt.Errorf("tear down runner %s: %w", r.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("tear down runner %s: status %d", r.id, resp.StatusCode)
	}
	return nil
}
