// Package filestore is a thin client for the platform's file-storage
// service. It exposes exactly the three operations the control plane needs:
// upload, download, and delete of opaque keyed objects. Anything further
// (listing, metadata, lifecycle) belongs to the storage service itself.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound is returned when the storage service has no object for a key.
var ErrNotFound = errors.New("file not found")

// requestTimeout bounds upload and delete calls. Downloads stream and are
// bounded by the caller's context instead.
const requestTimeout = 30 * time.Second

// Client talks to the file-storage service at a base URL. Keys are opaque
// path-safe strings chosen by the caller.
type Client struct {
	baseURL string
	client  *http.Client
	stream  *http.Client
}

// NewClient creates a file-storage client for the service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
		stream:  &http.Client{},
	}
}

func (c *Client) fileURL(key string) string {
	return c.baseURL + "/v1/files/" + key
}

// Upload stores the contents of r under key, replacing any existing object.
func (c *Client) Upload(ctx context.Context, key string, r io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.fileURL(key), r)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload %s: status %d: %s", key, resp.StatusCode, msg)
	}
}

// Download returns a reader over the object stored under key. The caller
// must close it.
func (c *Client) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fileURL(key), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("download %s: %w", key, ErrNotFound)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("download %s: status %d", key, resp.StatusCode)
	}
}

// Delete removes the object stored under key.
func (c *Client) Delete(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.fileURL(key), nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("delete %s: %w", key, ErrNotFound)
	default:
		return fmt.Errorf("delete %s: status %d", key, resp.StatusCode)
	}
}
