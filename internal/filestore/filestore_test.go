package filestore_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/avelier/syncdeck/internal/filestore"
)

// storageServer fakes the file-storage service with an in-memory object map.
func storageServer(t *testing.T) (*httptest.Server, *sync.Map) {
	t.Helper()
	var objects sync.Map

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := strings.CutPrefix(r.URL.Path, "/v1/files/")
		if !ok || key == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodPut:
			data, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			objects.Store(key, data)
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			data, ok := objects.Load(key)
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(data.([]byte))
		case http.MethodDelete:
			if _, ok := objects.Load(key); !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			objects.Delete(key)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, &objects
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	srv, _ := storageServer(t)
	c := filestore.NewClient(srv.URL)
	ctx := context.Background()

	content := "line one\nline two\n"
	if err := c.Upload(ctx, "runs/r1/logs.txt", strings.NewReader(content)); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	rc, err := c.Download(ctx, "runs/r1/logs.txt")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(got) != content {
		t.Errorf("downloaded %q, want %q", got, content)
	}
}

func TestUploadReplacesExisting(t *testing.T) {
	srv, _ := storageServer(t)
	c := filestore.NewClient(srv.URL)
	ctx := context.Background()

	if err := c.Upload(ctx, "k", strings.NewReader("old")); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := c.Upload(ctx, "k", strings.NewReader("new")); err != nil {
		t.Fatalf("second Upload: %v", err)
	}

	rc, err := c.Download(ctx, "k")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "new" {
		t.Errorf("downloaded %q, want %q", got, "new")
	}
}

func TestDownloadMissingKey(t *testing.T) {
	srv, _ := storageServer(t)
	c := filestore.NewClient(srv.URL)

	_, err := c.Download(context.Background(), "missing")
	if !errors.Is(err, filestore.ErrNotFound) {
		t.Fatalf("Download error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	srv, objects := storageServer(t)
	c := filestore.NewClient(srv.URL)
	ctx := context.Background()

	if err := c.Upload(ctx, "k", strings.NewReader("data")); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := objects.Load("k"); ok {
		t.Error("object still present after Delete")
	}
	if err := c.Delete(ctx, "k"); !errors.Is(err, filestore.ErrNotFound) {
		t.Fatalf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "disk full", http.StatusInsufficientStorage)
	}))
	t.Cleanup(srv.Close)

	c := filestore.NewClient(srv.URL)
	err := c.Upload(context.Background(), "k", strings.NewReader("data"))
	if err == nil {
		t.Fatal("Upload succeeded against failing server")
	}
	if !strings.Contains(err.Error(), "507") {
		t.Errorf("error %q does not carry the status code", err)
	}
}
