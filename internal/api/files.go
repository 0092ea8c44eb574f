package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avelier/syncdeck/internal/filestore"
)

// maxUploadSize caps file uploads proxied through the API.
const maxUploadSize = 64 << 20 // 64 MB

// fileKey extracts the storage key from the wildcard route segment.
func fileKey(r *http.Request) string {
	return chi.URLParam(r, "*")
}

// requireFileStore writes a 503 and returns false when no file store is
// configured.
func (s *Server) requireFileStore(w http.ResponseWriter) bool {
	if s.files == nil {
		s.writeError(w, http.StatusServiceUnavailable, "file storage is not configured")
		return false
	}
	return true
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	if !s.requireFileStore(w) {
		return
	}

	key := fileKey(r)
	if key == "" {
		s.writeError(w, http.StatusBadRequest, "file key is required")
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := s.files.Upload(r.Context(), key, body); err != nil {
		s.logger.Error("upload file", "error", err, "key", key)
		s.writeError(w, http.StatusBadGateway, "failed to upload file")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	if !s.requireFileStore(w) {
		return
	}

	key := fileKey(r)
	rc, err := s.files.Download(r.Context(), key)
	if errors.Is(err, filestore.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		s.logger.Error("download file", "error", err, "key", key)
		s.writeError(w, http.StatusBadGateway, "failed to download file")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Error("stream file", "error", err, "key", key)
	}
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if !s.requireFileStore(w) {
		return
	}

	key := fileKey(r)
	if err := s.files.Delete(r.Context(), key); err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "file not found")
			return
		}
		s.logger.Error("delete file", "error", err, "key", key)
		s.writeError(w, http.StatusBadGateway, "failed to delete file")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
