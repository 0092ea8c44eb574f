package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/avelier/syncdeck/internal/model"
	"github.com/avelier/syncdeck/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// createConnectionRequest is the JSON body for POST /v1/connections.
type createConnectionRequest struct {
	Name          string `json:"name" validate:"required,max=128"`
	SourceID      string `json:"source_id" validate:"required"`
	DestinationID string `json:"destination_id" validate:"required"`
	RunnerID      string `json:"runner_id" validate:"required"`
	ScheduleMins  *int   `json:"schedule_mins" validate:"omitempty,min=1,max=10080"`
}

// updateConnectionRequest is the JSON body for PUT /v1/connections/{id}.
// All fields are optional; absent fields keep their current values.
type updateConnectionRequest struct {
	Name         *string `json:"name" validate:"omitempty,max=128"`
	RunnerID     *string `json:"runner_id" validate:"omitempty,min=1"`
	ScheduleMins *int    `json:"schedule_mins" validate:"omitempty,min=1,max=10080"`
}

// listConnectionsResponse wraps the paginated list response.
type listConnectionsResponse struct {
	Connections []*model.Connection `json:"connections"`
	Total       int                 `json:"total"`
	Limit       int                 `json:"limit"`
	Offset      int                 `json:"offset"`
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var req createConnectionRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	if _, err := s.store.GetIntegration(r.Context(), req.SourceID); err != nil {
		s.writeIntegrationLookupError(w, "source", err)
		return
	}
	if _, err := s.store.GetIntegration(r.Context(), req.DestinationID); err != nil {
		s.writeIntegrationLookupError(w, "destination", err)
		return
	}

	now := time.Now().UTC()
	conn := &model.Connection{
		ID:            model.NewID(),
		Name:          req.Name,
		SourceID:      req.SourceID,
		DestinationID: req.DestinationID,
		RunnerID:      req.RunnerID,
		ScheduleMins:  req.ScheduleMins,
		Enabled:       true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.CreateConnection(r.Context(), conn); err != nil {
		s.logger.Error("create connection", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create connection")
		return
	}

	s.writeJSON(w, http.StatusCreated, conn)
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conn, err := s.store.GetConnection(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	if err != nil {
		s.logger.Error("get connection", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get connection")
		return
	}

	s.writeJSON(w, http.StatusOK, conn)
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	conns, total, err := s.store.ListConnections(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list connections", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list connections")
		return
	}

	if conns == nil {
		conns = []*model.Connection{}
	}

	s.writeJSON(w, http.StatusOK, listConnectionsResponse{
		Connections: conns,
		Total:       total,
		Limit:       limit,
		Offset:      offset,
	})
}

func (s *Server) handleUpdateConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateConnectionRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	conn, err := s.store.GetConnection(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	if err != nil {
		s.logger.Error("get connection", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get connection")
		return
	}

	if req.Name != nil {
		conn.Name = *req.Name
	}
	if req.RunnerID != nil {
		conn.RunnerID = *req.RunnerID
	}
	if req.ScheduleMins != nil {
		conn.ScheduleMins = req.ScheduleMins
	}
	conn.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateConnection(r.Context(), conn); err != nil {
		s.logger.Error("update connection", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update connection")
		return
	}

	s.writeJSON(w, http.StatusOK, conn)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.store.DeleteConnection(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "connection not found")
			return
		}
		s.logger.Error("delete connection", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete connection")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEnableConnection(w http.ResponseWriter, r *http.Request) {
	s.setEnabled(w, r, true)
}

func (s *Server) handleDisableConnection(w http.ResponseWriter, r *http.Request) {
	s.setEnabled(w, r, false)
}

func (s *Server) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id := chi.URLParam(r, "id")

	if err := s.store.SetConnectionEnabled(r.Context(), id, enabled); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "connection not found")
			return
		}
		s.logger.Error("set connection enabled", "error", err, "enabled", enabled)
		s.writeError(w, http.StatusInternalServerError, "failed to update connection")
		return
	}

	conn, err := s.store.GetConnection(r.Context(), id)
	if err != nil {
		s.logger.Error("get updated connection", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve connection")
		return
	}

	s.writeJSON(w, http.StatusOK, conn)
}

// writeIntegrationLookupError maps an integration lookup failure during
// connection creation to the right HTTP status.
func (s *Server) writeIntegrationLookupError(w http.ResponseWriter, role string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusBadRequest, "unknown "+role+" integration")
		return
	}
	s.logger.Error("lookup integration", "role", role, "error", err)
	s.writeError(w, http.StatusInternalServerError, "failed to validate "+role)
}

// validationMessage flattens a validator error into a single human-readable line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "invalid field " + fe.Field() + ": failed " + fe.Tag() + " check"
	}
	return "invalid request body"
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
