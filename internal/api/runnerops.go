package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avelier/syncdeck/internal/runner"
)

// resolveRunnerResponse reports a successful runner resolution.
type resolveRunnerResponse struct {
	RunnerID string `json:"runner_id"`
	Healthy  bool   `json:"healthy"`
	WaitedMS int64  `json:"waited_ms"`
}

// handleResolveRunner resolves a runner handle and blocks until it reports
// healthy or the deployment-mode timeout elapses. Useful for warming a
// runner ahead of a sync and for dashboard readiness probes.
func (s *Server) handleResolveRunner(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	start := time.Now()
	_, err := s.resolver.Resolve(r.Context(), id)
	if err != nil {
		var nhe *runner.NotHealthyError
		switch {
		case errors.As(err, &nhe):
			s.writeError(w, http.StatusGatewayTimeout, nhe.Error())
		case errors.Is(err, context.Canceled):
			s.writeError(w, http.StatusServiceUnavailable, "resolution cancelled")
		default:
			s.logger.Error("resolve runner", "error", err, "runner_id", id)
			s.writeError(w, http.StatusBadGateway, "failed to resolve runner")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, resolveRunnerResponse{
		RunnerID: id,
		Healthy:  true,
		WaitedMS: time.Since(start).Milliseconds(),
	})
}

// handleTeardownRunner releases the runner's underlying resources. The
// runner does not have to be healthy to be torn down.
func (s *Server) handleTeardownRunner(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.resolver.Teardown(r.Context(), id); err != nil {
		s.logger.Error("teardown runner", "error", err, "runner_id", id)
		s.writeError(w, http.StatusBadGateway, "failed to tear down runner")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
