package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avelier/syncdeck/internal/model"
	"github.com/avelier/syncdeck/internal/store"
)

// listIntegrationsResponse wraps the catalog listing.
type listIntegrationsResponse struct {
	Integrations []model.Integration `json:"integrations"`
	Total        int                 `json:"total"`
}

func (s *Server) handleListIntegrations(w http.ResponseWriter, r *http.Request) {
	integrations, err := s.store.ListIntegrations(r.Context())
	if err != nil {
		s.logger.Error("list integrations", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list integrations")
		return
	}

	if integrations == nil {
		integrations = []model.Integration{}
	}

	s.writeJSON(w, http.StatusOK, listIntegrationsResponse{
		Integrations: integrations,
		Total:        len(integrations),
	})
}

func (s *Server) handleGetIntegration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	integ, err := s.store.GetIntegration(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "integration not found")
		return
	}
	if err != nil {
		s.logger.Error("get integration", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get integration")
		return
	}

	s.writeJSON(w, http.StatusOK, integ)
}
