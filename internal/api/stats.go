package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	TotalRuns     int            `json:"total_runs"`
	ByStatus      map[string]int `json:"by_status"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
	TotalRecords  int64          `json:"total_records"`
	TotalBytes    int64          `json:"total_bytes"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetSyncStats(r.Context())
	if err != nil {
		s.logger.Error("get sync stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		TotalRuns:     stats.TotalRuns,
		ByStatus:      stats.CountByStatus,
		AvgDurationMS: stats.AvgDurationMS,
		TotalRecords:  stats.TotalRecords,
		TotalBytes:    stats.TotalBytes,
	})
}
