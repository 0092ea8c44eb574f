// Package store provides persistence for connections, the integration
// catalog, and sync runs.
package store

import (
	"context"
	"errors"

	"github.com/avelier/syncdeck/internal/model"
)

// ErrInvalidTransition is returned when a sync run status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// SyncStats holds aggregate sync execution statistics.
type SyncStats struct {
	TotalRuns     int            `json:"total_runs"`
	CountByStatus map[string]int `json:"count_by_status"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
	TotalRecords  int64          `json:"total_records"`
	TotalBytes    int64          `json:"total_bytes"`
}

// Store defines the persistence operations of the control plane.
type Store interface {
	CreateConnection(ctx context.Context, c *model.Connection) error
	GetConnection(ctx context.Context, id string) (*model.Connection, error)
	ListConnections(ctx context.Context, limit, offset int) ([]*model.Connection, int, error)
	UpdateConnection(ctx context.Context, c *model.Connection) error
	SetConnectionEnabled(ctx context.Context, id string, enabled bool) error
	DeleteConnection(ctx context.Context, id string) error

	SeedIntegrations(ctx context.Context, integrations []model.Integration) error
	ListIntegrations(ctx context.Context) ([]model.Integration, error)
	GetIntegration(ctx context.Context, id string) (*model.Integration, error)

	CreateRun(ctx context.Context, r *model.SyncRun) error
	GetRun(ctx context.Context, id string) (*model.SyncRun, error)
	ListRuns(ctx context.Context, connectionID string, limit, offset int) ([]*model.SyncRun, int, error)
	UpdateRunStatus(ctx context.Context, id, status string) error
	UpdateRun(ctx context.Context, r *model.SyncRun) error
	InsertLogLine(ctx context.Context, runID string, seq int, line string) error
	GetLogLines(ctx context.Context, runID string) ([]model.LogLine, error)

	GetSyncStats(ctx context.Context) (*SyncStats, error)
	Close() error
}
