package model

import "time"

// Connection is a configured source→destination sync pair. RunnerID names
// the runner process responsible for executing this connection's syncs; it
// is resolved to a live handle at trigger time, not stored as a handle.
type Connection struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	SourceID      string    `json:"source_id"`
	DestinationID string    `json:"destination_id"`
	RunnerID      string    `json:"runner_id"`
	ScheduleMins  *int      `json:"schedule_mins,omitempty"`
	Enabled       bool      `json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
