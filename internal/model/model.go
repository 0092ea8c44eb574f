// Package model holds the domain entities of the sync control plane:
// integrations, connections between them, and the sync runs executed on
// behalf of a connection.
package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string for use as an entity identifier.
func NewID() string {
	return ulid.Make().String()
}

// Deployment mode constants. The mode decides which runner factory the
// resolver uses: locally spawned processes or a hosted runner fleet.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// ValidMode reports whether s names a known deployment mode.
func ValidMode(s string) bool {
	return s == ModeLocal || s == ModeRemote
}
