package model

// Integration kind constants.
const (
	KindSource      = "source"
	KindDestination = "destination"
)

// Integration is a catalog entry describing a connector the platform can
// sync from or to. The catalog backs the dashboard's integration picker;
// entries are seeded at startup and read-only through the API.
type Integration struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Version string `json:"version"`
	DocsURL string `json:"docs_url,omitempty"`
}
