package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avelier/syncdeck/internal/model"

	_ "modernc.org/sqlite"
)

const createConnectionsTable = `
CREATE TABLE IF NOT EXISTS connections (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    source_id      TEXT NOT NULL,
    destination_id TEXT NOT NULL,
    runner_id      TEXT NOT NULL,
    schedule_mins  INTEGER,
    enabled        INTEGER NOT NULL DEFAULT 1,
    created_at     DATETIME NOT NULL,
    updated_at     DATETIME NOT NULL
)`

const createIntegrationsTable = `
CREATE TABLE IF NOT EXISTS integrations (
    id       TEXT PRIMARY KEY,
    name     TEXT NOT NULL,
    kind     TEXT NOT NULL,
    version  TEXT NOT NULL,
    docs_url TEXT
)`

const createRunsTable = `
CREATE TABLE IF NOT EXISTS sync_runs (
    id            TEXT PRIMARY KEY,
    connection_id TEXT NOT NULL,
    status        TEXT NOT NULL,
    runner_id     TEXT NOT NULL,
    records       INTEGER,
    bytes         INTEGER,
    error         TEXT,
    artifact_key  TEXT,
    duration_ms   INTEGER,
    created_at    DATETIME NOT NULL,
    started_at    DATETIME,
    finished_at   DATETIME
)`

const createLogLinesTable = `
CREATE TABLE IF NOT EXISTS run_log_lines (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    line       TEXT NOT NULL,
    created_at DATETIME NOT NULL
)`

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{
		createConnectionsTable,
		createIntegrationsTable,
		createRunsTable,
		createLogLinesTable,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateConnection inserts a new connection record.
func (s *SQLiteStore) CreateConnection(ctx context.Context, c *model.Connection) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO connections (
			id, name, source_id, destination_id, runner_id,
			schedule_mins, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.SourceID, c.DestinationID, c.RunnerID,
		c.ScheduleMins, c.Enabled, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}
	return nil
}

// GetConnection retrieves a connection by ID.
func (s *SQLiteStore) GetConnection(ctx context.Context, id string) (*model.Connection, error) {
	c := &model.Connection{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, source_id, destination_id, runner_id,
			schedule_mins, enabled, created_at, updated_at
		FROM connections WHERE id = ?`, id,
	).Scan(
		&c.ID, &c.Name, &c.SourceID, &c.DestinationID, &c.RunnerID,
		&c.ScheduleMins, &c.Enabled, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return c, nil
}

// ListConnections returns a paginated list of connections ordered by
// created_at DESC, along with the total count.
func (s *SQLiteStore) ListConnections(ctx context.Context, limit, offset int) ([]*model.Connection, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM connections").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count connections: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, name, source_id, destination_id, runner_id,
			schedule_mins, enabled, created_at, updated_at
		FROM connections ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var conns []*model.Connection
	for rows.Next() {
		c := &model.Connection{}
		if err := rows.Scan(
			&c.ID, &c.Name, &c.SourceID, &c.DestinationID, &c.RunnerID,
			&c.ScheduleMins, &c.Enabled, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan connection: %w", err)
		}
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate connections: %w", err)
	}

	return conns, total, nil
}

// UpdateConnection updates the mutable fields of a connection.
func (s *SQLiteStore) UpdateConnection(ctx context.Context, c *model.Connection) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE connections SET name = ?, source_id = ?, destination_id = ?,
			runner_id = ?, schedule_mins = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.SourceID, c.DestinationID, c.RunnerID,
		c.ScheduleMins, c.Enabled, time.Now().UTC(), c.ID,
	)
	if err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	return requireRow(result)
}

// SetConnectionEnabled toggles a connection's enabled flag.
func (s *SQLiteStore) SetConnectionEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE connections SET enabled = ?, updated_at = ? WHERE id = ?",
		enabled, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set connection enabled: %w", err)
	}
	return requireRow(result)
}

// DeleteConnection removes a connection. Run history is kept for auditability.
func (s *SQLiteStore) DeleteConnection(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM connections WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return requireRow(result)
}

// SeedIntegrations inserts catalog entries, ignoring ones already present.
func (s *SQLiteStore) SeedIntegrations(ctx context.Context, integrations []model.Integration) error {
	for _, in := range integrations {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO integrations (id, name, kind, version, docs_url)
			VALUES (?, ?, ?, ?, ?)`,
			in.ID, in.Name, in.Kind, in.Version, in.DocsURL,
		)
		if err != nil {
			return fmt.Errorf("seed integration %s: %w", in.ID, err)
		}
	}
	return nil
}

// ListIntegrations returns the full integration catalog ordered by name.
func (s *SQLiteStore) ListIntegrations(ctx context.Context) ([]model.Integration, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, kind, version, docs_url FROM integrations ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	var out []model.Integration
	for rows.Next() {
		var in model.Integration
		var docsURL sql.NullString
		if err := rows.Scan(&in.ID, &in.Name, &in.Kind, &in.Version, &docsURL); err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		in.DocsURL = docsURL.String
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate integrations: %w", err)
	}
	return out, nil
}

// GetIntegration retrieves a catalog entry by ID.
func (s *SQLiteStore) GetIntegration(ctx context.Context, id string) (*model.Integration, error) {
	in := &model.Integration{}
	var docsURL sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, kind, version, docs_url FROM integrations WHERE id = ?", id,
	).Scan(&in.ID, &in.Name, &in.Kind, &in.Version, &docsURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get integration: %w", err)
	}
	in.DocsURL = docsURL.String
	return in, nil
}

// CreateRun inserts a new sync run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, r *model.SyncRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (
			id, connection_id, status, runner_id, records, bytes,
			error, artifact_key, duration_ms, created_at, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ConnectionID, r.Status, r.RunnerID, r.Records, r.Bytes,
		r.Error, r.ArtifactKey, r.DurationMS, r.CreatedAt, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sync run: %w", err)
	}
	return nil
}

// GetRun retrieves a sync run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.SyncRun, error) {
	r := &model.SyncRun{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, connection_id, status, runner_id, records, bytes,
			error, artifact_key, duration_ms, created_at, started_at, finished_at
		FROM sync_runs WHERE id = ?`, id,
	).Scan(
		&r.ID, &r.ConnectionID, &r.Status, &r.RunnerID, &r.Records, &r.Bytes,
		&r.Error, &r.ArtifactKey, &r.DurationMS, &r.CreatedAt, &r.StartedAt, &r.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sync run: %w", err)
	}
	return r, nil
}

// ListRuns returns a paginated list of runs ordered by created_at DESC,
// optionally filtered by connection, along with the matching total.
func (s *SQLiteStore) ListRuns(ctx context.Context, connectionID string, limit, offset int) ([]*model.SyncRun, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	where := ""
	args := []any{}
	if connectionID != "" {
		where = " WHERE connection_id = ?"
		args = append(args, connectionID)
	}

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_runs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sync runs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, connection_id, status, runner_id, records, bytes,
			error, artifact_key, duration_ms, created_at, started_at, finished_at
		FROM sync_runs`+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.SyncRun
	for rows.Next() {
		r := &model.SyncRun{}
		if err := rows.Scan(
			&r.ID, &r.ConnectionID, &r.Status, &r.RunnerID, &r.Records, &r.Bytes,
			&r.Error, &r.ArtifactKey, &r.DurationMS, &r.CreatedAt, &r.StartedAt, &r.FinishedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan sync run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate sync runs: %w", err)
	}

	return runs, total, nil
}

// UpdateRunStatus transitions a run to a new status, enforcing the
// transition table. Terminal statuses also set finished_at.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id, status string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM sync_runs WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read sync run status: %w", err)
	}

	if !model.ValidTransition(current, status) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current, status)
	}

	switch status {
	case model.StatusSucceeded, model.StatusFailed, model.StatusCancelled:
		_, err = tx.ExecContext(ctx,
			"UPDATE sync_runs SET status = ?, finished_at = ? WHERE id = ?",
			status, time.Now().UTC(), id,
		)
	case model.StatusRunning:
		_, err = tx.ExecContext(ctx,
			"UPDATE sync_runs SET status = ?, started_at = ? WHERE id = ?",
			status, time.Now().UTC(), id,
		)
	default:
		_, err = tx.ExecContext(ctx,
			"UPDATE sync_runs SET status = ? WHERE id = ?", status, id,
		)
	}
	if err != nil {
		return fmt.Errorf("update sync run status: %w", err)
	}

	return tx.Commit()
}

// UpdateRun writes the final fields of a run (status, counters, error,
// artifact, timings). Status transitions are not re-validated here; the
// engine drives runs through UpdateRunStatus first.
func (s *SQLiteStore) UpdateRun(ctx context.Context, r *model.SyncRun) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET status = ?, records = ?, bytes = ?, error = ?,
			artifact_key = ?, duration_ms = ?, started_at = ?, finished_at = ?
		WHERE id = ?`,
		r.Status, r.Records, r.Bytes, r.Error,
		r.ArtifactKey, r.DurationMS, r.StartedAt, r.FinishedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update sync run: %w", err)
	}
	return requireRow(result)
}

// InsertLogLine persists one log line for a run.
func (s *SQLiteStore) InsertLogLine(ctx context.Context, runID string, seq int, line string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO run_log_lines (run_id, seq, line, created_at) VALUES (?, ?, ?, ?)",
		runID, seq, line, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert log line: %w", err)
	}
	return nil
}

// GetLogLines returns all log lines for a run ordered by sequence.
func (s *SQLiteStore) GetLogLines(ctx context.Context, runID string) ([]model.LogLine, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, seq, line, created_at FROM run_log_lines WHERE run_id = ? ORDER BY seq",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get log lines: %w", err)
	}
	defer rows.Close()

	var lines []model.LogLine
	for rows.Next() {
		var l model.LogLine
		if err := rows.Scan(&l.ID, &l.RunID, &l.Seq, &l.Line, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log lines: %w", err)
	}
	return lines, nil
}

// GetSyncStats computes aggregate run statistics.
func (s *SQLiteStore) GetSyncStats(ctx context.Context) (*SyncStats, error) {
	stats := &SyncStats{CountByStatus: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM sync_runs GROUP BY status",
	)
	if err != nil {
		return nil, fmt.Errorf("count runs by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountByStatus[status] = count
		stats.TotalRuns += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(duration_ms), 0), COALESCE(SUM(records), 0), COALESCE(SUM(bytes), 0)
		FROM sync_runs WHERE duration_ms IS NOT NULL`,
	).Scan(&stats.AvgDurationMS, &stats.TotalRecords, &stats.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("aggregate run stats: %w", err)
	}

	return stats, nil
}

// requireRow converts a zero-rows-affected result into ErrNotFound.
func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
