package markers

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/cetus/internal/apperr"
	"github.com/starford/cetus/internal/models"
)

const markerSchemaSQL = `
CREATE TABLE IF NOT EXISTS markers (
	signature      TEXT PRIMARY KEY,
	idx            TEXT NOT NULL,
	query          TEXT NOT NULL,
	last_timestamp TEXT NOT NULL,
	last_uuid      TEXT NOT NULL DEFAULT '',
	updated_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_markers_idx ON markers(idx);
`

// SQLite implements Store on a single SQLite database file.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the marker database and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("markers: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("markers: ping: %w", err)
	}
	if _, err := conn.Exec(markerSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("markers: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

type markerRow struct {
	signature string
	m         models.Marker
	updatedAt string
}

func (r *markerRow) marker() (*models.Marker, error) {
	t, err := time.Parse(time.RFC3339Nano, r.updatedAt)
	if err != nil {
		return nil, &apperr.CorruptMarkerError{Key: r.signature, Err: err}
	}
	m := r.m
	m.UpdatedAt = t
	if err := validateMarker(&m); err != nil {
		return nil, &apperr.CorruptMarkerError{Key: r.signature, Err: err}
	}
	return &m, nil
}

// Load returns the marker for key, or nil when absent.
func (s *SQLite) Load(key Key) (*models.Marker, error) {
	row := markerRow{signature: key.Signature()}
	var idx string
	err := s.conn.QueryRow(`
		SELECT idx, query, last_timestamp, last_uuid, updated_at
		FROM markers WHERE signature = ?
	`, row.signature).Scan(&idx, &row.m.Query, &row.m.LastTimestamp, &row.m.LastUUID, &row.updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("markers: load: %w", err)
	}
	row.m.Index = models.Index(idx)
	return row.marker()
}

// Save upserts m. SQLite commits the row atomically.
func (s *SQLite) Save(m *models.Marker) error {
	if err := validateMarker(m); err != nil {
		return fmt.Errorf("markers: invalid marker: %w", err)
	}
	_, err := s.conn.Exec(`
		INSERT INTO markers (signature, idx, query, last_timestamp, last_uuid, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(signature) DO UPDATE SET
			last_timestamp = excluded.last_timestamp,
			last_uuid      = excluded.last_uuid,
			updated_at     = excluded.updated_at
	`, KeyOf(m).Signature(), string(m.Index), m.Query, m.LastTimestamp, m.LastUUID,
		m.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("markers: save: %w", err)
	}
	return nil
}

// List returns all markers, newest first.
func (s *SQLite) List() ([]Entry, error) {
	rows, err := s.conn.Query(`
		SELECT signature, idx, query, last_timestamp, last_uuid, updated_at
		FROM markers
	`)
	if err != nil {
		return nil, fmt.Errorf("markers: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var row markerRow
		var idx string
		if err := rows.Scan(&row.signature, &idx, &row.m.Query, &row.m.LastTimestamp, &row.m.LastUUID, &row.updatedAt); err != nil {
			return nil, fmt.Errorf("markers: scan: %w", err)
		}
		row.m.Index = models.Index(idx)
		m, err := row.marker()
		if err != nil {
			out = append(out, Entry{Signature: row.signature, Err: err})
			continue
		}
		out = append(out, Entry{Signature: row.signature, Marker: m})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("markers: list: %w", err)
	}
	sortEntries(out)
	return out, nil
}

// Clear deletes all markers, or those of one index.
func (s *SQLite) Clear(index models.Index) (ClearResult, error) {
	var (
		res ClearResult
		r   sql.Result
		err error
	)
	if index == "" {
		r, err = s.conn.Exec(`DELETE FROM markers`)
	} else {
		r, err = s.conn.Exec(`DELETE FROM markers WHERE idx = ?`, string(index))
	}
	if err != nil {
		return res, fmt.Errorf("markers: clear: %w", err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return res, fmt.Errorf("markers: clear: %w", err)
	}
	res.Removed = int(n)
	return res, nil
}

// Verify both implementations satisfy Store at compile time.
var (
	_ Store = (*FS)(nil)
	_ Store = (*SQLite)(nil)
	_ Store = (*Memory)(nil)
)
