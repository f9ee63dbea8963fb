// Package store persists sessions and visits to SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/teslashibe/tablewatch/internal/log"
	"github.com/teslashibe/tablewatch/pkg/occupancy"
)

// schema.sql creates the sessions and visits tables.
//
//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("store: not found")

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// Store wraps the SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Session is one monitoring run.
type Session struct {
	ID            string            `json:"id"`
	Source        string            `json:"source"`
	FPS           float64           `json:"fps"`
	Region        []occupancy.Point `json:"region"`
	GraceSeconds  float64           `json:"grace_seconds"`
	MinConfidence float64           `json:"min_confidence"`
	StartedAt     time.Time         `json:"started_at"`
	EndedAt       *time.Time        `json:"ended_at,omitempty"`
	Frames        int               `json:"frames"`
}

// Visit is one stored stay at the table.
type Visit struct {
	ID           int64   `json:"id"`
	SessionID    string  `json:"session_id"`
	TrackID      int     `json:"track_id"`
	StartTime    float64 `json:"start_time"`
	LastSeenTime float64 `json:"last_seen_time"`
	Dwell        float64 `json:"dwell"`
	Open         bool    `json:"open"`
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	logger := log.For("store")
	logger.Debug("database ready", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return uuid.NewString()
}

// CreateSession inserts a session, assigning an ID and start time when unset.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = NewSessionID()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	region, err := json.Marshal(sess.Region)
	if err != nil {
		return fmt.Errorf("store: encode region: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, source, fps, region, grace_seconds, min_confidence, started_at, frames)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Source, sess.FPS, string(region), sess.GraceSeconds, sess.MinConfidence,
		sess.StartedAt.UnixMilli(), sess.Frames,
	)
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	return nil
}

// FinishSession records the end of a run.
func (s *Store) FinishSession(ctx context.Context, id string, frames int, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET frames = ?, ended_at = ? WHERE id = ?`,
		frames, endedAt.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("store: finish session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: finish session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: session %s: %w", id, ErrNotFound)
	}
	return nil
}

const sessionColumns = `id, source, fps, region, grace_seconds, min_confidence, started_at, ended_at, frames`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		sess    Session
		region  string
		started int64
		ended   sql.NullInt64
	)
	err := row.Scan(&sess.ID, &sess.Source, &sess.FPS, &region, &sess.GraceSeconds,
		&sess.MinConfidence, &started, &ended, &sess.Frames)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(region), &sess.Region); err != nil {
		return nil, fmt.Errorf("decode region: %w", err)
	}
	sess.StartedAt = time.UnixMilli(started)
	if ended.Valid {
		t := time.UnixMilli(ended.Int64)
		sess.EndedAt = &t
	}
	return &sess, nil
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list sessions: %w", err)
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// RecordVisit inserts a visit and returns its row id.
func (s *Store) RecordVisit(ctx context.Context, v Visit) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO visits (session_id, track_id, start_time, last_seen_time, dwell, open, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.SessionID, v.TrackID, v.StartTime, v.LastSeenTime, v.Dwell, v.Open, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("store: record visit: %w", err)
	}
	return res.LastInsertId()
}

// ListVisits returns a session's visits ordered by start time.
func (s *Store) ListVisits(ctx context.Context, sessionID string) ([]Visit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, track_id, start_time, last_seen_time, dwell, open
		FROM visits WHERE session_id = ?
		ORDER BY start_time, track_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list visits: %w", err)
	}
	defer rows.Close()

	out := []Visit{}
	for rows.Next() {
		var v Visit
		if err := rows.Scan(&v.ID, &v.SessionID, &v.TrackID, &v.StartTime, &v.LastSeenTime, &v.Dwell, &v.Open); err != nil {
			return nil, fmt.Errorf("store: list visits: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
