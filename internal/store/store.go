package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/session"
	_ "modernc.org/sqlite" // CGO-free SQLite
)

// ErrNotFound is returned when a session id is not in the store.
var ErrNotFound = errors.New("session not found")

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store persists finished sessions.
type Store struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// Open connects to driver ("sqlite" or "postgres") and creates the schema.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	switch driver {
	case "sqlite":
		if dsn != ":memory:" && !strings.Contains(dsn, "?") {
			// WAL + busy timeout to avoid "database is locked"
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	case "postgres":
	default:
		return nil, fmt.Errorf("unsupported store driver %q (want sqlite or postgres)", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, driver: driver, logger: logger.With("component", "store", "driver", driver)}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	ddl := sqliteSchema
	if s.driver == "postgres" {
		ddl = postgresSchema
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create database tables: %w", err)
		}
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS recorder_sessions(
	  session_id  TEXT    PRIMARY KEY,
	  name        TEXT    NOT NULL,
	  start_time  TEXT    NOT NULL,
	  end_time    TEXT,
	  event_count INTEGER NOT NULL,
	  info_json   TEXT    NOT NULL CHECK (json_valid(info_json))
	)`,
	`CREATE TABLE IF NOT EXISTS recorder_events(
	  session_id      TEXT    NOT NULL REFERENCES recorder_sessions(session_id) ON DELETE CASCADE,
	  sequence_number INTEGER NOT NULL,
	  event_type      TEXT    NOT NULL,
	  correlation_id  TEXT    NOT NULL,
	  event_json      TEXT    NOT NULL CHECK (json_valid(event_json)),
	  PRIMARY KEY (session_id, sequence_number)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_recorder_sessions_start ON recorder_sessions(start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_recorder_events_corr ON recorder_events(session_id, correlation_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS recorder_sessions(
	  session_id  TEXT    PRIMARY KEY,
	  name        TEXT    NOT NULL,
	  start_time  TEXT    NOT NULL,
	  end_time    TEXT,
	  event_count INTEGER NOT NULL,
	  info_json   JSONB   NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS recorder_events(
	  session_id      TEXT    NOT NULL REFERENCES recorder_sessions(session_id) ON DELETE CASCADE,
	  sequence_number BIGINT  NOT NULL,
	  event_type      TEXT    NOT NULL,
	  correlation_id  TEXT    NOT NULL,
	  event_json      JSONB   NOT NULL,
	  PRIMARY KEY (session_id, sequence_number)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_recorder_sessions_start ON recorder_sessions(start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_recorder_events_corr ON recorder_events(session_id, correlation_id)`,
}

func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Save stores info and its events, replacing any earlier copy of the same
// session.
func (s *Store) Save(ctx context.Context, info session.Info, events []models.Event) error {
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal session info: %w", err)
	}
	var endTime sql.NullString
	if info.EndTime != nil {
		endTime = sql.NullString{String: info.EndTime.UTC().Format(timeLayout), Valid: true}
	}

	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer txn.Rollback() // no-op after Commit

	upsert := s.rebind(`
		INSERT INTO recorder_sessions (session_id, name, start_time, end_time, event_count, info_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			name = EXCLUDED.name,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			event_count = EXCLUDED.event_count,
			info_json = EXCLUDED.info_json`)
	if _, err := txn.ExecContext(ctx, upsert, info.SessionID, info.Name, info.StartTime.UTC().Format(timeLayout), endTime, len(events), string(infoJSON)); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if _, err := txn.ExecContext(ctx, s.rebind(`DELETE FROM recorder_events WHERE session_id = ?`), info.SessionID); err != nil {
		return fmt.Errorf("failed to replace events: %w", err)
	}

	if err := s.insertEvents(ctx, txn, info.SessionID, events); err != nil {
		return err
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.logger.Debug("session saved", "session_id", info.SessionID, "events", len(events))
	return nil
}

func (s *Store) insertEvents(ctx context.Context, txn *sql.Tx, sessionID string, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO recorder_events (session_id, sequence_number, event_type, correlation_id, event_json) VALUES (?, ?, ?, ?, json(?))`
	if s.driver == "postgres" {
		query = pq.CopyIn("recorder_events", "session_id", "sequence_number", "event_type", "correlation_id", "event_json")
	}
	stmt, err := txn.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}

	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		b := e.Base()
		if _, err := stmt.ExecContext(ctx, sessionID, b.SequenceNumber, string(b.EventType), b.CorrelationID, string(data)); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to insert event %d: %w", b.SequenceNumber, err)
		}
	}

	if s.driver == "postgres" {
		// Flush the COPY buffer.
		if _, err := stmt.ExecContext(ctx); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to copy events: %w", err)
		}
	}
	return stmt.Close()
}

// List returns stored sessions, newest first.
func (s *Store) List(ctx context.Context) ([]session.Info, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT info_json FROM recorder_sessions ORDER BY start_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []session.Info
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		var info session.Info
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			return nil, fmt.Errorf("failed to decode session: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Load returns a stored session and its events in sequence order. id may
// be a unique prefix of the session id.
func (s *Store) Load(ctx context.Context, id string) (session.Info, []models.Event, error) {
	info, err := s.resolve(ctx, id)
	if err != nil {
		return session.Info{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT event_json FROM recorder_events WHERE session_id = ? ORDER BY sequence_number`), info.SessionID)
	if err != nil {
		return session.Info{}, nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return session.Info{}, nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e, err := models.UnmarshalEvent([]byte(raw))
		if err != nil {
			return session.Info{}, nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return session.Info{}, nil, err
	}
	return info, events, nil
}

func (s *Store) resolve(ctx context.Context, id string) (session.Info, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT info_json FROM recorder_sessions WHERE session_id = ? OR session_id LIKE ? ORDER BY session_id LIMIT 2`), id, id+"%")
	if err != nil {
		return session.Info{}, fmt.Errorf("failed to query session: %w", err)
	}
	defer rows.Close()

	var matches []session.Info
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return session.Info{}, fmt.Errorf("failed to scan session: %w", err)
		}
		var info session.Info
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			return session.Info{}, fmt.Errorf("failed to decode session: %w", err)
		}
		if info.SessionID == id {
			return info, nil
		}
		matches = append(matches, info)
	}
	if err := rows.Err(); err != nil {
		return session.Info{}, err
	}

	switch len(matches) {
	case 0:
		return session.Info{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return matches[0], nil
	}
	return session.Info{}, fmt.Errorf("session id prefix %q is ambiguous", id)
}

// Delete removes a session and its events.
func (s *Store) Delete(ctx context.Context, id string) error {
	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer txn.Rollback()

	if _, err := txn.ExecContext(ctx, s.rebind(`DELETE FROM recorder_events WHERE session_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	res, err := txn.ExecContext(ctx, s.rebind(`DELETE FROM recorder_sessions WHERE session_id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return txn.Commit()
}

// SaveFinished stores a session handed over by the hub when recording
// stops. Errors are logged.
func (s *Store) SaveFinished(ctx context.Context, timeout time.Duration) func(*session.Session) {
	return func(sess *session.Session) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := s.Save(ctx, sess.Info(), sess.Entries()); err != nil {
			s.logger.Error("failed to save session", "session_id", sess.ID(), "error", err)
		}
	}
}
