package eventlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/KarmveerSingh18/prototype-4/internal/models"
)

// SQLiteSink writes events to an `events` table.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (and creates if needed) the database.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func NewSQLiteSink(dsn string) (*SQLiteSink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// The healer is the only writer; one connection also keeps ":memory:"
	// databases alive across calls.
	db.SetMaxOpenConns(1)

	sink := &SQLiteSink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *SQLiteSink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS events(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts REAL NOT NULL,
		timestr TEXT NOT NULL,
		action_id TEXT,
		pid INTEGER NOT NULL,
		proc_name TEXT NOT NULL,
		issue TEXT NOT NULL,
		detail TEXT,
		action TEXT
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

// Name identifies the sink in logs.
func (s *SQLiteSink) Name() string { return "sqlite" }

// Append inserts one row.
func (s *SQLiteSink) Append(ctx context.Context, e models.Event) error {
	ts := e.Time.UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events(ts, timestr, action_id, pid, proc_name, issue, detail, action)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?);`,
		float64(ts.UnixNano())/1e9, ts.Format("2006-01-02 15:04:05"),
		e.ActionID, e.PID, e.Name, e.Kind, e.Detail, e.Action)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, COALESCE(action_id, ''), pid, proc_name, issue, COALESCE(detail, ''), COALESCE(action, '')
		FROM events ORDER BY id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var (
			e  models.Event
			ts float64
		)
		if err := rows.Scan(&ts, &e.ActionID, &e.PID, &e.Name, &e.Kind, &e.Detail, &e.Action); err != nil {
			return nil, err
		}
		sec := int64(ts)
		e.Time = time.Unix(sec, int64((ts-float64(sec))*1e9)).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
