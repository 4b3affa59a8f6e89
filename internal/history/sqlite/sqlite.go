package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/svcpanel/internal/history"
)

// Sink writes action events to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
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
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS action_history(
			id TEXT NOT NULL,
			occurred_at INTEGER NOT NULL,
			action TEXT NOT NULL,
			succeeded INTEGER NOT NULL,
			message TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_action_history_occurred ON action_history(occurred_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	succeeded := 0
	if e.Succeeded {
		succeeded = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_history(id, occurred_at, action, succeeded, message, duration_ms)
		VALUES(?, ?, ?, ?, ?, ?);`,
		e.ID, e.OccurredAt.UTC().UnixMilli(), e.Action, succeeded, e.Message, e.Duration.Milliseconds())
	return err
}

func (s *Sink) Recent(ctx context.Context, limit int) ([]history.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, occurred_at, action, succeeded, message, duration_ms
		FROM action_history ORDER BY occurred_at DESC, rowid DESC LIMIT ?;`,
		history.NormalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []history.Event
	for rows.Next() {
		var (
			e          history.Event
			occurredMS int64
			succeeded  int
			durationMS int64
		)
		if err := rows.Scan(&e.ID, &occurredMS, &e.Action, &succeeded, &e.Message, &durationMS); err != nil {
			return nil, err
		}
		e.OccurredAt = time.UnixMilli(occurredMS).UTC()
		e.Succeeded = succeeded != 0
		e.Duration = history.MillisToDuration(durationMS)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
