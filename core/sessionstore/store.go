package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/luminaedu/lumina-core/core/lessons"
	_ "modernc.org/sqlite"
)

// Session is a saved lesson session: the generated plan, the learner's
// follow-up exchanges and where playback left off.
type Session struct {
	ID        uuid.UUID
	Topic     string
	Plan      lessons.LessonPlan
	FollowUps []lessons.FollowUp
	StepIndex int
	UpdatedAt time.Time
}

// Store persists lesson sessions in a local SQLite database, so a learner
// can close the player and resume the lesson later.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open creates or opens the session database at path, creating parent
// directories as needed.
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    topic TEXT NOT NULL,
    plan BLOB NOT NULL,
    follow_ups BLOB,
    step_index INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save inserts or replaces a session.
func (s *Store) Save(ctx context.Context, session Session) error {
	plan, err := json.Marshal(session.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	followUps, err := json.Marshal(session.FollowUps)
	if err != nil {
		return fmt.Errorf("marshal follow-ups: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, topic, plan, follow_ups, step_index, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		     topic=excluded.topic, plan=excluded.plan, follow_ups=excluded.follow_ups,
		     step_index=excluded.step_index, updated_at=excluded.updated_at`,
		session.ID.String(), session.Topic, plan, followUps, session.StepIndex,
		s.clock().UTC().Format(time.RFC3339Nano))
	return err
}

// Load retrieves a session by id.
func (s *Store) Load(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, topic, plan, follow_ups, step_index, updated_at
		 FROM sessions WHERE session_id = ?`, id.String())

	session, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s not found", id)
	} else if err != nil {
		return nil, err
	}
	return session, nil
}

// List returns sessions ordered most recently updated first.
func (s *Store) List(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, topic, plan, follow_ups, step_index, updated_at
		 FROM sessions ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id.String())
	return err
}

func scanSession(scan func(...any) error) (*Session, error) {
	var (
		session      Session
		rawID        string
		rawPlan      []byte
		rawFollowUps []byte
		rawUpdated   string
	)
	if err := scan(&rawID, &session.Topic, &rawPlan, &rawFollowUps, &session.StepIndex, &rawUpdated); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	session.ID = id

	if err := json.Unmarshal(rawPlan, &session.Plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	if len(rawFollowUps) > 0 {
		if err := json.Unmarshal(rawFollowUps, &session.FollowUps); err != nil {
			return nil, fmt.Errorf("unmarshal follow-ups: %w", err)
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, rawUpdated); err == nil {
		session.UpdatedAt = ts
	}

	return &session, nil
}
