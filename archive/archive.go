// Package archive persists sessions and messages for audit and analytics.
// Writes are queued and applied by a background worker; a full queue drops
// the record rather than slow down the caller.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github/itish2003/newsrag/logging"
	"github/itish2003/newsrag/models"
)

// Recorder receives session activity. Implementations must not block.
type Recorder interface {
	RecordSession(s models.Session)
	RecordMessage(sessionID string, m models.Message)
	Close() error
}

// Noop discards everything. Used when the archive is disabled.
type Noop struct{}

func (Noop) RecordSession(models.Session)         {}
func (Noop) RecordMessage(string, models.Message) {}
func (Noop) Close() error                         { return nil }

type record struct {
	session   *models.Session
	sessionID string
	message   *models.Message
}

// SQLiteArchive is the write-behind Recorder backed by a SQLite file.
type SQLiteArchive struct {
	db    *sql.DB
	log   logrus.FieldLogger
	queue chan record
	done  chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// OpenSQLite opens (creating if needed) the database at path, applies the
// schema and starts the writer.
func OpenSQLite(ctx context.Context, path string, queueSize int, log logrus.FieldLogger) (*SQLiteArchive, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	// one writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	a := &SQLiteArchive{
		db:    db,
		log:   logging.Component(log, "archive"),
		queue: make(chan record, queueSize),
		done:  make(chan struct{}),
	}
	go a.run()
	return a, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
            id TEXT PRIMARY KEY,
            metadata TEXT,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            session_id TEXT NOT NULL,
            role TEXT NOT NULL,
            content TEXT NOT NULL,
            sources TEXT,
            created_at TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (a *SQLiteArchive) RecordSession(s models.Session) {
	a.enqueue(record{session: &s})
}

func (a *SQLiteArchive) RecordMessage(sessionID string, m models.Message) {
	a.enqueue(record{sessionID: sessionID, message: &m})
}

func (a *SQLiteArchive) enqueue(r record) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- r:
	default:
		n := a.dropped.Add(1)
		a.log.WithField("dropped_total", n).Warn("ARCHIVE: queue full, dropping record")
	}
}

// Dropped reports how many records were discarded because the queue was full.
func (a *SQLiteArchive) Dropped() int64 { return a.dropped.Load() }

func (a *SQLiteArchive) run() {
	defer close(a.done)
	for r := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var err error
		if r.session != nil {
			err = a.writeSession(ctx, *r.session)
		} else {
			err = a.writeMessage(ctx, r.sessionID, *r.message)
		}
		cancel()
		if err != nil {
			a.log.WithError(err).Warn("ARCHIVE: write failed")
		}
	}
}

// timeLayout is fixed width so stored timestamps order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (a *SQLiteArchive) writeSession(ctx context.Context, s models.Session) error {
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO sessions(id, metadata, created_at, updated_at) VALUES(?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET metadata=excluded.metadata, created_at=excluded.created_at, updated_at=excluded.updated_at`,
		s.ID, string(meta), s.CreatedAt.UTC().Format(timeLayout), s.UpdatedAt.UTC().Format(timeLayout))
	return err
}

func (a *SQLiteArchive) writeMessage(ctx context.Context, sessionID string, m models.Message) error {
	sources, err := json.Marshal(m.Sources)
	if err != nil {
		return err
	}
	ts := m.Timestamp.UTC().Format(timeLayout)
	_, err = a.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages(id, session_id, role, content, sources, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		m.ID, sessionID, string(m.Role), m.Content, string(sources), ts)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, `UPDATE sessions SET updated_at=? WHERE id=? AND updated_at < ?`, ts, sessionID, ts)
	return err
}

// Messages reads the archived history of a session, oldest first.
func (a *SQLiteArchive) Messages(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, role, content, sources, created_at FROM messages WHERE session_id=? ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var (
			m       models.Message
			role    string
			sources sql.NullString
			created string
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &sources, &created); err != nil {
			return nil, err
		}
		m.Role = models.Role(role)
		m.Timestamp, _ = time.Parse(timeLayout, created)
		m.Sources = []models.Citation{}
		if sources.Valid && sources.String != "" && sources.String != "null" {
			if err := json.Unmarshal([]byte(sources.String), &m.Sources); err != nil {
				return nil, fmt.Errorf("decode sources of %s: %w", m.ID, err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SessionCount is the number of archived sessions.
func (a *SQLiteArchive) SessionCount(ctx context.Context) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions`).Scan(&n)
	return n, err
}

// Close stops accepting records, drains the queue and closes the database.
func (a *SQLiteArchive) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.db.Close()
}
