package history

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		sessionId TEXT NOT NULL,
		slideId INTEGER NOT NULL,
		takeId INTEGER NOT NULL,
		timingLabel TEXT NOT NULL,
		missingKeywords TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL,
		durationSec REAL NOT NULL,
		createdAt REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_take ON analyses(sessionId, slideId, takeId);
`

// Store provides access to the analysis history database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database with WAL and ensures the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return newStore(db)
}

func newStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts an entry, assigning id and timestamp when unset.
func (s *Store) Record(e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	_, err := s.db.Exec(`
		INSERT INTO analyses (id, sessionId, slideId, takeId, timingLabel, missingKeywords, summary, durationSec, createdAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.SessionID, e.SlideID, e.TakeID, e.TimingLabel,
		strings.Join(e.MissingKeywords, "\n"), e.Summary, e.DurationSec, unixFromTime(e.CreatedAt))
	if err != nil {
		return Entry{}, fmt.Errorf("insert analysis: %w", err)
	}
	return e, nil
}

// ForTake returns analyses of one take, newest first.
func (s *Store) ForTake(sessionID string, slideID, takeID int) ([]Entry, error) {
	return s.query(`
		SELECT id, sessionId, slideId, takeId, timingLabel, missingKeywords, summary, durationSec, createdAt
		FROM analyses
		WHERE sessionId = ? AND slideId = ? AND takeId = ?
		ORDER BY createdAt DESC
	`, sessionID, slideID, takeID)
}

// ForSlide returns analyses of every take of a slide, newest first.
func (s *Store) ForSlide(sessionID string, slideID int) ([]Entry, error) {
	return s.query(`
		SELECT id, sessionId, slideId, takeId, timingLabel, missingKeywords, summary, durationSec, createdAt
		FROM analyses
		WHERE sessionId = ? AND slideId = ?
		ORDER BY createdAt DESC
	`, sessionID, slideID)
}

// ForSession returns all analyses in a session, newest first.
func (s *Store) ForSession(sessionID string) ([]Entry, error) {
	return s.query(`
		SELECT id, sessionId, slideId, takeId, timingLabel, missingKeywords, summary, durationSec, createdAt
		FROM analyses
		WHERE sessionId = ?
		ORDER BY createdAt DESC
	`, sessionID)
}

// DeleteSlide drops the history of a deleted slide.
func (s *Store) DeleteSlide(sessionID string, slideID int) error {
	if _, err := s.db.Exec(`DELETE FROM analyses WHERE sessionId = ? AND slideId = ?`, sessionID, slideID); err != nil {
		return fmt.Errorf("delete slide history: %w", err)
	}
	return nil
}

func (s *Store) query(q string, args ...any) ([]Entry, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var missing string
		var createdAt float64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.SlideID, &e.TakeID, &e.TimingLabel,
			&missing, &e.Summary, &e.DurationSec, &createdAt); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		if missing != "" {
			e.MissingKeywords = strings.Split(missing, "\n")
		}
		e.CreatedAt = timeFromUnix(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
