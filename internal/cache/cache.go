// Package cache persists generated keyword summaries with a time-based
// expiration window. Expired entries are reported as misses but never
// deleted; the next successful generation overwrites them.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	readDB  *sql.DB
	writeDB *sql.DB
	window  time.Duration
	now     func() time.Time
}

// Open creates or opens the cache database. window is the expiration
// window applied at read time.
func Open(dbPath string, window time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}

	s := &Store{readDB: readDB, writeDB: writeDB, window: window, now: time.Now}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS summaries (
			category  TEXT NOT NULL,
			keyword   TEXT NOT NULL,
			summary   TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			UNIQUE(category, keyword)
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	var errs []error
	if s.readDB != nil {
		errs = append(errs, s.readDB.Close())
	}
	if s.writeDB != nil {
		errs = append(errs, s.writeDB.Close())
	}
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// Check returns the cached summary for (category, keyword) if present and
// younger than the expiration window. Storage errors degrade to a miss so
// the caller regenerates instead of failing.
func (s *Store) Check(category, keyword string) (string, bool) {
	var (
		summary string
		ts      time.Time
	)
	err := s.readDB.QueryRow(`
		SELECT summary, timestamp FROM summaries
		WHERE category = ? AND keyword = ?
	`, category, keyword).Scan(&summary, &ts)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("cache read failed, treating as miss",
				"category", category, "keyword", keyword, "error", err)
		}
		return "", false
	}

	age := s.now().Sub(ts)
	if age >= s.window {
		slog.Info("cache entry expired",
			"category", category, "keyword", keyword, "age", age, "window", s.window)
		return "", false
	}
	slog.Info("cache hit", "category", category, "keyword", keyword, "age", age)
	return summary, true
}

// Update upserts the entry with the current time. Last write wins for
// concurrent updates to the same key.
func (s *Store) Update(category, keyword, summary string) error {
	_, err := s.writeDB.Exec(`
		INSERT INTO summaries (category, keyword, summary, timestamp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(category, keyword) DO UPDATE SET
			summary = excluded.summary,
			timestamp = excluded.timestamp
	`, category, keyword, summary, s.now())
	if err != nil {
		return fmt.Errorf("upserting summary %s/%s: %w", category, keyword, err)
	}
	return nil
}

// Stats reports the entry count and database file size.
func (s *Store) Stats(dbPath string) (count int, size int64, err error) {
	if err := s.readDB.QueryRow("SELECT COUNT(*) FROM summaries").Scan(&count); err != nil {
		return 0, 0, fmt.Errorf("counting entries: %w", err)
	}
	info, err := os.Stat(dbPath)
	if err != nil {
		return count, 0, err
	}
	return count, info.Size(), nil
}
