// Package store is the append-only archive of per-user pipeline artifacts:
// analysis summaries, individual keyword reports, and generated calendars.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by point lookups that match no record.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

// Summary is one stored summary artifact. Subtype is "analysis" for the
// aggregate stage output, or the work item's category for individual
// keyword reports.
type Summary struct {
	ID        int64
	UserID    int64
	Subtype   string
	Keyword   string
	Body      string
	CreatedAt time.Time
}

type Calendar struct {
	ID        int64
	UserID    int64
	Body      string
	CreatedAt time.Time
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening results db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			username   TEXT UNIQUE NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS summaries (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    INTEGER NOT NULL,
			subtype    TEXT NOT NULL,
			keyword    TEXT NOT NULL,
			body       TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id)
		);
		CREATE INDEX IF NOT EXISTS idx_summaries_user ON summaries(user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS calendars (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    INTEGER NOT NULL,
			body       TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id)
		);
		CREATE INDEX IF NOT EXISTS idx_calendars_user ON calendars(user_id, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureUser returns the id for username, creating the user if absent.
// A UNIQUE violation from a concurrent insert falls back to lookup.
func (s *Store) EnsureUser(username string) (int64, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM users WHERE username = ?`, username).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("looking up user %q: %w", username, err)
	}

	res, err := s.db.Exec(`INSERT INTO users (username, created_at) VALUES (?, ?)`,
		username, time.Now())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			slog.Warn("user already exists, reusing", "username", username)
			if lookupErr := s.db.QueryRow(`SELECT id FROM users WHERE username = ?`, username).Scan(&id); lookupErr == nil {
				return id, nil
			}
		}
		return 0, fmt.Errorf("creating user %q: %w", username, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("creating user %q: %w", username, err)
	}
	slog.Info("created user", "username", username, "user_id", id)
	return id, nil
}

func (s *Store) AddSummary(userID int64, subtype, keyword, body string) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO summaries (user_id, subtype, keyword, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, subtype, keyword, body, time.Now())
	if err != nil {
		return 0, fmt.Errorf("inserting summary %s/%s: %w", subtype, keyword, err)
	}
	return res.LastInsertId()
}

func (s *Store) AddCalendar(userID int64, body string) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO calendars (user_id, body, created_at)
		VALUES (?, ?, ?)
	`, userID, body, time.Now())
	if err != nil {
		return 0, fmt.Errorf("inserting calendar: %w", err)
	}
	return res.LastInsertId()
}

// SummaryByDate returns the latest summary of the given subtype created on
// the calendar day of `day`, or ErrNotFound.
func (s *Store) SummaryByDate(userID int64, subtype string, day time.Time) (*Summary, error) {
	start, end := dayBounds(day)
	row := s.db.QueryRow(`
		SELECT id, user_id, subtype, keyword, body, created_at
		FROM summaries
		WHERE user_id = ? AND subtype = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, subtype, start, end)
	return scanSummary(row)
}

// CalendarByDate returns the latest calendar created on the calendar day of
// `day`, or ErrNotFound.
func (s *Store) CalendarByDate(userID int64, day time.Time) (*Calendar, error) {
	start, end := dayBounds(day)
	row := s.db.QueryRow(`
		SELECT id, user_id, body, created_at
		FROM calendars
		WHERE user_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, start, end)
	return scanCalendar(row)
}

func (s *Store) SummaryByID(id int64) (*Summary, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, subtype, keyword, body, created_at
		FROM summaries WHERE id = ?
	`, id)
	return scanSummary(row)
}

func (s *Store) CalendarByID(id int64) (*Calendar, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, body, created_at
		FROM calendars WHERE id = ?
	`, id)
	return scanCalendar(row)
}

// LatestCalendar returns the most recent calendar for the user, or ErrNotFound.
func (s *Store) LatestCalendar(userID int64) (*Calendar, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, body, created_at
		FROM calendars WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)
	return scanCalendar(row)
}

// Summaries returns the user's summary history newest-first. An empty
// subtype matches all subtypes.
func (s *Store) Summaries(userID int64, subtype string) ([]Summary, error) {
	query := `
		SELECT id, user_id, subtype, keyword, body, created_at
		FROM summaries
		WHERE user_id = ?`
	args := []interface{}{userID}
	if subtype != "" {
		query += ` AND subtype = ?`
		args = append(args, subtype)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying summaries: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.ID, &sm.UserID, &sm.Subtype, &sm.Keyword, &sm.Body, &sm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *Store) Calendars(userID int64) ([]Calendar, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, body, created_at
		FROM calendars WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying calendars: %w", err)
	}
	defer rows.Close()

	var out []Calendar
	for rows.Next() {
		var c Calendar
		if err := rows.Scan(&c.ID, &c.UserID, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning calendar: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LookupUser returns the id for username without creating it.
func (s *Store) LookupUser(username string) (int64, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM users WHERE username = ?`, username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("looking up user %q: %w", username, err)
	}
	return id, nil
}

// Stats reports row counts and database file size.
func (s *Store) Stats(dbPath string) (summaries, calendars int, size int64, err error) {
	if err = s.db.QueryRow("SELECT COUNT(*) FROM summaries").Scan(&summaries); err != nil {
		return 0, 0, 0, fmt.Errorf("counting summaries: %w", err)
	}
	if err = s.db.QueryRow("SELECT COUNT(*) FROM calendars").Scan(&calendars); err != nil {
		return 0, 0, 0, fmt.Errorf("counting calendars: %w", err)
	}
	info, err := os.Stat(dbPath)
	if err != nil {
		return summaries, calendars, 0, err
	}
	return summaries, calendars, info.Size(), nil
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return start, start.Add(24 * time.Hour)
}

func scanSummary(row *sql.Row) (*Summary, error) {
	var sm Summary
	err := row.Scan(&sm.ID, &sm.UserID, &sm.Subtype, &sm.Keyword, &sm.Body, &sm.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning summary: %w", err)
	}
	return &sm, nil
}

func scanCalendar(row *sql.Row) (*Calendar, error) {
	var c Calendar
	err := row.Scan(&c.ID, &c.UserID, &c.Body, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning calendar: %w", err)
	}
	return &c, nil
}
