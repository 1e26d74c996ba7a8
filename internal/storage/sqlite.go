package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// createdAt is stored with fixed-width fractions so that text order matches
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is a finalized recording session.
type Record struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Transcript string    `json:"transcript"`
	Summary    string    `json:"summary"`
	Duration   int       `json:"duration"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"createdAt"`
	AudioPath  string    `json:"audioPath,omitempty"`
}

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "live-scribe.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			transcript TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			duration INTEGER NOT NULL DEFAULT 0,
			title TEXT NOT NULL,
			created_at TEXT NOT NULL,
			audio_path TEXT NOT NULL DEFAULT ''
		);
	`); err != nil {
		return fmt.Errorf("create records table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_records_user_created ON records(user_id, created_at)"); err != nil {
		return fmt.Errorf("create records index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Create inserts a new record with a fresh id and creation time.
func (s *SQLiteStore) Create(userID, transcript, summary string, duration int, title string) (Record, error) {
	if duration < 0 {
		duration = 0
	}
	rec := Record{
		ID:         uuid.NewString(),
		UserID:     userID,
		Transcript: transcript,
		Summary:    summary,
		Duration:   duration,
		Title:      title,
		CreatedAt:  s.now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO records(id, user_id, transcript, summary, duration, title, created_at) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.UserID,
		rec.Transcript,
		rec.Summary,
		rec.Duration,
		rec.Title,
		rec.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Record{}, fmt.Errorf("create record for user %s: %w", userID, err)
	}
	return rec, nil
}

// ListRecent returns up to limit records for userID, newest first.
func (s *SQLiteStore) ListRecent(userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(
		`SELECT id, user_id, transcript, summary, duration, title, created_at, audio_path
		 FROM records
		 WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query records for user %s: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records rows: %w", err)
	}

	return records, nil
}

func (s *SQLiteStore) Get(id string) (Record, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, transcript, summary, duration, title, created_at, audio_path FROM records WHERE id = ?`,
		id,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// UpdateTitle renames a record and returns it, or ErrNotFound.
func (s *SQLiteStore) UpdateTitle(id, title string) (Record, error) {
	if err := s.update(`UPDATE records SET title = ? WHERE id = ?`, title, id); err != nil {
		return Record{}, fmt.Errorf("update title for record %s: %w", id, err)
	}
	return s.Get(id)
}

func (s *SQLiteStore) SetAudioPath(id, audioPath string) error {
	if err := s.update(`UPDATE records SET audio_path = ? WHERE id = ?`, audioPath, id); err != nil {
		return fmt.Errorf("set audio path for record %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) update(query, value, id string) error {
	res, err := s.db.Exec(query, value, id)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	var createdAt string
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Transcript, &rec.Summary, &rec.Duration, &rec.Title, &createdAt, &rec.AudioPath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan record: %w", err)
	}

	parsed, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("parse record %s created_at: %w", rec.ID, err)
	}
	rec.CreatedAt = parsed

	return rec, nil
}
