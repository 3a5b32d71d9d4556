// Package store implements the Task Store for pmtools.
//
// It keeps tasks, their append-only progress log, and at most one
// verification record per task in a local SQLite database. Every
// multi-statement write runs in a single transaction so a child insert
// and the parent's updated_at refresh commit together or not at all.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/HendryAvila/pmtools/internal/task"
)

// openDB is a package-level var to allow test injection.
var openDB = sqlx.Open

// timeLayout is fixed-width so lexical order equals chronological order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds task store configuration.
type Config struct {
	// Path is the SQLite database file. Its parent directory is created on New.
	Path string
	// BusyTimeout bounds how long a writer waits on a locked database.
	BusyTimeout time.Duration
}

// DefaultConfig returns the default configuration for the task store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Path:        filepath.Join(home, ".pmtools", "tasks.db"),
		BusyTimeout: 5 * time.Second,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the persistent task store backed by SQLite.
type Store struct {
	db  *sqlx.DB
	cfg Config
}

// New creates a Store. It creates the data directory if needed, opens
// SQLite with WAL mode and foreign keys, and runs pending migrations.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		cfg.Path, cfg.BusyTimeout.Milliseconds(),
	)
	db, err := openDB("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.cfg.Path }

// ─── Row types ───────────────────────────────────────────────────────────────

type taskRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Description string         `db:"description"`
	Status      string         `db:"status"`
	Priority    string         `db:"priority"`
	Assignee    sql.NullString `db:"assignee"`
	DueDate     sql.NullString `db:"due_date"`
	Tags        string         `db:"tags"`
	Metadata    string         `db:"metadata"`
	Channel     string         `db:"channel"`
	ThreadTS    sql.NullString `db:"thread_ts"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   string         `db:"updated_at"`
}

const taskColumns = `id, title, description, status, priority, assignee, due_date,
	tags, metadata, channel, thread_ts, created_at, updated_at`

type progressRow struct {
	ID             int64           `db:"id"`
	TaskID         string          `db:"task_id"`
	Timestamp      string          `db:"timestamp"`
	Source         string          `db:"source"`
	Content        string          `db:"content"`
	SentimentScore sql.NullFloat64 `db:"sentiment_score"`
	Analysis       sql.NullString  `db:"agent_analysis"`
}

type verificationRow struct {
	TaskID     string `db:"task_id"`
	VerifiedBy string `db:"verified_by"`
	VerifiedAt string `db:"verified_at"`
	Method     string `db:"method"`
	Evidence   string `db:"evidence"`
}

func (r taskRow) toTask() (*task.Task, error) {
	t := &task.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Status:      task.Status(r.Status),
		Priority:    task.Priority(r.Priority),
		Assignee:    nullableString(r.Assignee),
		DueDate:     nullableString(r.DueDate),
		Channel:     r.Channel,
		ThreadTS:    nullableString(r.ThreadTS),
		Tags:        []string{},
		Metadata:    map[string]any{},
	}
	var err error
	if t.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return nil, err
	}
	if r.Tags != "" {
		if err := json.Unmarshal([]byte(r.Tags), &t.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", r.ID, err)
		}
	}
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &t.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", r.ID, err)
		}
	}
	return t, nil
}

func (r progressRow) toUpdate() (task.ProgressUpdate, error) {
	ts, err := parseTime(r.Timestamp)
	if err != nil {
		return task.ProgressUpdate{}, err
	}
	u := task.ProgressUpdate{
		ID:        r.ID,
		TaskID:    r.TaskID,
		Timestamp: ts,
		Source:    task.Source(r.Source),
		Content:   r.Content,
		Analysis:  nullableString(r.Analysis),
	}
	if r.SentimentScore.Valid {
		v := r.SentimentScore.Float64
		u.SentimentScore = &v
	}
	return u, nil
}

func (r verificationRow) toRecord() (*task.VerificationRecord, error) {
	at, err := parseTime(r.VerifiedAt)
	if err != nil {
		return nil, err
	}
	v := &task.VerificationRecord{
		TaskID:     r.TaskID,
		VerifiedBy: r.VerifiedBy,
		VerifiedAt: at,
		Method:     task.Method(r.Method),
		Evidence:   []string{},
	}
	if r.Evidence != "" {
		if err := json.Unmarshal([]byte(r.Evidence), &v.Evidence); err != nil {
			return nil, fmt.Errorf("decode evidence of %s: %w", r.TaskID, err)
		}
	}
	return v, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by hand or by older tools may use plain RFC3339.
		if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t2.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// nullIfEmpty maps nil or blank strings to SQL NULL.
func nullIfEmpty(s *string) any {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return *s
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func storageErr(op string, err error) error {
	return &task.StorageError{Op: op, Err: err}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
