// Package database persists feedback session history in SQLite so past
// rounds survive server restarts.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB represents the SQLite database connection and operations
type DB struct {
	conn *sql.DB
	path string
}

// SessionRecord represents a feedback session stored in the database
type SessionRecord struct {
	ID               string    `json:"id"`
	ProjectDirectory string    `json:"project_directory"`
	Summary          string    `json:"summary"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	LastActivity     time.Time `json:"last_activity"`
}

// FeedbackRecord represents one feedback submission
type FeedbackRecord struct {
	ID               int64     `json:"id"`
	SessionID        string    `json:"session_id"`
	Content          string    `json:"content"`
	SubmissionMethod string    `json:"submission_method"`
	ImageCount       int       `json:"image_count"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// NewDB creates a new database connection
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "go-feedback.db")

	conn, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{
		conn: conn,
		path: dbPath,
	}

	if err := db.initialize(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

// initialize creates the database schema
func (db *DB) initialize() error {
	schema := `
	-- Feedback sessions table
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		project_directory TEXT NOT NULL,
		summary TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		last_activity DATETIME NOT NULL
	);

	-- Feedback submissions table
	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		content TEXT NOT NULL,
		submission_method TEXT DEFAULT 'web',
		image_count INTEGER DEFAULT 0,
		submitted_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
	CREATE INDEX IF NOT EXISTS idx_feedback_session ON feedback(session_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// SaveSession inserts or replaces a session record
func (db *DB) SaveSession(id, projectDirectory, summary, status string) error {
	now := time.Now()
	_, err := db.conn.Exec(`
		INSERT INTO sessions (id, project_directory, summary, status, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			last_activity = excluded.last_activity`,
		id, projectDirectory, summary, status, now, now)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// UpdateSessionStatus updates a session's status and activity timestamp
func (db *DB) UpdateSessionStatus(id, status string) error {
	_, err := db.conn.Exec(`
		UPDATE sessions SET status = ?, last_activity = ? WHERE id = ?`,
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return nil
}

// RecordFeedback stores one feedback submission
func (db *DB) RecordFeedback(sessionID, content, submissionMethod string, imageCount int) error {
	_, err := db.conn.Exec(`
		INSERT INTO feedback (session_id, content, submission_method, image_count, submitted_at)
		VALUES (?, ?, ?, ?, ?)`,
		sessionID, content, submissionMethod, imageCount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}
	return nil
}

// RecentSessions returns the most recently created sessions, newest first
func (db *DB) RecentSessions(limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(`
		SELECT id, project_directory, summary, status, created_at, last_activity
		FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var r SessionRecord
		if err := rows.Scan(&r.ID, &r.ProjectDirectory, &r.Summary, &r.Status, &r.CreatedAt, &r.LastActivity); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SessionFeedback returns all feedback recorded for a session
func (db *DB) SessionFeedback(sessionID string) ([]FeedbackRecord, error) {
	rows, err := db.conn.Query(`
		SELECT id, session_id, content, submission_method, image_count, submitted_at
		FROM feedback WHERE session_id = ? ORDER BY submitted_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var records []FeedbackRecord
	for rows.Next() {
		var r FeedbackRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Content, &r.SubmissionMethod, &r.ImageCount, &r.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}
