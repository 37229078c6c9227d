// Package tracker persists the last successfully deployed revision per
// project, plus a history of deployment attempts, in SQLite.
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed commit tracker.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the tracker database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer keeps SQLite happy.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS commits (
			project TEXT PRIMARY KEY,
			revision TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create commits table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS deployments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project TEXT NOT NULL,
			environment TEXT NOT NULL,
			action TEXT NOT NULL,
			branch TEXT NOT NULL,
			revision TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			error_message TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create deployments table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_project_started
		ON deployments(project, started_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// LastRevision returns the last deployed revision recorded for a
// project. The second return value is false when none was recorded.
func (s *Store) LastRevision(ctx context.Context, project string) (string, bool, error) {
	var revision string
	err := s.db.QueryRowContext(ctx,
		`SELECT revision FROM commits WHERE project = ?`, project,
	).Scan(&revision)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query last revision: %w", err)
	}

	return revision, true, nil
}

// SetLastRevision records the last deployed revision for a project,
// replacing any previous value.
func (s *Store) SetLastRevision(ctx context.Context, project, revision string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commits (project, revision, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(project) DO UPDATE SET
			revision = excluded.revision,
			updated_at = excluded.updated_at
	`, project, revision, now)
	if err != nil {
		return fmt.Errorf("failed to set last revision: %w", err)
	}

	return nil
}

// Record is one deployment attempt in the history table.
type Record struct {
	ID           int64
	Project      string
	Environment  string
	Action       string
	Branch       string
	Revision     string
	Status       string // success, failed
	StartedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage *string
}

// RecordDeployment appends a deployment attempt to the history.
func (s *Store) RecordDeployment(ctx context.Context, record *Record) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	started := record.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}

	var completedAt *string
	if record.CompletedAt != nil {
		formatted := record.CompletedAt.UTC().Format(time.RFC3339)
		completedAt = &formatted
	} else {
		completedAt = &now
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO deployments
		(project, environment, action, branch, revision, status,
		 started_at, completed_at, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.Project,
		record.Environment,
		record.Action,
		record.Branch,
		record.Revision,
		record.Status,
		started.Format(time.RFC3339),
		completedAt,
		record.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert deployment record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// History returns the most recent deployment attempts for a project.
func (s *Store) History(ctx context.Context, project string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project, environment, action, branch, revision,
		       status, started_at, completed_at, error_message
		FROM deployments
		WHERE project = ?
		ORDER BY id DESC
		LIMIT ?
	`, project, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployment history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var record Record
		var startedAtStr string
		var completedAtStr sql.NullString

		err := rows.Scan(
			&record.ID,
			&record.Project,
			&record.Environment,
			&record.Action,
			&record.Branch,
			&record.Revision,
			&record.Status,
			&startedAtStr,
			&completedAtStr,
			&record.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment record: %w", err)
		}

		record.StartedAt, err = time.Parse(time.RFC3339, startedAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
		}
		if completedAtStr.Valid {
			completedAt, err := time.Parse(time.RFC3339, completedAtStr.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
			}
			record.CompletedAt = &completedAt
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}
