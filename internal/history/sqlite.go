package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore SQLite history storage implementation
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite storage
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = expandHome(dbPath)

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}

	// Initialize tables
	if err := store.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database tables: %w", err)
	}

	return store, nil
}

// expandHome resolves a leading ~ to the user's home directory
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// initTables initializes database tables
func (s *SQLiteStore) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			task TEXT NOT NULL,
			model TEXT NOT NULL,
			answer TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			steps INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS tool_calls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			name TEXT NOT NULL,
			arguments TEXT NOT NULL,
			result TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_calls_run_id ON tool_calls(run_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute SQL: %s, error: %w", query, err)
		}
	}

	return nil
}

// StartRun creates a run in running state and returns its id
func (s *SQLiteStore) StartRun(task, model string) (string, error) {
	id := uuid.New().String()

	_, err := s.db.Exec(
		"INSERT INTO runs (id, task, model, status, started_at) VALUES (?, ?, ?, ?, ?)",
		id, task, model, string(StatusRunning), time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	return id, nil
}

// FinishRun stores the outcome of a run
func (s *SQLiteStore) FinishRun(runID string, status Status, answer string, steps int) error {
	res, err := s.db.Exec(
		"UPDATE runs SET status = ?, answer = ?, steps = ?, finished_at = ? WHERE id = ?",
		string(status), answer, steps, time.Now(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun gets a run by ID
func (s *SQLiteStore) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, task, model, answer, status, steps, started_at, finished_at
		FROM runs WHERE id = ?`,
		runID,
	)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists the most recent runs, newest first
func (s *SQLiteStore) ListRuns(limit int) ([]*Run, error) {
	rows, err := s.db.Query(
		`SELECT id, task, model, answer, status, steps, started_at, finished_at
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// RecentTasks returns distinct task texts, most recently used first
func (s *SQLiteStore) RecentTasks(limit int) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT task FROM runs GROUP BY task ORDER BY MAX(started_at) DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []string
	for rows.Next() {
		var task string
		if err := rows.Scan(&task); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// RecordToolCall saves one tool invocation of a run
func (s *SQLiteStore) RecordToolCall(runID string, step int, name, arguments, result string) error {
	_, err := s.db.Exec(
		"INSERT INTO tool_calls (run_id, step, name, arguments, result, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		runID, step, name, arguments, result, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save tool call: %w", err)
	}
	return nil
}

// ToolCalls returns the tool calls of a run in dispatch order
func (s *SQLiteStore) ToolCalls(runID string) ([]*ToolCall, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, step, name, arguments, result, created_at
		FROM tool_calls WHERE run_id = ? ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get tool calls: %w", err)
	}
	defer rows.Close()

	var calls []*ToolCall
	for rows.Next() {
		var call ToolCall
		if err := rows.Scan(&call.ID, &call.RunID, &call.Step, &call.Name, &call.Arguments, &call.Result, &call.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tool call: %w", err)
		}
		calls = append(calls, &call)
	}

	return calls, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var status string
	var finishedAt sql.NullTime

	if err := row.Scan(&run.ID, &run.Task, &run.Model, &run.Answer, &status, &run.Steps, &run.StartedAt, &finishedAt); err != nil {
		return nil, err
	}

	run.Status = Status(status)
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}
