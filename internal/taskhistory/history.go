// Package taskhistory is a durable, append-only audit trail of completed
// and failed tasks (SPEC_FULL §3: "a completed or failed task is
// additionally appended to a durable task history store"). It is grounded
// on the teacher repository's PersistentStore: a modernc.org/sqlite-backed
// table behind a narrow mutex, with the schema narrowed from a whole
// file-transfer session down to the one record shape this specification
// needs. It is pure audit trail — it carries no exactly-once guarantee and
// never feeds back into the scheduling state machine.
package taskhistory

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one entry in the history: a completed or failed task.
type Record struct {
	TaskID        uint64
	Module        string
	Phase         string // "Completed" or "Failed"
	CreatedAt     time.Time
	FinishedAt    time.Time
	ResultSummary string
}

// Store is a SQLite-backed append-only task history log.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if absent) the SQLite database at path and ensures
// its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("taskhistory: open: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS task_history (
			task_id TEXT NOT NULL,
			module TEXT NOT NULL,
			phase TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL,
			result_summary TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_task_history_module ON task_history(module);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append records one finished task. TaskID is stored as text since it is an
// opaque 64-bit handle, not a row identity this store manages itself.
func (s *Store) Append(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO task_history (task_id, module, phase, created_at, finished_at, result_summary)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		fmt.Sprintf("%d", r.TaskID), r.Module, r.Phase, r.CreatedAt, r.FinishedAt, r.ResultSummary,
	)
	return err
}

// RecentByModule returns up to limit of the most recently finished records
// for module, newest first — the inspector's per-module audit view.
func (s *Store) RecentByModule(module string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT task_id, module, phase, created_at, finished_at, result_summary
		 FROM task_history WHERE module = ? ORDER BY finished_at DESC LIMIT ?`,
		module, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var taskIDText string
		if err := rows.Scan(&taskIDText, &r.Module, &r.Phase, &r.CreatedAt, &r.FinishedAt, &r.ResultSummary); err != nil {
			return nil, err
		}
		fmt.Sscanf(taskIDText, "%d", &r.TaskID)
		out = append(out, r)
	}
	return out, rows.Err()
}
