package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"styleforge/internal/logging"
)

// Summary is one row of the session index.
type Summary struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Target        string    `json:"target"`
	State         string    `json:"state"`
	Converged     bool      `json:"converged"`
	BestScore     float64   `json:"best_score"`
	BestIteration int       `json:"best_iteration"`
	Iterations    int       `json:"iterations"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at,omitempty"`
}

// Index is the sqlite-backed session listing. The per-session directories
// hold the authoritative artifacts; the index only exists so listing does
// not have to walk and parse every session.json.
type Index struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewIndex opens (or creates) the index database at path.
func NewIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.SessionDebug("set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.SessionDebug("set journal_mode=WAL: %v", err)
	}
	// Safe with WAL; FULL costs a fsync per write for no recovery benefit.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.SessionDebug("set synchronous=NORMAL: %v", err)
	}

	ix := &Index{db: db, path: path}
	if err := ix.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Session("session index ready at %s", path)
	return ix, nil
}

func (ix *Index) initialize() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id             TEXT PRIMARY KEY,
			kind           TEXT NOT NULL,
			target         TEXT NOT NULL,
			state          TEXT NOT NULL,
			converged      INTEGER NOT NULL DEFAULT 0,
			best_score     REAL NOT NULL DEFAULT 0,
			best_iteration INTEGER NOT NULL DEFAULT 0,
			iterations     INTEGER NOT NULL DEFAULT 0,
			started_at     INTEGER NOT NULL,
			finished_at    INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state)`,
	}
	for _, stmt := range stmts {
		if _, err := ix.db.Exec(stmt); err != nil {
			return fmt.Errorf("initialize index schema: %w", err)
		}
	}
	return nil
}

// Upsert inserts or replaces one session row.
func (ix *Index) Upsert(s Summary) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var finished int64
	if !s.FinishedAt.IsZero() {
		finished = s.FinishedAt.UnixMilli()
	}
	_, err := ix.db.Exec(`
		INSERT INTO sessions (id, kind, target, state, converged, best_score, best_iteration, iterations, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			target = excluded.target,
			state = excluded.state,
			converged = excluded.converged,
			best_score = excluded.best_score,
			best_iteration = excluded.best_iteration,
			iterations = excluded.iterations,
			finished_at = excluded.finished_at`,
		s.ID, s.Kind, s.Target, s.State, boolToInt(s.Converged),
		s.BestScore, s.BestIteration, s.Iterations,
		s.StartedAt.UnixMilli(), finished)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", s.ID, err)
	}
	return nil
}

// List returns sessions newest-first. limit <= 0 means no limit.
func (ix *Index) List(limit int) ([]Summary, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	query := `SELECT id, kind, target, state, converged, best_score, best_iteration, iterations, started_at, finished_at
		FROM sessions ORDER BY started_at DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = ix.db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = ix.db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get returns one session row, or ErrNotFound.
func (ix *Index) Get(id string) (*Summary, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	row := ix.db.QueryRow(`SELECT id, kind, target, state, converged, best_score, best_iteration, iterations, started_at, finished_at
		FROM sessions WHERE id = ?`, id)
	s, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Close closes the database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSummary(r rowScanner) (Summary, error) {
	var s Summary
	var converged int
	var started, finished int64
	err := r.Scan(&s.ID, &s.Kind, &s.Target, &s.State, &converged,
		&s.BestScore, &s.BestIteration, &s.Iterations, &started, &finished)
	if err != nil {
		return s, err
	}
	s.Converged = converged != 0
	s.StartedAt = time.UnixMilli(started)
	if finished > 0 {
		s.FinishedAt = time.UnixMilli(finished)
	}
	return s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
