// Package ledger records every processing run in SQLite so past reports can
// be listed and their excess findings reviewed.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/phillip-england/desglose/internal/breakdown"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("run not found")

// timeLayout sorts lexically in creation order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	filename TEXT NOT NULL,
	upload_key TEXT NOT NULL,
	policy TEXT NOT NULL,
	source_rows INTEGER NOT NULL,
	emitted_rows INTEGER NOT NULL,
	meals_cleared INTEGER NOT NULL,
	excess_count INTEGER NOT NULL,
	stats TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at);
CREATE TABLE IF NOT EXISTS run_excess (
	run_id TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	worker TEXT NOT NULL,
	work_date TEXT NOT NULL,
	shift TEXT NOT NULL,
	hours REAL NOT NULL,
	PRIMARY KEY (run_id, position)
);
`

type Run struct {
	ID        string                  `json:"id"`
	CreatedAt time.Time               `json:"createdAt"`
	Filename  string                  `json:"filename"`
	UploadKey string                  `json:"uploadKey"`
	Policy    string                  `json:"policy"`
	Stats     breakdown.Stats         `json:"stats"`
	Excess    []breakdown.ExcessEntry `json:"excess,omitempty"`
	// ExcessCount survives in listings where Excess is not loaded.
	ExcessCount int `json:"excessCount"`
}

type runRow struct {
	ID           string `db:"id"`
	CreatedAt    string `db:"created_at"`
	Filename     string `db:"filename"`
	UploadKey    string `db:"upload_key"`
	Policy       string `db:"policy"`
	SourceRows   int    `db:"source_rows"`
	EmittedRows  int    `db:"emitted_rows"`
	MealsCleared int    `db:"meals_cleared"`
	ExcessCount  int    `db:"excess_count"`
	Stats        string `db:"stats"`
}

type excessRow struct {
	Worker string  `db:"worker"`
	Date   string  `db:"work_date"`
	Shift  string  `db:"shift"`
	Hours  float64 `db:"hours"`
}

type Store struct {
	db *sqlx.DB
}

// Open opens or creates the ledger database at path. ":memory:" gives a
// private in-memory ledger.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("ledger path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA busy_timeout = 5000;", "PRAGMA foreign_keys = ON;", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prepare ledger: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a run and its excess entries. ID and CreatedAt are filled in
// when empty; the stored run is returned.
func (s *Store) Record(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.CreatedAt = run.CreatedAt.UTC()
	run.ExcessCount = len(run.Excess)

	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return Run{}, fmt.Errorf("encode stats: %w", err)
	}

	err = withRetry(ctx, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, created_at, filename, upload_key, policy, source_rows, emitted_rows, meals_cleared, excess_count, stats)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.CreatedAt.Format(timeLayout), run.Filename, run.UploadKey, run.Policy,
			run.Stats.SourceRows, run.Stats.EmittedRows, run.Stats.MealsCleared, run.ExcessCount, string(stats)); err != nil {
			return err
		}
		for i, entry := range run.Excess {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO run_excess (run_id, position, worker, work_date, shift, hours)
				VALUES (?, ?, ?, ?, ?, ?)`,
				run.ID, i, entry.Worker, entry.Date, entry.Shift, entry.Hours); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}
	return run, nil
}

// List returns the most recent runs first, without their excess entries.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runRow
	err := withRetry(ctx, func() error {
		rows = rows[:0]
		return s.db.SelectContext(ctx, &rows, `
			SELECT id, created_at, filename, upload_key, policy, source_rows, emitted_rows, meals_cleared, excess_count, stats
			FROM runs
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?`, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		run, err := row.toRun()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	var row runRow
	err := withRetry(ctx, func() error {
		return s.db.GetContext(ctx, &row, `
			SELECT id, created_at, filename, upload_key, policy, source_rows, emitted_rows, meals_cleared, excess_count, stats
			FROM runs WHERE id = ?`, id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	run, err := row.toRun()
	if err != nil {
		return nil, err
	}

	var excess []excessRow
	err = withRetry(ctx, func() error {
		excess = excess[:0]
		return s.db.SelectContext(ctx, &excess, `
			SELECT worker, work_date, shift, hours
			FROM run_excess WHERE run_id = ?
			ORDER BY position`, id)
	})
	if err != nil {
		return nil, fmt.Errorf("get run excess: %w", err)
	}
	for _, e := range excess {
		run.Excess = append(run.Excess, breakdown.ExcessEntry{Worker: e.Worker, Date: e.Date, Shift: e.Shift, Hours: e.Hours})
	}
	return &run, nil
}

func (r runRow) toRun() (Run, error) {
	created, err := time.Parse(timeLayout, r.CreatedAt)
	if err != nil {
		return Run{}, fmt.Errorf("run %s: bad created_at %q: %w", r.ID, r.CreatedAt, err)
	}
	var stats breakdown.Stats
	if err := json.Unmarshal([]byte(r.Stats), &stats); err != nil {
		return Run{}, fmt.Errorf("run %s: bad stats: %w", r.ID, err)
	}
	return Run{
		ID:          r.ID,
		CreatedAt:   created,
		Filename:    r.Filename,
		UploadKey:   r.UploadKey,
		Policy:      r.Policy,
		Stats:       stats,
		ExcessCount: r.ExcessCount,
	}, nil
}

func withRetry(ctx context.Context, fn func() error) error {
	const maxAttempts = 3
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		lower := strings.ToLower(err.Error())
		if !strings.Contains(lower, "database is locked") && !strings.Contains(lower, "database is busy") {
			return err
		}
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 125 * time.Millisecond):
			}
		}
	}
	return err
}
