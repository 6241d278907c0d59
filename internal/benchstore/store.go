// Package benchstore keeps a history of benchmark runs in SQLite.
package benchstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/telnet2/eventrouter/internal/bench"
	"github.com/telnet2/eventrouter/internal/config"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("bench run not found")

// Run is a recorded benchmark run.
type Run struct {
	ID           string             `json:"id"`
	Started      time.Time          `json:"started"`
	Config       config.BenchConfig `json:"config"`
	Scope        string             `json:"scope"`
	WaitStrategy string             `json:"wait_strategy"`
	Dispatches   int64              `json:"dispatches"`
	Average      time.Duration      `json:"average"`
	Epochs       []Epoch            `json:"epochs,omitempty"`
}

// Epoch is one recorded epoch.
type Epoch struct {
	Epoch    int           `json:"epoch"`
	Received int64         `json:"received"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer, and every ":memory:"
	// connection would otherwise be a separate database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	PRAGMA busy_timeout = 5000;

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_ms INTEGER NOT NULL,
		producers INTEGER NOT NULL,
		subscribers INTEGER NOT NULL,
		types INTEGER NOT NULL,
		events INTEGER NOT NULL,
		epochs INTEGER NOT NULL,
		scope TEXT NOT NULL,
		wait_strategy TEXT NOT NULL,
		dispatches INTEGER NOT NULL,
		average_ns INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS epochs (
		run_id TEXT NOT NULL,
		epoch INTEGER NOT NULL,
		received INTEGER NOT NULL,
		elapsed_ns INTEGER NOT NULL,
		PRIMARY KEY (run_id, epoch),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_ms);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save records sum and its epochs in one transaction.
func (s *Store) Save(ctx context.Context, sum *bench.Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c := sum.Config
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_ms, producers, subscribers, types, events, epochs,
			scope, wait_strategy, dispatches, average_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sum.RunID, sum.Started.UnixMilli(), c.Producers, c.Subscribers, c.Types, c.Events, c.Epochs,
		sum.Scope.String(), sum.WaitStrategy.String(), sum.Dispatches, int64(sum.Average))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, e := range sum.Epochs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO epochs (run_id, epoch, received, elapsed_ns) VALUES (?, ?, ?, ?)
		`, sum.RunID, e.Epoch, e.Received, int64(e.Elapsed))
		if err != nil {
			return fmt.Errorf("failed to insert epoch %d: %w", e.Epoch, err)
		}
	}
	return tx.Commit()
}

const runColumns = `id, started_ms, producers, subscribers, types, events, epochs,
	scope, wait_strategy, dispatches, average_ns`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r         Run
		startedMs int64
		averageNs int64
	)
	err := row.Scan(&r.ID, &startedMs, &r.Config.Producers, &r.Config.Subscribers, &r.Config.Types,
		&r.Config.Events, &r.Config.Epochs, &r.Scope, &r.WaitStrategy, &r.Dispatches, &averageNs)
	if err != nil {
		return r, err
	}
	r.Started = time.UnixMilli(startedMs)
	r.Average = time.Duration(averageNs)
	return r, nil
}

// List returns up to limit runs, newest first, without their epochs.
// A limit <= 0 returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_ms DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns the run with the given ID, including its epochs.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT epoch, received, elapsed_ns FROM epochs WHERE run_id = ? ORDER BY epoch`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query epochs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e         Epoch
			elapsedNs int64
		)
		if err := rows.Scan(&e.Epoch, &e.Received, &elapsedNs); err != nil {
			return nil, fmt.Errorf("failed to scan epoch: %w", err)
		}
		e.Elapsed = time.Duration(elapsedNs)
		r.Epochs = append(r.Epochs, e)
	}
	return &r, rows.Err()
}

// Delete removes a run and its epochs.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM epochs WHERE run_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}
