// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger persists run state in SQLite: the harvested-DOI ledger,
// per-run outcomes and the last successful harvest date per source.
//
// A Store holds an exclusive file lock on its directory for as long as it
// is open, so two runs never share a ledger.
package ledger

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/rdm-harvest/internal/identifier"
	"github.com/pdiddy/rdm-harvest/pkg/types"
)

const (
	dbFile   = "ledger.db"
	lockFile = "ledger.lock"
	dateFmt  = "2006-01-02"
)

// ErrLocked is returned by Open when another process holds the ledger.
var ErrLocked = errors.New("ledger is in use by another run")

// Store is the run ledger.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	dir  string
}

// Entry is one harvested DOI.
type Entry struct {
	DOI      string
	RunID    string
	RecordID string
	AddedAt  time.Time
}

// Run summarizes one harvest run.
type Run struct {
	ID         string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Written    int
	Skipped    int
	Failed     int
}

// Open locks dir and opens (or creates) the ledger database inside it.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire ledger lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, dbFile)+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, lock: lock, dir: dir}
	if err := s.createSchema(); err != nil {
		db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database and the directory lock.
func (s *Store) Close() error {
	dbErr := s.db.Close()
	lockErr := s.lock.Unlock()
	return errors.Join(dbErr, lockErr)
}

// Dir returns the ledger directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS harvested (
			doi TEXT PRIMARY KEY,
			run_id TEXT,
			record_id TEXT,
			added_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			written INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			run_id TEXT NOT NULL REFERENCES runs(id),
			doi TEXT NOT NULL,
			outcome TEXT NOT NULL,
			state TEXT NOT NULL,
			detail TEXT,
			record_id TEXT,
			processed_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_run_id ON outcomes(run_id)`,
		`CREATE TABLE IF NOT EXISTS last_run (
			source TEXT PRIMARY KEY,
			date TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Contains reports whether doi was already harvested.
func (s *Store) Contains(ctx context.Context, doi string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM harvested WHERE doi = ?`, normalize(doi)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying ledger: %w", err)
	}
	return n > 0, nil
}

// Add records doi as harvested. Adding a DOI twice keeps the first entry.
func (s *Store) Add(ctx context.Context, doi, runID, recordID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO harvested (doi, run_id, record_id, added_at) VALUES (?, ?, ?, ?)`,
		normalize(doi), runID, recordID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("adding %s to ledger: %w", doi, err)
	}
	return nil
}

// Remove deletes DOIs from the ledger and returns how many were present.
func (s *Store) Remove(ctx context.Context, dois ...string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	removed := 0
	for _, doi := range dois {
		res, err := tx.ExecContext(ctx, `DELETE FROM harvested WHERE doi = ?`, normalize(doi))
		if err != nil {
			return 0, fmt.Errorf("removing %s: %w", doi, err)
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}
	return removed, nil
}

// List returns every ledger entry ordered by insertion time.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doi, coalesce(run_id, ''), coalesce(record_id, ''), added_at FROM harvested ORDER BY added_at, doi`)
	if err != nil {
		return nil, fmt.Errorf("listing ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var added string
		if err := rows.Scan(&e.DOI, &e.RunID, &e.RecordID, &added); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		e.AddedAt, _ = time.Parse(time.RFC3339, added)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Import adds one DOI per line from r (the harvested_dois.txt format).
// Blank lines are skipped. It returns the number of new entries.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	before, err := s.count(ctx)
	if err != nil {
		return 0, err
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := s.Add(ctx, line, "", ""); err != nil {
			return 0, err
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("reading import: %w", err)
	}
	after, err := s.count(ctx)
	if err != nil {
		return 0, err
	}
	return after - before, nil
}

// ClearFromCSV removes the DOIs found in column (0-based) of a CSV triage
// list. Short rows are ignored.
func (s *Store) ClearFromCSV(ctx context.Context, r io.Reader, column int) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var dois []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("reading CSV: %w", err)
		}
		if column < len(rec) && strings.TrimSpace(rec[column]) != "" {
			dois = append(dois, rec[column])
		}
	}
	return s.Remove(ctx, dois...)
}

func (s *Store) count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM harvested`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting ledger: %w", err)
	}
	return n, nil
}

// StartRun registers a new run and returns its id.
func (s *Store) StartRun(ctx context.Context, source string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs (id, source, started_at) VALUES (?, ?, ?)`,
		id, source, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("registering run: %w", err)
	}
	return id, nil
}

// RecordOutcome stores one DOI result of a run and bumps the run counters.
func (s *Store) RecordOutcome(ctx context.Context, runID string, res types.DOIResult) error {
	column := map[types.Outcome]string{
		types.OutcomeWritten: "written",
		types.OutcomeSkipped: "skipped",
		types.OutcomeFailed:  "failed",
	}[res.Outcome]
	if column == "" {
		return fmt.Errorf("unknown outcome %q", res.Outcome)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	processed := res.ProcessedAt
	if processed.IsZero() {
		processed = time.Now()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, doi, outcome, state, detail, record_id, processed_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, res.DOI, string(res.Outcome), string(res.State), res.Detail, res.RecordID, processed.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording outcome for %s: %w", res.DOI, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET `+column+` = `+column+` + 1 WHERE id = ?`, runID); err != nil {
		return fmt.Errorf("updating run counters: %w", err)
	}
	return tx.Commit()
}

// FinishRun stamps the run's end time.
func (s *Store) FinishRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET finished_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), runID)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	return nil
}

// GetRun returns a run summary.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	var r Run
	var started string
	var finished sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, started_at, finished_at, written, skipped, failed FROM runs WHERE id = ?`, runID,
	).Scan(&r.ID, &r.Source, &started, &finished, &r.Written, &r.Skipped, &r.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("run %s: %w", runID, types.ErrNotFound)
	}
	if err != nil {
		return r, fmt.Errorf("reading run: %w", err)
	}
	r.StartedAt, _ = time.Parse(time.RFC3339, started)
	if finished.Valid {
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished.String)
	}
	return r, nil
}

// LastRun returns the last successful harvest date of source.
func (s *Store) LastRun(ctx context.Context, source string) (time.Time, bool, error) {
	var date string
	err := s.db.QueryRowContext(ctx, `SELECT date FROM last_run WHERE source = ?`, source).Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading last run: %w", err)
	}
	t, err := time.Parse(dateFmt, date)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing last run %q: %w", date, err)
	}
	return t, true, nil
}

// SetLastRun stores the harvest date of source.
func (s *Store) SetLastRun(ctx context.Context, source string, day time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO last_run (source, date) VALUES (?, ?) ON CONFLICT(source) DO UPDATE SET date = excluded.date`,
		source, day.Format(dateFmt))
	if err != nil {
		return fmt.Errorf("storing last run: %w", err)
	}
	return nil
}

func normalize(doi string) string {
	d, _ := identifier.NormalizeDOI(doi)
	return d
}
