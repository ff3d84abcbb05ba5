// Package run orchestrates link runs and keeps their audit trail.
package run

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Store persists link runs and their events.
type Store struct {
	db *sql.DB
}

// NewStore creates a store for run persistence.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Record is a stored link run.
type Record struct {
	RunID       string `json:"run_id"`
	CreatedAt   string `json:"created_at"`
	FinishedAt  string `json:"finished_at,omitempty"`
	Source      string `json:"source"`
	Input       string `json:"input,omitempty"`
	Status      string `json:"status"`
	Total       int    `json:"total"`
	AutoLinked  int    `json:"auto_linked"`
	DefaultACID string `json:"default_ac_id,omitempty"`
	Error       string `json:"error,omitempty"`
	RunDir      string `json:"run_dir,omitempty"`
}

// Update contains the final state of a run.
type Update struct {
	Status      string
	Source      string
	Total       int
	AutoLinked  int
	DefaultACID string
	Error       string
}

// Event represents a timeline event for a run.
type Event struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	DataJSON string `json:"data_json,omitempty"`
}

// EventRecord is a stored event.
type EventRecord struct {
	Seq int    `json:"seq"`
	TS  string `json:"ts"`
	Event
}

// CreateRun inserts the run record and a run_started event.
func (s *Store) CreateRun(ctx context.Context, runID, input, runDir string) error {
	createdAt := time.Now().UTC().Format(time.RFC3339)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin create run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO link_runs(run_id, created_at, source, input, status, run_dir)
		VALUES(?, ?, ?, ?, ?, ?)`,
		runID, createdAt, "", input, StatusRunning, runDir); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}
	if err := insertEvent(ctx, tx, runID, Event{Type: "run_started", Message: "run started"}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create run: %w", err)
	}
	return nil
}

// FinishRun records the outcome and events of a run in one transaction.
func (s *Store) FinishRun(ctx context.Context, runID string, update Update, events []Event) error {
	finishedAt := time.Now().UTC().Format(time.RFC3339)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin finish run: %w", err)
	}
	for _, ev := range events {
		if err := insertEvent(ctx, tx, runID, ev); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `UPDATE link_runs SET finished_at=?, source=?, status=?, total=?, auto_linked=?, default_ac_id=?, error=?
		WHERE run_id=?`,
		finishedAt, update.Source, update.Status, update.Total, update.AutoLinked,
		nullableString(update.DefaultACID), nullableString(update.Error), runID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update run: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finish run: %w", err)
	}
	return nil
}

const recordColumns = `run_id, created_at, finished_at, source, input, status, total, auto_linked, default_ac_id, error, run_dir`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var r Record
	var finishedAt, defaultID, errText sql.NullString
	if err := row.Scan(&r.RunID, &r.CreatedAt, &finishedAt, &r.Source, &r.Input, &r.Status,
		&r.Total, &r.AutoLinked, &defaultID, &errText, &r.RunDir); err != nil {
		return Record{}, err
	}
	r.FinishedAt = finishedAt.String
	r.DefaultACID = defaultID.String
	r.Error = errText.String
	return r, nil
}

// GetRun fetches a run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM link_runs WHERE run_id=?`, runID)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return Record{}, fmt.Errorf("read run: %w", err)
	}
	return r, nil
}

// ListRuns returns runs newest first. A limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM link_runs ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// Events returns the events of a run in sequence order.
func (s *Store) Events(ctx context.Context, runID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, ts, type, message, data_json FROM events WHERE run_id=? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []EventRecord
	for rows.Next() {
		var ev EventRecord
		var data sql.NullString
		if err := rows.Scan(&ev.Seq, &ev.TS, &ev.Type, &ev.Message, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.DataJSON = data.String
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// GetRunStatus returns the status for a run id, or empty if missing.
func (s *Store) GetRunStatus(ctx context.Context, runID string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT status FROM link_runs WHERE run_id=?`, runID)
	var status string
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read run status: %w", err)
	}
	return status, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, runID string, ev Event) error {
	seq, err := nextSeq(ctx, tx, runID)
	if err != nil {
		return err
	}
	ts := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `INSERT INTO events(run_id, seq, ts, type, message, data_json) VALUES(?, ?, ?, ?, ?, ?)`,
		runID, seq, ts, ev.Type, ev.Message, nullableString(ev.DataJSON)); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func nextSeq(ctx context.Context, tx *sql.Tx, runID string) (int, error) {
	var seq int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events WHERE run_id=?`, runID)
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("read event seq: %w", err)
	}
	return seq + 1, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
