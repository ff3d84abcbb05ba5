// Package reconcile repairs link run state after an interrupted process.
package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/metalagman/tclink/internal/report"
	"github.com/rs/zerolog/log"
)

const (
	abandonedMessage = "Run was still marked running when a new run started; marked abandoned during recovery"
	restoredMessage  = "Run dir had a report but DB record was missing; inserted during recovery"
)

// Run reconciles the database with the run directories under runsDir.
// Callers must hold the run lock. It is safe to call repeatedly.
//
// Runs left in the running state are marked abandoned. Run directories that
// contain a report but have no database record are restored from the report.
func Run(ctx context.Context, db *sql.DB, runsDir string) error {
	if err := abandonStale(ctx, db); err != nil {
		return err
	}
	return restoreMissing(ctx, db, runsDir)
}

func abandonStale(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `SELECT run_id FROM link_runs WHERE status='running'`)
	if err != nil {
		return fmt.Errorf("query running runs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan running run: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("iterate running runs: %w", err)
	}
	_ = rows.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, id := range ids {
		if err := withTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `UPDATE link_runs SET status='abandoned', finished_at=? WHERE run_id=?`, now, id); err != nil {
				return fmt.Errorf("abandon run: %w", err)
			}
			return insertEvent(ctx, tx, id, "reconciled_run", abandonedMessage, now)
		}); err != nil {
			return err
		}
		log.Warn().Str("run_id", id).Msg("abandoned stale run")
	}
	return nil
}

func restoreMissing(ctx context.Context, db *sql.DB, runsDir string) error {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read runs dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		runID := entry.Name()
		var exists int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM link_runs WHERE run_id=?`, runID).Scan(&exists); err != nil {
			return fmt.Errorf("check run %s: %w", runID, err)
		}
		if exists > 0 {
			continue
		}
		runDir := filepath.Join(runsDir, runID)
		rep, err := report.Load(filepath.Join(runDir, report.FileName))
		if err != nil {
			log.Debug().Err(err).Str("run_id", runID).Msg("skip run dir without report")
			continue
		}
		if rep.RunID != "" && rep.RunID != runID {
			log.Warn().Str("run_id", runID).Str("report_run_id", rep.RunID).Msg("skip run dir with mismatched report")
			continue
		}
		now := time.Now().UTC().Format(time.RFC3339)
		if err := withTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `INSERT INTO link_runs(run_id, created_at, finished_at, source, input, status, total, auto_linked, default_ac_id, run_dir)
				VALUES(?, ?, ?, ?, ?, 'succeeded', ?, ?, ?, ?)`,
				runID, orNow(rep.StartedAtUTC, now), orNow(rep.FinishedAtUTC, now), rep.Source, rep.Input,
				rep.Summary.Total, rep.Summary.AutoLinked, rep.DefaultACID, runDir); err != nil {
				return fmt.Errorf("insert run: %w", err)
			}
			return insertEvent(ctx, tx, runID, "reconciled_run", restoredMessage, now)
		}); err != nil {
			return err
		}
		log.Info().Str("run_id", runID).Msg("restored run record from report")
	}
	return nil
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin reconcile: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reconcile: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, runID, typ, message, ts string) error {
	var seq int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events WHERE run_id=?`, runID).Scan(&seq); err != nil {
		return fmt.Errorf("read event seq: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO events(run_id, seq, ts, type, message) VALUES(?, ?, ?, ?, ?)`,
		runID, seq+1, ts, typ, message); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func orNow(value, now string) string {
	if value == "" {
		return now
	}
	return value
}
