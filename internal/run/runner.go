package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/metalagman/tclink/internal/document"
	"github.com/metalagman/tclink/internal/linkage"
	"github.com/metalagman/tclink/internal/reconcile"
	"github.com/metalagman/tclink/internal/report"
	"github.com/rs/zerolog/log"
)

// Runner links documents and records each attempt as a run.
type Runner struct {
	store    *Store
	resolver Resolver
	stateDir string
	workers  int
}

// NewRunner constructs a Runner. stateDir holds locks and run directories.
func NewRunner(store *Store, resolver Resolver, stateDir string, workers int) *Runner {
	return &Runner{
		store:    store,
		resolver: resolver,
		stateDir: stateDir,
		workers:  workers,
	}
}

// Request is a single link run.
type Request struct {
	Document *document.Document
	// Input names where the document came from, for the audit trail.
	Input string
	// Commit, when set, persists the linked document while the run lock is
	// still held. A Commit error fails the run.
	Commit func(doc *document.Document) error
}

// Result summarizes a completed run.
type Result struct {
	RunID  string
	Status string
	Report report.Report
}

// RunsDir returns the directory holding run artifacts.
func (r *Runner) RunsDir() string {
	return filepath.Join(r.stateDir, "runs")
}

// Run links the request document and records the outcome.
func (r *Runner) Run(ctx context.Context, req Request) (res Result, err error) {
	if req.Document == nil {
		return Result{}, errors.New("document is required")
	}
	startedAt := time.Now().UTC()
	defer func() {
		if res.RunID == "" {
			return
		}
		event := log.Info().
			Str("run_id", res.RunID).
			Str("status", res.Status).
			Int("auto_linked", res.Report.Summary.AutoLinked).
			Dur("duration", time.Since(startedAt))
		if err != nil {
			event = event.Err(err)
		}
		event.Msg("link run finished")
	}()

	lock, err := AcquireRunLock(r.stateDir)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = lock.Release() }()

	if err := reconcile.Run(ctx, r.store.DB(), r.RunsDir()); err != nil {
		return Result{}, err
	}

	runID := uuid.NewString()
	runDir := filepath.Join(r.RunsDir(), runID)
	if err := r.store.CreateRun(ctx, runID, req.Input, runDir); err != nil {
		return Result{}, err
	}
	res = Result{RunID: runID, Status: StatusRunning}

	ids, source, err := r.resolver.Resolve(ctx, req.Document)
	if err != nil {
		res.Status = StatusFailed
		return res, r.fail(ctx, runID, source, err)
	}
	log.Debug().Str("run_id", runID).Str("source", source).Int("known_ac_ids", len(ids)).Msg("acceptance criteria resolved")

	linked, err := linkage.LinkConcurrent(ctx, req.Document.TestCases, ids, r.workers)
	if err != nil {
		res.Status = StatusFailed
		return res, r.fail(ctx, runID, source, err)
	}

	rep := report.Build(req.Document.TestCases, linked)
	rep.RunID = runID
	rep.RunDir = runDir
	rep.Input = req.Input
	rep.Source = source
	rep.StartedAtUTC = startedAt.Format(time.RFC3339)
	rep.FinishedAtUTC = time.Now().UTC().Format(time.RFC3339)
	res.Report = rep
	reportPath := filepath.Join(runDir, report.FileName)
	if err := rep.Save(reportPath); err != nil {
		res.Status = StatusFailed
		return res, r.fail(ctx, runID, source, err)
	}

	if req.Commit != nil {
		if err := req.Commit(req.Document); err != nil {
			// reconcile treats report.json as a completed run.
			_ = os.Remove(reportPath)
			res.Status = StatusFailed
			return res, r.fail(ctx, runID, source, fmt.Errorf("write output: %w", err))
		}
	}

	events := make([]Event, 0, len(linked.AutoLinked)+1)
	for _, idx := range linked.AutoLinked {
		data, err := json.Marshal(map[string]any{
			"index":   idx,
			"case_id": req.Document.TestCases[idx].ID(),
			"ac_id":   linked.DefaultID,
		})
		if err != nil {
			return res, fmt.Errorf("marshal event data: %w", err)
		}
		events = append(events, Event{Type: "auto_linked", Message: linkage.AutoLinkNote, DataJSON: string(data)})
	}
	events = append(events, Event{
		Type:    "run_finished",
		Message: fmt.Sprintf("linked %d of %d test cases", len(linked.AutoLinked), linked.Total),
	})
	if err := r.store.FinishRun(ctx, runID, Update{
		Status:      StatusSucceeded,
		Source:      source,
		Total:       linked.Total,
		AutoLinked:  len(linked.AutoLinked),
		DefaultACID: linked.DefaultID,
	}, events); err != nil {
		return res, err
	}
	res.Status = StatusSucceeded
	return res, nil
}

// fail records a failed run and returns cause annotated with the run id.
// The run is finished with a fresh context so cancellation still leaves a record.
func (r *Runner) fail(ctx context.Context, runID, source string, cause error) error {
	update := Update{Status: StatusFailed, Source: source, Error: cause.Error()}
	event := Event{Type: "run_failed", Message: cause.Error()}
	if err := r.store.FinishRun(context.WithoutCancel(ctx), runID, update, []Event{event}); err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("record failed run")
	}
	return fmt.Errorf("link run %s: %w", runID, cause)
}
