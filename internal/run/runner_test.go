package run

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/metalagman/tclink/internal/catalog"
	"github.com/metalagman/tclink/internal/document"
	"github.com/metalagman/tclink/internal/linkage"
	"github.com/metalagman/tclink/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeDoc(t *testing.T, raw string) *document.Document {
	t.Helper()
	doc, err := document.Decode(strings.NewReader(raw), document.JSON)
	require.NoError(t, err)
	return doc
}

func TestRunner_Run_UsesCatalog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stateDir := t.TempDir()
	s := newTestStore(t)
	cat := catalog.NewStore(s.DB())
	_, err := cat.Import(ctx, []catalog.Criterion{{ID: "AC-1"}, {ID: "AC-2"}})
	require.NoError(t, err)

	runner := NewRunner(s, Resolver{Catalog: cat}, stateDir, 2)
	doc := decodeDoc(t, `{"test_cases": [{"id": "TC-1"}, {"id": "TC-2", "linked_acceptance_criteria": ["AC-2"]}]}`)

	res, err := runner.Run(ctx, Request{Document: doc, Input: "cases.json"})
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, []string{"AC-1"}, doc.TestCases[0].LinkedAcceptanceCriteria)
	assert.Equal(t, []string{linkage.AutoLinkNote}, doc.TestCases[0].Notes)
	assert.Equal(t, []string{"AC-2"}, doc.TestCases[1].LinkedAcceptanceCriteria)

	rec, err := s.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, SourceCatalog, rec.Source)
	assert.Equal(t, 2, rec.Total)
	assert.Equal(t, 1, rec.AutoLinked)
	assert.Equal(t, "AC-1", rec.DefaultACID)

	events, err := s.Events(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "auto_linked", events[1].Type)
	assert.Contains(t, events[1].DataJSON, `"case_id":"TC-1"`)

	saved, err := report.Load(filepath.Join(stateDir, "runs", res.RunID, report.FileName))
	require.NoError(t, err)
	assert.Equal(t, res.Report, saved)
	assert.Equal(t, report.Summary{Total: 2, AutoLinked: 1, Unchanged: 1}, saved.Summary)
}

func TestRunner_Run_EmptyInputRecordsFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	runner := NewRunner(s, Resolver{}, t.TempDir(), 1)
	doc := decodeDoc(t, `{"test_cases": [{}]}`)

	res, err := runner.Run(ctx, Request{Document: doc})
	require.ErrorIs(t, err, linkage.ErrEmptyInput)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Nil(t, doc.TestCases[0].LinkedAcceptanceCriteria)
	assert.Nil(t, doc.TestCases[0].Notes)

	rec, err := s.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, SourceNone, rec.Source)
	assert.Contains(t, rec.Error, "empty")
}

func TestRunner_Run_CommitErrorFailsRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	stateDir := t.TempDir()
	runner := NewRunner(s, Resolver{Flags: []string{"AC-1"}}, stateDir, 1)
	doc := decodeDoc(t, `{"test_cases": [{}]}`)
	disk := errors.New("disk full")

	res, err := runner.Run(ctx, Request{
		Document: doc,
		Commit:   func(*document.Document) error { return disk },
	})
	require.ErrorIs(t, err, disk)

	status, err := s.GetRunStatus(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, status)

	_, err = os.Stat(filepath.Join(stateDir, "runs", res.RunID, report.FileName))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunner_Run_ReportSavedBeforeCommit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	stateDir := t.TempDir()
	runner := NewRunner(s, Resolver{Flags: []string{"AC-3"}}, stateDir, 1)
	doc := decodeDoc(t, `{"test_cases": [{"id": "TC-1"}]}`)

	var seen []report.Report
	res, err := runner.Run(ctx, Request{
		Document: doc,
		Commit: func(*document.Document) error {
			paths, err := filepath.Glob(filepath.Join(stateDir, "runs", "*", report.FileName))
			if err != nil {
				return err
			}
			for _, p := range paths {
				rep, err := report.Load(p)
				if err != nil {
					return err
				}
				seen = append(seen, rep)
			}
			return nil
		},
	})
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, res.RunID, seen[0].RunID)
	assert.Equal(t, 1, seen[0].Summary.AutoLinked)
}

func TestRunner_Run_CommitSeesLinkedDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	stateDir := t.TempDir()
	out := filepath.Join(t.TempDir(), "out.json")
	runner := NewRunner(s, Resolver{Flags: []string{"AC-5"}}, stateDir, 1)
	doc := decodeDoc(t, `{"test_cases": [{"id": "TC-1"}]}`)

	_, err := runner.Run(ctx, Request{
		Document: doc,
		Commit: func(d *document.Document) error {
			return document.WriteFile(out, d, document.JSON)
		},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "AC-5")
}

func TestRunner_Run_AbandonsStaleRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateRun(ctx, "stale", "", ""))

	runner := NewRunner(s, Resolver{Flags: []string{"AC-1"}}, t.TempDir(), 1)
	_, err := runner.Run(ctx, Request{Document: decodeDoc(t, `{"test_cases": []}`)})
	require.NoError(t, err)

	status, err := s.GetRunStatus(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, StatusAbandoned, status)
}

func TestRunner_Run_RequiresDocument(t *testing.T) {
	t.Parallel()

	runner := NewRunner(newTestStore(t), Resolver{}, t.TempDir(), 1)
	_, err := runner.Run(context.Background(), Request{})
	require.Error(t, err)
}
