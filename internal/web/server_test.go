package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/metalagman/tclink/internal/catalog"
	"github.com/metalagman/tclink/internal/db"
	"github.com/metalagman/tclink/internal/run"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *catalog.Store, *run.Store) {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "tclink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	cat := catalog.NewStore(conn)
	runs := run.NewStore(conn)
	srv, err := NewServer(cat, runs)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, cat, runs
}

func TestIndex_ListsCriteriaAndRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ts, cat, runs := newTestServer(t)
	_, err := cat.Add(ctx, "AC-LOGIN", "user can log in")
	require.NoError(t, err)
	require.NoError(t, runs.CreateRun(ctx, "run-1", "cases.json", ""))

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	page := string(body)
	assert.Contains(t, page, "AC-LOGIN")
	assert.Contains(t, page, "(default)")
	assert.Contains(t, page, "/runs/run-1")
}

func TestRun_ReturnsRunAndEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ts, _, runs := newTestServer(t)
	require.NoError(t, runs.CreateRun(ctx, "run-1", "cases.json", ""))

	resp, err := http.Get(ts.URL + "/runs/run-1")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got runResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "run-1", got.Run.RunID)
	require.Len(t, got.Events, 1)
	assert.Equal(t, "run_started", got.Events[0].Type)
}

func TestRun_NotFound(t *testing.T) {
	t.Parallel()

	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/runs/missing")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
