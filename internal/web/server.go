// Package web provides a read-only web UI for the catalog and link runs.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/metalagman/tclink/internal/catalog"
	"github.com/metalagman/tclink/internal/run"
	"github.com/rs/zerolog/log"
)

const recentRuns = 20

// CriteriaLister lists known acceptance criteria.
type CriteriaLister interface {
	List(ctx context.Context) ([]catalog.Criterion, error)
}

// RunReader reads link runs and their events.
type RunReader interface {
	ListRuns(ctx context.Context, limit int) ([]run.Record, error)
	GetRun(ctx context.Context, runID string) (run.Record, error)
	Events(ctx context.Context, runID string) ([]run.EventRecord, error)
}

// Server provides the web UI handlers.
type Server struct {
	criteria CriteriaLister
	runs     RunReader
	index    *template.Template
}

//go:embed templates/*.html
var templatesFS embed.FS

// NewServer creates a new web server.
func NewServer(criteria CriteriaLister, runs RunReader) (*Server, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		return nil, err
	}
	return &Server{criteria: criteria, runs: runs, index: tmpl}, nil
}

// Routes returns the router for the web UI.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /runs/{id}", s.handleRun)
	return mux
}

type indexData struct {
	Criteria []catalog.Criterion
	Runs     []run.Record
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	criteria, err := s.criteria.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	runs, err := s.runs.ListRuns(r.Context(), recentRuns)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.index.Execute(w, indexData{Criteria: criteria, Runs: runs}); err != nil {
		log.Error().Err(err).Msg("render index")
	}
}

type runResponse struct {
	Run    run.Record        `json:"run"`
	Events []run.EventRecord `json:"events"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, run.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	events, err := s.runs.Events(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []run.EventRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(runResponse{Run: rec, Events: events}); err != nil {
		log.Error().Err(err).Str("run_id", id).Msg("encode run")
	}
}
