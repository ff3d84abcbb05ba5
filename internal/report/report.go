// Package report describes the outcome of a link run.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/metalagman/tclink/internal/linkage"
)

// Case statuses.
const (
	StatusAutoLinked = "auto_linked"
	StatusUnchanged  = "unchanged"
)

// FileName is the report file written into each run directory.
const FileName = "report.json"

// Report is the persisted summary of a link run.
type Report struct {
	RunID         string       `json:"run_id"`
	RunDir        string       `json:"run_dir,omitempty"`
	StartedAtUTC  string       `json:"started_at_utc"`
	FinishedAtUTC string       `json:"finished_at_utc"`
	Input         string       `json:"input,omitempty"`
	Source        string       `json:"source"`
	DefaultACID   string       `json:"default_ac_id"`
	Summary       Summary      `json:"summary"`
	Results       []CaseResult `json:"results"`
}

// Summary counts test cases by outcome.
type Summary struct {
	Total      int `json:"total"`
	AutoLinked int `json:"auto_linked"`
	Unchanged  int `json:"unchanged"`
}

// CaseResult is the outcome for one test case.
type CaseResult struct {
	Index                    int      `json:"index"`
	CaseID                   string   `json:"case_id,omitempty"`
	Status                   string   `json:"status"`
	LinkedAcceptanceCriteria []string `json:"linked_acceptance_criteria"`
}

// Build assembles a report from linked test cases and the link result.
func Build(cases []*linkage.TestCase, res linkage.Result) Report {
	auto := make(map[int]bool, len(res.AutoLinked))
	for _, idx := range res.AutoLinked {
		auto[idx] = true
	}
	r := Report{
		DefaultACID: res.DefaultID,
		Summary: Summary{
			Total:      res.Total,
			AutoLinked: len(res.AutoLinked),
			Unchanged:  res.Unchanged(),
		},
		Results: make([]CaseResult, 0, len(cases)),
	}
	for i, tc := range cases {
		status := StatusUnchanged
		if auto[i] {
			status = StatusAutoLinked
		}
		r.Results = append(r.Results, CaseResult{
			Index:                    i,
			CaseID:                   tc.ID(),
			Status:                   status,
			LinkedAcceptanceCriteria: append([]string(nil), tc.LinkedAcceptanceCriteria...),
		})
	}
	return r
}

// Save writes the report as indented JSON, creating parent directories.
func (r Report) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Load reads a report written by Save.
func Load(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("parse report: %w", err)
	}
	return r, nil
}

// Markdown renders the report as a markdown document.
func (r Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Link run %s\n\n", r.RunID)
	fmt.Fprintf(&b, "- Started: %s\n", r.StartedAtUTC)
	fmt.Fprintf(&b, "- Finished: %s\n", r.FinishedAtUTC)
	if r.Input != "" {
		fmt.Fprintf(&b, "- Input: `%s`\n", r.Input)
	}
	fmt.Fprintf(&b, "- Acceptance criteria source: %s\n", r.Source)
	fmt.Fprintf(&b, "- Default acceptance criterion: `%s`\n\n", r.DefaultACID)

	b.WriteString("## Summary\n\n")
	b.WriteString("| Total | Auto-linked | Unchanged |\n|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| %d | %d | %d |\n\n", r.Summary.Total, r.Summary.AutoLinked, r.Summary.Unchanged)

	if r.Summary.AutoLinked == 0 {
		b.WriteString("Every test case already referenced an acceptance criterion.\n")
		return b.String()
	}
	b.WriteString("## Auto-linked test cases\n\n")
	b.WriteString("| # | Test case | Linked |\n|---:|---|---|\n")
	for _, res := range r.Results {
		if res.Status != StatusAutoLinked {
			continue
		}
		caseID := res.CaseID
		if caseID == "" {
			caseID = "-"
		}
		fmt.Fprintf(&b, "| %d | %s | %s |\n", res.Index, caseID, strings.Join(res.LinkedAcceptanceCriteria, ", "))
	}
	return b.String()
}

// Render formats markdown for a terminal of the given width.
func Render(md string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}
