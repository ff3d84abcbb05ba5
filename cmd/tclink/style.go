package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Width(12)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

type linkSummary struct {
	RunID       string
	Source      string
	DefaultACID string
	Total       int
	AutoLinked  int
}

func renderSummary(s linkSummary) string {
	rows := make([]string, 0, 5)
	if s.RunID != "" {
		rows = append(rows, summaryRow("run", dimStyle.Render(s.RunID)))
	}
	rows = append(rows, summaryRow("test cases", fmt.Sprintf("%d", s.Total)))

	linked := okStyle.Render("0")
	if s.AutoLinked > 0 {
		linked = warnStyle.Render(fmt.Sprintf("%d", s.AutoLinked))
	}
	rows = append(rows, summaryRow("auto-linked", linked))
	if s.DefaultACID != "" {
		rows = append(rows, summaryRow("default", s.DefaultACID))
	}
	rows = append(rows, summaryRow("ids from", s.Source))
	return lipgloss.JoinVertical(lipgloss.Left, rows...) + "\n"
}

func summaryRow(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}
