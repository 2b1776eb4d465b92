package main

import (
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/cluso-threatgraph/pkg/graph"
	"github.com/dd0wney/cluso-threatgraph/pkg/health"
	"github.com/dd0wney/cluso-threatgraph/pkg/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Width(22)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)
)

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

// renderReport formats a finished run for the terminal.
func renderReport(r *pipeline.Report) string {
	rows := []string{
		titleStyle.Render("Threat graph loaded"),
		"",
		row("run", r.RunID),
		row("duration", r.Duration.Round(time.Millisecond).String()),
		row("flows", strconv.Itoa(r.Flows)),
		row("enrichments", strconv.Itoa(r.Enrichments)),
	}
	if r.Anomalies > 0 {
		rows = append(rows, row("skipped objects", errorStyle.Render(strconv.Itoa(r.Anomalies))))
	}

	rows = append(rows, "")
	for _, kind := range graph.Kinds() {
		if n := r.Graph.Nodes[kind]; n > 0 {
			rows = append(rows, row(kind.Label()+" nodes", strconv.Itoa(n)))
		}
	}
	rows = append(rows,
		row("relationships", strconv.Itoa(r.Graph.Relationships)),
		"",
		row("nodes written", strconv.Itoa(r.Load.Nodes)),
		row("relationships written", strconv.Itoa(r.Load.Relationships)),
		row("nodes relabeled", strconv.Itoa(r.Load.Relabeled)),
	)
	if r.Archive != "" {
		rows = append(rows, row("archive", r.Archive))
	}

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// renderHealth formats availability check results in check order.
func renderHealth(resp *health.Response) string {
	rows := []string{titleStyle.Render("Availability"), ""}
	for _, name := range resp.Order {
		c := resp.Checks[name]
		status := successStyle.Render(string(c.Status))
		if c.Status != health.StatusHealthy {
			status = errorStyle.Render(string(c.Status))
		}
		line := row(name, status)
		if c.Message != "" {
			line += "  " + c.Message
		}
		rows = append(rows, line)
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
