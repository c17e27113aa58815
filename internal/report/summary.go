package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444466")).
		Padding(0, 2)

	title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00ffff"))

	label = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888899")).
		Width(20)

	value = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#00ccff")).
		Bold(true)

	statusOK   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff88"))
	statusWarn = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffaa00"))
	statusFail = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff4444"))
)

// Grade maps an error or relative variation onto the precision scale.
func Grade(v float64) string {
	switch {
	case v < 1e-3:
		return "excellent"
	case v < 1e-2:
		return "good"
	case v < 1e-1:
		return "acceptable"
	}
	return "poor"
}

func gradeStyle(g string) lipgloss.Style {
	switch g {
	case "excellent", "good":
		return statusOK
	case "acceptable":
		return statusWarn
	}
	return statusFail
}

// Card is the terminal summary of one run.
type Card struct {
	ID       string
	Name     string
	Kind     string
	Method   string
	Status   string
	Steps    int
	Summary  map[string]float64
	Warnings map[string]int
	Err      string
}

func (c Card) statusStyle() lipgloss.Style {
	switch c.Status {
	case "completed", "converged":
		return statusOK
	case "diverged", "max_iter_exceeded":
		return statusWarn
	}
	return statusFail
}

func row(k, v string) string {
	return label.Render(k) + value.Render(v)
}

// Grades lists the precision grades the summary values support.
func (c Card) Grades() map[string]string {
	out := make(map[string]string)
	if v, ok := c.Summary["max_error"]; ok {
		out["precision"] = Grade(v)
	}
	if v, ok := c.Summary["invariant_variation"]; ok {
		out["conservation"] = Grade(v)
	}
	if v, ok := c.Summary["residual"]; ok {
		out["residual"] = Grade(v)
	}
	return out
}

func (c Card) Render() string {
	var b strings.Builder
	heading := c.Name
	if c.ID != "" {
		heading += "  " + c.ID
	}
	b.WriteString(title.Render(heading) + "\n\n")
	b.WriteString(row("kind", c.Kind) + "\n")
	if c.Method != "" {
		b.WriteString(row("method", c.Method) + "\n")
	}
	b.WriteString(label.Render("status") + c.statusStyle().Render(c.Status) + "\n")
	b.WriteString(row("steps", fmt.Sprintf("%d", c.Steps)) + "\n")

	keys := make([]string, 0, len(c.Summary))
	for k := range c.Summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(row(k, fmt.Sprintf("%.6g", c.Summary[k])) + "\n")
	}

	grades := c.Grades()
	gkeys := make([]string, 0, len(grades))
	for k := range grades {
		gkeys = append(gkeys, k)
	}
	sort.Strings(gkeys)
	for _, k := range gkeys {
		g := grades[k]
		b.WriteString(label.Render(k) + gradeStyle(g).Render(g) + "\n")
	}

	if len(c.Warnings) > 0 {
		kinds := make([]string, 0, len(c.Warnings))
		for k := range c.Warnings {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		b.WriteString("\n")
		for _, k := range kinds {
			b.WriteString(label.Render("warning") + statusWarn.Render(fmt.Sprintf("%s x%d", k, c.Warnings[k])) + "\n")
		}
	}
	if c.Err != "" {
		b.WriteString("\n" + statusFail.Render(c.Err) + "\n")
	}
	return panel.Render(strings.TrimRight(b.String(), "\n"))
}
