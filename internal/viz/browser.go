package viz

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/numlab/internal/report"
	"github.com/san-kum/numlab/internal/storage"
)

// Source is the part of the run store the browser reads.
type Source interface {
	List() ([]storage.Run, error)
	LoadSeries(id, name string) ([][]float64, error)
}

const (
	stateList = iota
	stateDetail
)

type Browser struct {
	src    Source
	runs   []storage.Run
	state  int
	cursor int

	series    []string
	seriesIdx int
	rows      [][]float64
	err       error

	width, height int
}

func NewBrowser(src Source) (*Browser, error) {
	runs, err := src.List()
	if err != nil {
		return nil, err
	}
	return &Browser{src: src, runs: runs, width: 80, height: 24}, nil
}

// Run starts the browser on the alternate screen.
func Run(src Source) error {
	b, err := NewBrowser(src)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(b, tea.WithAltScreen()).Run()
	return err
}

func (b *Browser) Init() tea.Cmd { return nil }

func (b *Browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return b.handleKey(msg)
	case tea.WindowSizeMsg:
		b.width, b.height = msg.Width, msg.Height
	}
	return b, nil
}

func (b *Browser) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return b, tea.Quit
	}

	switch b.state {
	case stateList:
		switch msg.String() {
		case "up", "k":
			if b.cursor > 0 {
				b.cursor--
			}
		case "down", "j":
			if b.cursor < len(b.runs)-1 {
				b.cursor++
			}
		case "enter":
			if len(b.runs) > 0 {
				b.open()
			}
		}
	case stateDetail:
		switch msg.String() {
		case "esc", "backspace":
			b.state = stateList
		case "tab":
			if len(b.series) > 0 {
				b.seriesIdx = (b.seriesIdx + 1) % len(b.series)
				b.load()
			}
		}
	}
	return b, nil
}

func (b *Browser) open() {
	run := b.runs[b.cursor]
	b.series = b.series[:0]
	for name := range run.Series {
		b.series = append(b.series, name)
	}
	sort.Strings(b.series)
	b.seriesIdx = 0
	b.state = stateDetail
	b.load()
}

func (b *Browser) load() {
	b.rows, b.err = nil, nil
	if len(b.series) == 0 {
		return
	}
	b.rows, b.err = b.src.LoadSeries(b.runs[b.cursor].ID, b.series[b.seriesIdx])
}

// Selected is the run under the cursor, or nil when there are none.
func (b *Browser) Selected() *storage.Run {
	if len(b.runs) == 0 {
		return nil
	}
	return &b.runs[b.cursor]
}

// Series is the name of the series shown in the detail view.
func (b *Browser) Series() string {
	if len(b.series) == 0 {
		return ""
	}
	return b.series[b.seriesIdx]
}

func (b *Browser) View() string {
	if b.state == stateDetail {
		return b.detailView()
	}
	return b.listView()
}

func (b *Browser) listView() string {
	var s strings.Builder
	s.WriteString(HeaderStyle.Render("numlab runs") + "\n\n")
	if len(b.runs) == 0 {
		s.WriteString(Subtle.Render("no runs stored yet, try: numlab run linear") + "\n")
	}

	visible := b.height - 6
	if visible < 1 {
		visible = 1
	}
	start := 0
	if b.cursor >= visible {
		start = b.cursor - visible + 1
	}
	for i := start; i < len(b.runs) && i < start+visible; i++ {
		r := b.runs[i]
		line := fmt.Sprintf("%-8s  %-12s %-12s %-18s %s",
			shortID(r.ID), r.Name, r.Kind, statusStyle(r.Status).Render(r.Status), r.CreatedAt.Local().Format("2006-01-02 15:04"))
		if i == b.cursor {
			s.WriteString(Selected.Render("> "+line) + "\n")
		} else {
			s.WriteString("  " + line + "\n")
		}
	}
	s.WriteString("\n" + KeyHint.Render("j/k move • enter open • q quit"))
	return s.String()
}

func (b *Browser) detailView() string {
	run := b.runs[b.cursor]
	card := report.Card{
		ID:       shortID(run.ID),
		Name:     run.Name,
		Kind:     run.Kind,
		Method:   run.Method,
		Status:   run.Status,
		Steps:    run.Steps,
		Summary:  run.Summary,
		Warnings: run.WarningCounts(),
		Err:      run.Err,
	}

	var s strings.Builder
	s.WriteString(card.Render() + "\n\n")

	width := b.width - 12
	if width < 20 {
		width = 20
	}
	switch {
	case len(b.series) == 0:
		s.WriteString(Subtle.Render("no series stored") + "\n")
	case b.err != nil:
		s.WriteString(StatusFail.Render(b.err.Error()) + "\n")
	default:
		var values []float64
		if len(b.rows) > 0 {
			col := 0
			if len(b.rows[0]) > 1 {
				col = 1
			}
			values = report.Column(b.rows, col)
		}
		s.WriteString(Title.Render(b.Series()) + Subtle.Render(fmt.Sprintf("  (%d/%d, %d points)", b.seriesIdx+1, len(b.series), len(b.rows))) + "\n")
		s.WriteString(report.ASCIIPlot(values, "", width, 10) + "\n")
		s.WriteString(SparklineChart(values, width) + "\n")
	}
	s.WriteString("\n" + Separator(width) + "\n")
	s.WriteString(KeyHint.Render("tab next series • esc back • q quit"))
	return s.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
