package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/guptarohit/asciigraph"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Line is one curve of a chart, drawn from columns XCol and YCol of Rows.
type Line struct {
	Label string
	Rows  [][]float64
	XCol  int
	YCol  int
}

func (l Line) points() (plotter.XYs, error) {
	pts := make(plotter.XYs, 0, len(l.Rows))
	for _, row := range l.Rows {
		if l.XCol >= len(row) || l.YCol >= len(row) {
			return nil, fmt.Errorf("line %s: row has %d columns", l.Label, len(row))
		}
		pts = append(pts, plotter.XY{X: row[l.XCol], Y: row[l.YCol]})
	}
	return pts, nil
}

// SavePNG renders lines into an 8x6 inch image. The format follows the
// extension of path.
func SavePNG(path, title, xlabel, ylabel string, lines ...Line) error {
	if len(lines) == 0 {
		return fmt.Errorf("nothing to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	for i, l := range lines {
		pts, err := l.points()
		if err != nil {
			return err
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = plotutil.Color(i)
		p.Add(line)
		if l.Label != "" {
			p.Legend.Add(l.Label, line)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 6*vg.Inch, path)
}

// ASCIIPlot renders values as a terminal line chart.
func ASCIIPlot(values []float64, caption string, width, height int) string {
	if len(values) == 0 {
		return ""
	}
	return asciigraph.Plot(values,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}
