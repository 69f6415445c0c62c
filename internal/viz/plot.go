package viz

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"gonum.org/v1/plot/vg/vgsvg"

	"github.com/san-kum/phytosim/internal/analysis"
	"github.com/san-kum/phytosim/internal/sim"
)

const (
	FigureWidth  = 8 * vg.Inch
	FigureHeight = 6 * vg.Inch
	FigureDPI    = 300
)

func limitedTicker(maxLabels int, labelFmt string) plot.Ticker {
	if maxLabels < 2 {
		maxLabels = 2
	}
	return plot.TickerFunc(func(min, max float64) []plot.Tick {
		if math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0) {
			return nil
		}
		if min == max {
			return []plot.Tick{{Value: min, Label: fmt.Sprintf(labelFmt, min)}}
		}
		step := (max - min) / float64(maxLabels-1)
		ticks := make([]plot.Tick, 0, maxLabels)
		for i := 0; i < maxLabels; i++ {
			v := min + float64(i)*step
			ticks = append(ticks, plot.Tick{Value: v, Label: fmt.Sprintf(labelFmt, v)})
		}
		return ticks
	})
}

func stylePlot(p *plot.Plot) {
	p.Title.TextStyle.Font.Size = vg.Points(18)
	p.Title.Padding = vg.Points(10)
	p.X.Label.TextStyle.Font.Size = vg.Points(14)
	p.Y.Label.TextStyle.Font.Size = vg.Points(14)
	p.X.Tick.Label.Font.Size = vg.Points(11)
	p.Y.Tick.Label.Font.Size = vg.Points(11)
	p.X.Tick.Marker = limitedTicker(9, "%.3g")
	p.Y.Tick.Marker = limitedTicker(7, "%.3g")
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
}

// points pairs xs with ys, dropping samples that are not finite.
func points(xs, ys []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(xs))
	for i := range xs {
		if math.IsNaN(ys[i]) || math.IsInf(ys[i], 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: xs[i], Y: ys[i]})
	}
	return pts
}

// TrajectoryPlot draws the named columns against time, one line each.
// Dilution events show as vertical drops because both samples share t.
func TrajectoryPlot(tr *sim.Trajectory, title string, columns []string) (*plot.Plot, error) {
	if tr == nil || tr.Len() == 0 {
		return nil, fmt.Errorf("viz: no data to plot")
	}
	if len(columns) == 0 {
		columns = DefaultColumns
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time"
	p.Y.Label.Text = strings.Join(columns, ", ")
	stylePlot(p)

	ts := tr.Column("t")
	for i, name := range columns {
		data, err := Series(tr, name)
		if err != nil {
			return nil, err
		}
		pts := points(ts, data)
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("viz: %s: %w", name, err)
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(caption(name), line)
	}
	return p, nil
}

// SweepPlot draws simulated steady density next to the closed-form
// equilibrium across dilution rates.
func SweepPlot(pts []analysis.SweepPoint) (*plot.Plot, error) {
	if len(pts) == 0 {
		return nil, fmt.Errorf("viz: empty sweep")
	}
	p := plot.New()
	p.Title.Text = "chemostat steady state"
	p.X.Label.Text = "dilution rate d"
	p.Y.Label.Text = "X"
	stylePlot(p)

	simulated := make(plotter.XYs, len(pts))
	closed := make(plotter.XYs, len(pts))
	for i, sp := range pts {
		simulated[i] = plotter.XY{X: sp.D, Y: sp.Final.X}
		closed[i] = plotter.XY{X: sp.D, Y: sp.Equilibrium.X}
	}

	line, err := plotter.NewLine(closed)
	if err != nil {
		return nil, err
	}
	line.LineStyle.Width = vg.Points(1.5)
	line.LineStyle.Color = plotutil.Color(0)

	scatter, err := plotter.NewScatter(simulated)
	if err != nil {
		return nil, err
	}
	scatter.GlyphStyle.Color = plotutil.Color(1)
	scatter.GlyphStyle.Radius = vg.Points(3)

	p.Add(line, scatter)
	p.Legend.Add("closed form", line)
	p.Legend.Add("simulated", scatter)
	return p, nil
}

// Render writes p as "png" or "svg".
func Render(w io.Writer, p *plot.Plot, format string) error {
	var wt io.WriterTo
	switch format {
	case "png":
		c := vgimg.NewWith(vgimg.UseWH(FigureWidth, FigureHeight), vgimg.UseDPI(FigureDPI))
		p.Draw(draw.New(c))
		wt = vgimg.PngCanvas{Canvas: c}
	case "svg":
		c := vgsvg.New(FigureWidth, FigureHeight)
		p.Draw(draw.New(c))
		wt = c
	default:
		return fmt.Errorf("viz: unsupported figure format %q", format)
	}
	_, err := wt.WriteTo(w)
	return err
}

// SavePlot writes p to path, choosing PNG or SVG from the extension.
func SavePlot(p *plot.Plot, path string) error {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format != "png" && format != "svg" {
		return fmt.Errorf("viz: unsupported figure extension %q", filepath.Ext(path))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if err := Render(bw, p, format); err != nil {
		return err
	}
	return bw.Flush()
}
