package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/phytosim/internal/analysis"
	"github.com/san-kum/phytosim/internal/sim"
)

const (
	DefaultWidth  = 80
	DefaultHeight = 10
)

// DefaultColumns are the series the CLI plots when none are named.
var DefaultColumns = []string{"R", "Q", "X", "dilution"}

var captions = map[string]string{
	"R":        "R (free resource)",
	"Q":        "Q (cell quota)",
	"X":        "X (density)",
	"log10X":   "log10 X",
	"rho":      "rho (uptake)",
	"mu":       "mu (growth rate)",
	"mass":     "R + QX (total resource)",
	"dilution": "d (dilution rate)",
}

// Series returns the named column of a trajectory. log10X is accepted in
// addition to the columns sim.Trajectory knows; non-positive densities come
// back as NaN and are left as gaps.
func Series(tr *sim.Trajectory, name string) ([]float64, error) {
	if name == "log10X" {
		data, _ := tr.Log10X()
		return data, nil
	}
	data := tr.Column(name)
	if data == nil {
		return nil, fmt.Errorf("viz: unknown column %q", name)
	}
	return data, nil
}

// ASCII renders one terminal graph per column.
func ASCII(tr *sim.Trajectory, columns []string, width, height int) (string, error) {
	if tr == nil || tr.Len() == 0 {
		return "", fmt.Errorf("viz: no data to plot")
	}
	if len(columns) == 0 {
		columns = DefaultColumns
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	var b strings.Builder
	for _, name := range columns {
		data, err := Series(tr, name)
		if err != nil {
			return "", err
		}
		if !hasFinite(data) {
			fmt.Fprintf(&b, "%s: no finite samples\n\n", caption(name))
			continue
		}
		b.WriteString(asciigraph.Plot(data,
			asciigraph.Height(height),
			asciigraph.Width(width),
			asciigraph.Caption(caption(name)),
		))
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

// SweepASCII plots simulated and closed-form steady densities against the
// dilution rate.
func SweepASCII(points []analysis.SweepPoint, width, height int) (string, error) {
	if len(points) < 2 {
		return "", fmt.Errorf("viz: sweep needs at least 2 points")
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	simulated := make([]float64, len(points))
	closed := make([]float64, len(points))
	for i, p := range points {
		simulated[i] = p.Final.X
		closed[i] = p.Equilibrium.X
	}
	c := fmt.Sprintf("X* vs d  [%.3g .. %.3g]  simulated (top) / closed form (bottom)",
		points[0].D, points[len(points)-1].D)
	top := asciigraph.Plot(simulated, asciigraph.Height(height), asciigraph.Width(width))
	bottom := asciigraph.Plot(closed, asciigraph.Height(height), asciigraph.Width(width), asciigraph.Caption(c))
	return top + "\n\n" + bottom + "\n", nil
}

func caption(name string) string {
	if c, ok := captions[name]; ok {
		return c
	}
	return name
}

func hasFinite(data []float64) bool {
	for _, v := range data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
