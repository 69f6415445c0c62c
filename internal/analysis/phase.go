package analysis

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/phytosim/internal/sim"
)

// PhasePortrait2D holds two trajectory columns plotted against each other.
type PhasePortrait2D struct {
	XName, YName string
	Points       []struct{ X, Y float64 }
}

// PhasePortrait pairs two trajectory columns, e.g. ("Q", "X"). Dilution
// boundaries show up as jumps between consecutive points.
func PhasePortrait(tr *sim.Trajectory, xName, yName string) (*PhasePortrait2D, error) {
	xs := tr.Column(xName)
	if xs == nil {
		return nil, fmt.Errorf("analysis: unknown column %q", xName)
	}
	ys := tr.Column(yName)
	if ys == nil {
		return nil, fmt.Errorf("analysis: unknown column %q", yName)
	}

	portrait := &PhasePortrait2D{
		XName:  xName,
		YName:  yName,
		Points: make([]struct{ X, Y float64 }, len(xs)),
	}
	for i := range xs {
		portrait.Points[i].X = xs[i]
		portrait.Points[i].Y = ys[i]
	}
	return portrait, nil
}

// PhasePortraitToASCII draws the portrait on a width x height character
// grid. The first sample is marked 'o' and the last '*'.
func PhasePortraitToASCII(portrait *PhasePortrait2D, width, height int) string {
	if portrait == nil || len(portrait.Points) == 0 || width < 2 || height < 2 {
		return ""
	}

	minX, maxX := portrait.Points[0].X, portrait.Points[0].X
	minY, maxY := portrait.Points[0].Y, portrait.Points[0].Y
	for _, p := range portrait.Points {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	cell := func(x, y float64) (int, int) {
		col := int((x - minX) / rangeX * float64(width-1))
		row := height - 1 - int((y-minY)/rangeY*float64(height-1))
		return row, col
	}
	for _, p := range portrait.Points {
		row, col := cell(p.X, p.Y)
		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}
	first, last := portrait.Points[0], portrait.Points[len(portrait.Points)-1]
	if row, col := cell(first.X, first.Y); row >= 0 && row < height && col >= 0 && col < width {
		canvas[row][col] = 'o'
	}
	if row, col := cell(last.X, last.Y); row >= 0 && row < height && col >= 0 && col < width {
		canvas[row][col] = '*'
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%.4g, %.4g]\n", portrait.YName, minY, maxY)
	for _, row := range canvas {
		sb.WriteString("│")
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	sb.WriteString("└" + strings.Repeat("─", width) + "\n")
	fmt.Fprintf(&sb, " %s [%.4g, %.4g]\n", portrait.XName, minX, maxX)
	return sb.String()
}
