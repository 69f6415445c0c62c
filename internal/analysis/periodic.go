package analysis

import (
	"math"

	"github.com/san-kum/phytosim/internal/control"
	"github.com/san-kum/phytosim/internal/dynamo"
	"github.com/san-kum/phytosim/internal/sim"
)

// PeriodicReport summarizes the stroboscopic section of a semi-continuous
// run: the sequence of post-dilution states.
type PeriodicReport struct {
	Cycles int       `json:"cycles"`
	Final  sim.Point `json:"final"`
	// Residual is the distance between the last two post-dilution states.
	Residual float64 `json:"residual"`
	// Ratio is the mean contraction factor per cycle; below 1 the section
	// converges geometrically.
	Ratio     float64 `json:"ratio"`
	Converged bool    `json:"converged"`
}

// PeriodicState inspects the post-dilution states of tr and reports
// whether they have settled onto a periodic steady state within tol.
func PeriodicState(tr *sim.Trajectory, tol float64) (PeriodicReport, error) {
	post := tr.PostDilution()
	if len(post) < 3 {
		return PeriodicReport{}, &dynamo.ConfigError{Field: "boundaries", Value: len(post), Reason: "need at least 3 dilutions"}
	}

	diffs := make([]float64, 0, len(post)-1)
	for i := 1; i < len(post); i++ {
		diffs = append(diffs, post[i].State().Sub(post[i-1].State()).Norm())
	}

	report := PeriodicReport{
		Cycles:   len(post),
		Final:    post[len(post)-1],
		Residual: diffs[len(diffs)-1],
	}
	report.Converged = report.Residual <= tol

	// skip leading and trailing exact zeros so the ratio stays finite
	first, last := -1, -1
	for i, d := range diffs {
		if d > 0 {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first >= 0 && last > first {
		report.Ratio = math.Pow(diffs[last]/diffs[first], 1/float64(last-first))
	}
	return report, nil
}

// BandReport counts late-time samples inside a turbidostat band.
type BandReport struct {
	Samples  int     `json:"samples"`
	Inside   int     `json:"inside"`
	Fraction float64 `json:"fraction"`
	MinX     float64 `json:"min_x"`
	MaxX     float64 `json:"max_x"`
}

// TurbidostatBand checks the samples at or after time `after` against the
// band of policy p.
func TurbidostatBand(tr *sim.Trajectory, p control.Turbidostat, after float64) BandReport {
	report := BandReport{MinX: math.Inf(1), MaxX: math.Inf(-1)}
	for _, pt := range tr.Points {
		if pt.T < after {
			continue
		}
		report.Samples++
		if p.InBand(pt.X) {
			report.Inside++
		}
		report.MinX = math.Min(report.MinX, pt.X)
		report.MaxX = math.Max(report.MaxX, pt.X)
	}
	if report.Samples > 0 {
		report.Fraction = float64(report.Inside) / float64(report.Samples)
	}
	return report
}
