package sim

import (
	"math"

	"github.com/san-kum/phytosim/internal/control"
	"github.com/san-kum/phytosim/internal/dynamo"
	"github.com/san-kum/phytosim/internal/integrators"
	"github.com/san-kum/phytosim/internal/models"
)

// Request is one immutable simulation request. Transfer set means the
// semi-continuous regime; Policy is then ignored and segments run as batch.
type Request struct {
	Params   models.Params
	Initial  dynamo.State
	Policy   control.Policy
	Transfer *control.Transfer
	TFinal   float64
	// Samples is the number of evenly spaced output times of the whole run,
	// or of each segment in the semi-continuous regime.
	Samples int
}

// Regime reports the culture regime the request describes.
func (r Request) Regime() control.Regime {
	if r.Transfer != nil {
		return control.RegimeSemiContinuous
	}
	if r.Policy == nil {
		return control.RegimeBatch
	}
	return control.Regime(r.Policy.Name())
}

// Segments is the number of batch segments the request folds, 1 for the
// continuous regimes. It is a float64 so that callers can bound requests
// whose count would overflow an int.
func (r Request) Segments() float64 {
	if r.Transfer == nil || r.Transfer.Period <= 0 {
		return 1
	}
	return math.Max(segmentRatio(r.TFinal, r.Transfer.Period), 1)
}

// Points estimates how many samples the request produces.
func (r Request) Points() float64 {
	return r.Segments() * float64(r.Samples)
}

// Point is one trajectory sample. Mass = R + Q*X is derived.
type Point struct {
	T        float64 `json:"t"`
	R        float64 `json:"R"`
	Q        float64 `json:"Q"`
	X        float64 `json:"X"`
	Rho      float64 `json:"rho"`
	Mu       float64 `json:"mu"`
	Mass     float64 `json:"mass"`
	Dilution float64 `json:"dilution"`
	Segment  int     `json:"segment"`
}

func (p Point) State() dynamo.State {
	return dynamo.State{p.R, p.Q, p.X}
}

// Log10X returns log10 of the density, or ErrNonPositiveDensity when X <= 0.
func (p Point) Log10X() (float64, error) {
	if p.X <= 0 || math.IsNaN(p.X) {
		return math.NaN(), dynamo.ErrNonPositiveDensity
	}
	return math.Log10(p.X), nil
}

// Boundary marks an instantaneous dilution. Index points at the
// post-dilution sample; Index-1 holds the pre-dilution sample at the same T.
type Boundary struct {
	Index    int     `json:"index"`
	T        float64 `json:"t"`
	Retained float64 `json:"retained"`
}

type Stats struct {
	integrators.Stats
	Segments int `json:"segments"`
}

// Trajectory is the time-ordered output of a request. Times are strictly
// increasing except at dilution boundaries, where two samples share T.
type Trajectory struct {
	Regime     control.Regime     `json:"regime"`
	Points     []Point            `json:"points"`
	Boundaries []Boundary         `json:"boundaries,omitempty"`
	Stats      Stats              `json:"stats"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

func (tr *Trajectory) Len() int { return len(tr.Points) }

// Final returns the last sample.
func (tr *Trajectory) Final() Point {
	return tr.Points[len(tr.Points)-1]
}

// Column extracts one variable for plotting: t, R, Q, X, rho, mu, mass,
// dilution. Unknown names yield nil.
func (tr *Trajectory) Column(name string) []float64 {
	var get func(Point) float64
	switch name {
	case "t", "time":
		get = func(p Point) float64 { return p.T }
	case "R":
		get = func(p Point) float64 { return p.R }
	case "Q":
		get = func(p Point) float64 { return p.Q }
	case "X":
		get = func(p Point) float64 { return p.X }
	case "rho":
		get = func(p Point) float64 { return p.Rho }
	case "mu":
		get = func(p Point) float64 { return p.Mu }
	case "mass":
		get = func(p Point) float64 { return p.Mass }
	case "dilution":
		get = func(p Point) float64 { return p.Dilution }
	default:
		return nil
	}
	out := make([]float64, len(tr.Points))
	for i, p := range tr.Points {
		out[i] = get(p)
	}
	return out
}

// Log10X returns log10(X) per sample and the indices where X <= 0. Those
// entries hold NaN rather than -Inf.
func (tr *Trajectory) Log10X() ([]float64, []int) {
	out := make([]float64, len(tr.Points))
	var flagged []int
	for i, p := range tr.Points {
		v, err := p.Log10X()
		if err != nil {
			flagged = append(flagged, i)
		}
		out[i] = v
	}
	return out, flagged
}

// PostDilution returns the samples taken immediately after each dilution.
func (tr *Trajectory) PostDilution() []Point {
	out := make([]Point, 0, len(tr.Boundaries))
	for _, b := range tr.Boundaries {
		out = append(out, tr.Points[b.Index])
	}
	return out
}

// PreDilution returns the samples taken immediately before each dilution.
func (tr *Trajectory) PreDilution() []Point {
	out := make([]Point, 0, len(tr.Boundaries))
	for _, b := range tr.Boundaries {
		out = append(out, tr.Points[b.Index-1])
	}
	return out
}
