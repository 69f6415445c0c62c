package control

import (
	"math"

	"github.com/san-kum/phytosim/internal/dynamo"
)

// Default band around the target density over which dilution ramps up.
const (
	DefaultBandLow  = 0.95
	DefaultBandHigh = 1.05
	DefaultGain     = 2.0
)

// Turbidostat holds density near XStar. Dilution is zero below Low*XStar,
// Gain*MuMax at or above High*XStar, and linear in between so that the
// right-hand side stays continuous for adaptive step control.
type Turbidostat struct {
	XStar float64
	MuMax float64
	Low   float64
	High  float64
	Gain  float64
}

func NewTurbidostat(xStar, muMax float64) (Turbidostat, error) {
	return NewTurbidostatBand(xStar, muMax, DefaultBandLow, DefaultBandHigh)
}

// NewTurbidostatBand builds a turbidostat with explicit band edges given
// as multiples of XStar.
func NewTurbidostatBand(xStar, muMax, low, high float64) (Turbidostat, error) {
	if math.IsNaN(xStar) || math.IsInf(xStar, 0) || xStar <= 0 {
		return Turbidostat{}, &dynamo.ConfigError{Field: "x_star", Value: xStar, Reason: "target density must be positive"}
	}
	if muMax < 0 || math.IsNaN(muMax) {
		return Turbidostat{}, &dynamo.ConfigError{Field: "mu_max", Value: muMax, Reason: "must be non-negative"}
	}
	if !(low > 0 && high > low) {
		return Turbidostat{}, &dynamo.ConfigError{Field: "band", Value: [2]float64{low, high}, Reason: "need 0 < band_low < band_high"}
	}
	return Turbidostat{XStar: xStar, MuMax: muMax, Low: low, High: high, Gain: DefaultGain}, nil
}

func (Turbidostat) Name() string { return string(RegimeTurbidostat) }

// Rate is the dilution rate for density x.
func (p Turbidostat) Rate(x float64) float64 {
	lo := p.Low * p.XStar
	hi := p.High * p.XStar
	dMax := p.Gain * p.MuMax
	switch {
	case x < lo:
		return 0
	case x >= hi:
		return dMax
	default:
		return dMax * (x - lo) / (hi - lo)
	}
}

func (p Turbidostat) Compute(x dynamo.State, t float64) dynamo.Control {
	if len(x) < 3 {
		return dynamo.Control{0}
	}
	return dynamo.Control{p.Rate(x[2])}
}

// InBand reports whether density x lies inside the control band.
func (p Turbidostat) InBand(x float64) bool {
	return x >= p.Low*p.XStar && x <= p.High*p.XStar
}
