package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/san-kum/phytosim/internal/dynamo"
	"github.com/san-kum/phytosim/internal/sim"
)

// PowerSpectrum returns the one-sided amplitude spectrum of data with its
// mean removed. Any length is accepted.
func PowerSpectrum(data []float64) []float64 {
	if len(data) == 0 {
		return nil
	}
	mean := 0.0
	for _, v := range data {
		mean += v
	}
	mean /= float64(len(data))

	centered := make([]float64, len(data))
	for i, v := range data {
		centered[i] = v - mean
	}

	coeffs := fft.FFTReal(centered)
	ps := make([]float64, len(coeffs)/2+1)
	for i := range ps {
		ps[i] = cmplx.Abs(coeffs[i])
	}
	return ps
}

// Oscillation is the strongest periodic component of a trajectory column.
type Oscillation struct {
	Period    float64 `json:"period"`
	Amplitude float64 `json:"amplitude"`
}

// DominantPeriod finds the strongest oscillation in column name over the
// samples at or after time `after`. The samples must be evenly spaced,
// which holds for continuous regimes. A flat signal yields Period 0.
func DominantPeriod(tr *sim.Trajectory, name string, after float64) (Oscillation, error) {
	col := tr.Column(name)
	if col == nil {
		return Oscillation{}, &dynamo.ConfigError{Field: "column", Value: name, Reason: "unknown trajectory column"}
	}

	var times, data []float64
	for i, p := range tr.Points {
		if p.T >= after {
			times = append(times, p.T)
			data = append(data, col[i])
		}
	}
	if len(data) < 4 {
		return Oscillation{}, &dynamo.ConfigError{Field: "after", Value: after, Reason: "need at least 4 samples"}
	}

	dt := times[1] - times[0]
	for i := 2; i < len(times); i++ {
		if math.Abs((times[i]-times[i-1])-dt) > 1e-9*math.Max(1, dt) {
			return Oscillation{}, &dynamo.ConfigError{Field: "samples", Value: i, Reason: "samples must be evenly spaced"}
		}
	}

	ps := PowerSpectrum(data)
	best, bestAmp := 0, 0.0
	for k := 1; k < len(ps); k++ {
		if ps[k] > bestAmp {
			best, bestAmp = k, ps[k]
		}
	}
	if best == 0 || bestAmp < 1e-12*float64(len(data)) {
		return Oscillation{}, nil
	}

	n := float64(len(data))
	return Oscillation{
		Period:    n * dt / float64(best),
		Amplitude: 2 * bestAmp / n,
	}, nil
}
