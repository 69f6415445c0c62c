package control

import (
	"math"

	"github.com/san-kum/phytosim/internal/dynamo"
)

// Chemostat dilutes at the experimenter-set rate D.
type Chemostat struct {
	D float64
}

func NewChemostat(d float64) (Chemostat, error) {
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return Chemostat{}, &dynamo.ConfigError{Field: "d", Value: d, Reason: "dilution rate must be finite and non-negative"}
	}
	return Chemostat{D: d}, nil
}

func (Chemostat) Name() string { return string(RegimeChemostat) }

func (c Chemostat) Compute(x dynamo.State, t float64) dynamo.Control {
	return dynamo.Control{c.D}
}
