package analysis

import (
	"math"

	"github.com/san-kum/phytosim/internal/dynamo"
	"github.com/san-kum/phytosim/internal/models"
)

// Equilibrium is a steady state of the chemostat.
type Equilibrium struct {
	D       float64 `json:"d"`
	R       float64 `json:"R"`
	Q       float64 `json:"Q"`
	X       float64 `json:"X"`
	Washout bool    `json:"washout"`
}

func (e Equilibrium) State() dynamo.State {
	return dynamo.State{e.R, e.Q, e.X}
}

// ChemostatEquilibrium solves the Droop chemostat steady state in closed
// form. Growth balances dilution, mu(Q*) = d, which fixes
//
//	Q* = QMin*MuMax/(MuMax-d)
//	R* = Km*d*Q*/(VMax-d*Q*)
//	X* = (Rs-R*)/Q*
//
// When no positive density is sustainable the washout state (Rs, Qw, 0)
// is returned with Washout set, where Qw balances uptake at Rs.
func ChemostatEquilibrium(p models.Params, d float64) (Equilibrium, error) {
	if err := p.Validate(); err != nil {
		return Equilibrium{}, err
	}
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return Equilibrium{}, &dynamo.ConfigError{Field: "d", Value: d, Reason: "must be non-negative"}
	}
	if d == 0 {
		return Equilibrium{}, &dynamo.ConfigError{Field: "d", Value: d, Reason: "batch culture has no interior equilibrium"}
	}

	if d >= p.MuMax {
		return washout(p, d)
	}
	q := p.QMin * p.MuMax / (p.MuMax - d)
	den := p.VMax - d*q
	if den <= 0 {
		return washout(p, d)
	}
	r := p.Km * d * q / den
	if r >= p.Rs {
		return washout(p, d)
	}
	return Equilibrium{D: d, R: r, Q: q, X: (p.Rs - r) / q}, nil
}

func washout(p models.Params, d float64) (Equilibrium, error) {
	rho, err := models.Uptake(p.Rs, p.VMax, p.Km)
	if err != nil {
		return Equilibrium{}, err
	}
	q := p.QMin
	if p.MuMax > 0 {
		q += rho / p.MuMax
	}
	return Equilibrium{D: d, R: p.Rs, Q: q, X: 0, Washout: true}, nil
}

// CriticalDilution is the smallest dilution rate that washes the culture
// out: the growth rate a culture sitting in fresh medium would reach.
func CriticalDilution(p models.Params) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	rho, err := models.Uptake(p.Rs, p.VMax, p.Km)
	if err != nil {
		return 0, err
	}
	// at washout Q solves rho = mu(Q)*Q = MuMax*(Q-QMin)
	if p.MuMax == 0 {
		return 0, nil
	}
	q := p.QMin + rho/p.MuMax
	return models.Growth(q, p.MuMax, p.QMin)
}
