package models

import (
	"fmt"
	"math"

	"github.com/san-kum/phytosim/internal/dynamo"
)

// State vector layout.
const (
	IdxR = iota // extracellular resource
	IdxQ        // cell quota
	IdxX        // cell density
)

// QuotaPolicy decides how growth behaves when Q drops below QMin.
type QuotaPolicy string

const (
	// QuotaExtrapolate keeps the Droop formula, so growth turns negative.
	QuotaExtrapolate QuotaPolicy = "extrapolate"
	// QuotaClamp floors growth at zero.
	QuotaClamp QuotaPolicy = "clamp"
)

// Params is the immutable parameter set of one simulation request.
type Params struct {
	MuMax float64 `yaml:"mu_max" json:"mu_max"`
	VMax  float64 `yaml:"v_max" json:"v_max"`
	Km    float64 `yaml:"k_m" json:"k_m"`
	QMin  float64 `yaml:"q_min" json:"q_min"`
	// Rs is the resource concentration of the supply medium.
	Rs          float64     `yaml:"rs" json:"rs"`
	QuotaPolicy QuotaPolicy `yaml:"quota_policy,omitempty" json:"quota_policy,omitempty"`
}

func DefaultParams() Params {
	return Params{
		MuMax:       1.0,
		VMax:        2.0,
		Km:          1.0,
		QMin:        0.1,
		Rs:          1.0,
		QuotaPolicy: QuotaExtrapolate,
	}
}

// Validate checks the invariants every request must satisfy.
func (p Params) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"mu_max", p.MuMax},
		{"v_max", p.VMax},
		{"k_m", p.Km},
		{"q_min", p.QMin},
		{"rs", p.Rs},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &dynamo.ConfigError{Field: f.name, Value: f.v, Reason: "must be finite"}
		}
		if f.v < 0 {
			return &dynamo.ConfigError{Field: f.name, Value: f.v, Reason: "must be non-negative"}
		}
	}
	if p.Km <= 0 {
		return &dynamo.ConfigError{Field: "k_m", Value: p.Km, Reason: "must be positive"}
	}
	switch p.QuotaPolicy {
	case "", QuotaExtrapolate, QuotaClamp:
	default:
		return &dynamo.ConfigError{Field: "quota_policy", Value: p.QuotaPolicy, Reason: "must be extrapolate or clamp"}
	}
	return nil
}

// GetParams lists the tunable parameters by name.
func (p Params) GetParams() map[string]float64 {
	return map[string]float64{
		"mu_max": p.MuMax,
		"v_max":  p.VMax,
		"k_m":    p.Km,
		"q_min":  p.QMin,
		"rs":     p.Rs,
	}
}

// With returns a copy of p with one parameter replaced.
func (p Params) With(name string, value float64) (Params, error) {
	switch name {
	case "mu_max":
		p.MuMax = value
	case "v_max":
		p.VMax = value
	case "k_m":
		p.Km = value
	case "q_min":
		p.QMin = value
	case "rs", "r0":
		p.Rs = value
	default:
		return p, &dynamo.ConfigError{Field: name, Value: value, Reason: "unknown parameter"}
	}
	return p, nil
}

// Uptake is the Michaelis-Menten resource uptake rate per cell.
func Uptake(r, vmax, km float64) (float64, error) {
	den := km + r
	if den == 0 {
		return 0, &dynamo.DomainError{Func: "uptake", Arg: "k_m+R", Value: den}
	}
	rho := vmax * r / den
	if math.IsNaN(rho) || math.IsInf(rho, 0) {
		return 0, &dynamo.DomainError{Func: "uptake", Arg: "R", Value: r}
	}
	return rho, nil
}

// Growth is the Droop quota-dependent growth rate.
func Growth(q, mumax, qmin float64) (float64, error) {
	if q == 0 {
		return 0, &dynamo.DomainError{Func: "growth", Arg: "Q", Value: q}
	}
	mu := mumax * (1 - qmin/q)
	if math.IsNaN(mu) || math.IsInf(mu, 0) {
		return 0, &dynamo.DomainError{Func: "growth", Arg: "Q", Value: q}
	}
	return mu, nil
}

// Droop is the three-variable quota model. The control input u[0] is the
// effective dilution rate supplied by the culture regime.
type Droop struct {
	P Params
}

func NewDroop(p Params) *Droop {
	return &Droop{P: p}
}

func (m *Droop) StateDim() int   { return 3 }
func (m *Droop) ControlDim() int { return 1 }

// Rates returns uptake and growth at x, honouring the quota policy.
func (m *Droop) Rates(x dynamo.State) (rho, mu float64, err error) {
	if len(x) != 3 {
		return 0, 0, &dynamo.ConfigError{Field: "state", Value: len(x), Reason: "expected (R, Q, X)"}
	}
	rho, err = Uptake(x[IdxR], m.P.VMax, m.P.Km)
	if err != nil {
		return 0, 0, err
	}
	mu, err = Growth(x[IdxQ], m.P.MuMax, m.P.QMin)
	if err != nil {
		return 0, 0, err
	}
	if m.P.QuotaPolicy == QuotaClamp && mu < 0 {
		mu = 0
	}
	return rho, mu, nil
}

// Derive computes (dR/dt, dQ/dt, dX/dt).
func (m *Droop) Derive(x dynamo.State, u dynamo.Control, t float64) (dynamo.State, error) {
	rho, mu, err := m.Rates(x)
	if err != nil {
		return nil, err
	}

	d := 0.0
	if len(u) > 0 {
		d = u[0]
	}

	r, q, n := x[IdxR], x[IdxQ], x[IdxX]
	return dynamo.State{
		d*(m.P.Rs-r) - rho*n,
		rho - mu*q,
		n * (mu - d),
	}, nil
}

// Mass is the total resource in the vessel, free plus cellular.
func Mass(x dynamo.State) float64 {
	return x[IdxR] + x[IdxQ]*x[IdxX]
}

// Diagnostics returns the auxiliary quantities reported with each sample.
func (m *Droop) Diagnostics(x dynamo.State) (rho, mu, mass float64, err error) {
	rho, mu, err = m.Rates(x)
	if err != nil {
		return 0, 0, 0, err
	}
	return rho, mu, Mass(x), nil
}

// String is used in CLI summaries.
func (p Params) String() string {
	return fmt.Sprintf("mu_max=%g v_max=%g k_m=%g q_min=%g rs=%g", p.MuMax, p.VMax, p.Km, p.QMin, p.Rs)
}
