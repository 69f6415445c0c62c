package dynamo

import (
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// Control carries the exogenous inputs of a System. For culture models u[0]
// is the effective dilution rate.
type Control []float64

// System is an ODE right-hand side dX/dt = f(X, u, t).
type System interface {
	Derive(x State, u Control, t float64) (State, error)
	StateDim() int
	ControlDim() int
}

// Integrator advances a System by one fixed step.
type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) (State, error)
}

// AdaptiveIntegrator attempts one step and proposes the next step size.
// A step whose error estimate exceeds tol is reported with ErrStepRejected
// together with a smaller proposed step.
type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(dyn System, x State, u Control, t, dt, tol float64) (State, float64, error)
}

// Controller computes the control input from the current state.
type Controller interface {
	Compute(x State, t float64) Control
}

type Metric interface {
	Name() string
	Observe(x State, u Control, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, u Control, t float64)
}

// Config holds the numerical settings shared by every integration call.
type Config struct {
	Tolerance   float64
	InitialDt   float64
	MinDt       float64
	MaxDt       float64
	MaxSteps    int
	MaxSegments int
}

func DefaultConfig() Config {
	return Config{
		Tolerance:   1e-8,
		InitialDt:   1e-3,
		MinDt:       1e-12,
		MaxDt:       0.1,
		MaxSteps:    5_000_000,
		MaxSegments: 100_000,
	}
}
