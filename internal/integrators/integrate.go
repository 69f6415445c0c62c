package integrators

import (
	"context"
	"errors"
	"math"

	"github.com/san-kum/phytosim/internal/dynamo"
)

// Options bounds a single Integrate call.
type Options struct {
	Tolerance float64
	InitialDt float64
	MinDt     float64
	MaxDt     float64
	MaxSteps  int
}

func OptionsFrom(cfg dynamo.Config) Options {
	return Options{
		Tolerance: cfg.Tolerance,
		InitialDt: cfg.InitialDt,
		MinDt:     cfg.MinDt,
		MaxDt:     cfg.MaxDt,
		MaxSteps:  cfg.MaxSteps,
	}
}

// Stats counts the work done by one Integrate call.
type Stats struct {
	Steps       int `json:"steps"`
	Rejected    int `json:"rejected"`
	Evaluations int `json:"evaluations"`
}

func (s *Stats) Add(o Stats) {
	s.Steps += o.Steps
	s.Rejected += o.Rejected
	s.Evaluations += o.Evaluations
}

// Solution holds the state sampled exactly at each requested time.
type Solution struct {
	Times  []float64
	States []dynamo.State
	Stats  Stats
}

type countingSystem struct {
	dynamo.System
	n int
}

func (c *countingSystem) Derive(x dynamo.State, u dynamo.Control, t float64) (dynamo.State, error) {
	c.n++
	return c.System.Derive(x, u, t)
}

// Integrate solves dyn from x0 at tEval[0] and samples the state at every
// entry of tEval, which must be strictly increasing. Adaptive integrators
// control their own step (never stepping past an output time); fixed-step
// integrators split each output interval into steps no longer than MaxDt.
// On failure no partial solution is returned.
func Integrate(ctx context.Context, integ dynamo.Integrator, dyn dynamo.System, x0 dynamo.State, tEval []float64, opts Options) (*Solution, error) {
	if err := validate(dyn, x0, tEval, opts); err != nil {
		return nil, err
	}

	counter := &countingSystem{System: dyn}
	sol := &Solution{
		Times:  make([]float64, 0, len(tEval)),
		States: make([]dynamo.State, 0, len(tEval)),
	}
	sol.Times = append(sol.Times, tEval[0])
	sol.States = append(sol.States, x0.Clone())

	var err error
	if adaptive, ok := integ.(dynamo.AdaptiveIntegrator); ok {
		err = integrateAdaptive(ctx, adaptive, counter, x0, tEval, opts, sol)
	} else {
		err = integrateFixed(ctx, integ, counter, x0, tEval, opts, sol)
	}
	sol.Stats.Evaluations = counter.n
	if err != nil {
		return nil, err
	}
	return sol, nil
}

func validate(dyn dynamo.System, x0 dynamo.State, tEval []float64, opts Options) error {
	if len(x0) != dyn.StateDim() {
		return &dynamo.ConfigError{Field: "initial_state", Value: len(x0), Reason: "dimension mismatch with system"}
	}
	if !x0.IsValid() {
		return &dynamo.ConfigError{Field: "initial_state", Value: x0, Reason: "must be finite"}
	}
	if len(tEval) == 0 {
		return &dynamo.ConfigError{Field: "t_eval", Value: 0, Reason: "need at least one output time"}
	}
	for i, t := range tEval {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return &dynamo.ConfigError{Field: "t_eval", Value: t, Reason: "must be finite"}
		}
		if i > 0 && t <= tEval[i-1] {
			return &dynamo.ConfigError{Field: "t_eval", Value: t, Reason: "output times must be strictly increasing"}
		}
	}
	if opts.MaxDt <= 0 {
		return &dynamo.ConfigError{Field: "max_dt", Value: opts.MaxDt, Reason: "must be positive"}
	}
	if opts.MaxSteps <= 0 {
		return &dynamo.ConfigError{Field: "max_steps", Value: opts.MaxSteps, Reason: "must be positive"}
	}
	return nil
}

func integrateAdaptive(ctx context.Context, integ dynamo.AdaptiveIntegrator, dyn dynamo.System, x0 dynamo.State, tEval []float64, opts Options, sol *Solution) error {
	if opts.Tolerance <= 0 {
		return &dynamo.ConfigError{Field: "tolerance", Value: opts.Tolerance, Reason: "must be positive for adaptive stepping"}
	}

	x := x0.Clone()
	t := tEval[0]
	dt := opts.InitialDt
	if dt <= 0 || dt > opts.MaxDt {
		dt = opts.MaxDt
	}

	for _, target := range tEval[1:] {
		for t < target {
			select {
			case <-ctx.Done():
				return &dynamo.IntegrationError{Step: sol.Stats.Steps, Time: t, State: x, Reason: "canceled", Wrapped: ctx.Err()}
			default:
			}

			if sol.Stats.Steps+sol.Stats.Rejected >= opts.MaxSteps {
				return &dynamo.IntegrationError{Step: sol.Stats.Steps, Time: t, State: x, Reason: "step budget exhausted"}
			}

			h := math.Min(dt, opts.MaxDt)
			last := false
			if h >= target-t {
				h = target - t
				last = true
			}

			xNew, dtNext, err := integ.StepAdaptive(dyn, x, nil, t, h, opts.Tolerance)
			if errors.Is(err, dynamo.ErrStepRejected) {
				sol.Stats.Rejected++
				if dtNext < opts.MinDt {
					return &dynamo.IntegrationError{Step: sol.Stats.Steps, Time: t, State: x, Reason: "step size below minimum"}
				}
				dt = dtNext
				continue
			}
			if err != nil {
				return &dynamo.IntegrationError{Step: sol.Stats.Steps, Time: t, State: x, Reason: "right-hand side failed", Wrapped: err}
			}
			if !xNew.IsValid() {
				return &dynamo.IntegrationError{Step: sol.Stats.Steps, Time: t, State: x, Reason: "non-finite state"}
			}

			sol.Stats.Steps++
			x = xNew
			if last {
				t = target
				// a step shortened to hit the output time says little about
				// the step the solution supports
				if h >= dt {
					dt = dtNext
				}
			} else {
				t += h
				dt = dtNext
			}
		}

		sol.Times = append(sol.Times, target)
		sol.States = append(sol.States, x.Clone())
	}

	return nil
}

func integrateFixed(ctx context.Context, integ dynamo.Integrator, dyn dynamo.System, x0 dynamo.State, tEval []float64, opts Options, sol *Solution) error {
	x := x0.Clone()
	t := tEval[0]

	for _, target := range tEval[1:] {
		select {
		case <-ctx.Done():
			return &dynamo.IntegrationError{Step: sol.Stats.Steps, Time: t, State: x, Reason: "canceled", Wrapped: ctx.Err()}
		default:
		}

		span := target - t
		n := int(math.Ceil(span / opts.MaxDt))
		if n < 1 {
			n = 1
		}
		if sol.Stats.Steps+n > opts.MaxSteps {
			return &dynamo.IntegrationError{Step: sol.Stats.Steps, Time: t, State: x, Reason: "step budget exhausted"}
		}
		h := span / float64(n)

		for i := 0; i < n; i++ {
			xNew, err := integ.Step(dyn, x, nil, t+float64(i)*h, h)
			if err != nil {
				return &dynamo.IntegrationError{Step: sol.Stats.Steps, Time: t + float64(i)*h, State: x, Reason: "right-hand side failed", Wrapped: err}
			}
			if !xNew.IsValid() {
				return &dynamo.IntegrationError{Step: sol.Stats.Steps, Time: t + float64(i)*h, State: x, Reason: "non-finite state"}
			}
			x = xNew
			sol.Stats.Steps++
		}

		t = target
		sol.Times = append(sol.Times, target)
		sol.States = append(sol.States, x.Clone())
	}

	return nil
}
