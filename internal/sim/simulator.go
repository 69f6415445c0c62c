package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/phytosim/internal/control"
	"github.com/san-kum/phytosim/internal/dynamo"
	"github.com/san-kum/phytosim/internal/integrators"
	"github.com/san-kum/phytosim/internal/models"
)

// Simulator turns requests into trajectories. It holds no per-request state
// besides the metrics it was given, so a Simulator must not run two requests
// at once; use one per goroutine (see Ensemble).
type Simulator struct {
	integrator dynamo.Integrator
	cfg        dynamo.Config
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
}

func New(integrator dynamo.Integrator, cfg dynamo.Config) *Simulator {
	return &Simulator{
		integrator: integrator,
		cfg:        cfg,
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]dynamo.Observer, 0),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

// closedLoop evaluates the dilution policy inside the right-hand side so
// the rate follows the state at every integrator stage.
type closedLoop struct {
	sys  dynamo.System
	ctrl dynamo.Controller
}

func (c closedLoop) Derive(x dynamo.State, _ dynamo.Control, t float64) (dynamo.State, error) {
	return c.sys.Derive(x, c.ctrl.Compute(x, t), t)
}

func (c closedLoop) StateDim() int   { return c.sys.StateDim() }
func (c closedLoop) ControlDim() int { return 0 }

// ClosedLoop composes a model with a dilution policy into an autonomous
// system, as the simulator integrates it.
func ClosedLoop(sys dynamo.System, ctrl dynamo.Controller) dynamo.System {
	return closedLoop{sys: sys, ctrl: ctrl}
}

func (s *Simulator) Run(ctx context.Context, req Request) (*Trajectory, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	model := models.NewDroop(req.Params)

	var (
		tr  *Trajectory
		err error
	)
	if req.Transfer != nil {
		tr, err = s.runSemiContinuous(ctx, model, req)
	} else {
		policy := req.Policy
		if policy == nil {
			policy = control.NewBatch()
		}
		tr, err = s.runContinuous(ctx, model, policy, req)
	}
	if err != nil {
		return nil, err
	}

	tr.Regime = req.Regime()
	if len(s.metrics) > 0 {
		tr.Metrics = make(map[string]float64, len(s.metrics))
		for _, m := range s.metrics {
			tr.Metrics[m.Name()] = m.Value()
		}
	}
	return tr, nil
}

func (s *Simulator) validate(req Request) error {
	if err := req.Params.Validate(); err != nil {
		return err
	}
	if len(req.Initial) != 3 {
		return &dynamo.ConfigError{Field: "initial", Value: len(req.Initial), Reason: "expected (R, Q, X)"}
	}
	if !req.Initial.IsValid() {
		return &dynamo.ConfigError{Field: "initial", Value: req.Initial, Reason: "must be finite"}
	}
	if math.IsNaN(req.TFinal) || math.IsInf(req.TFinal, 0) || req.TFinal <= 0 {
		return &dynamo.ConfigError{Field: "t_final", Value: req.TFinal, Reason: "must be positive"}
	}
	if req.Samples < 2 {
		return &dynamo.ConfigError{Field: "samples", Value: req.Samples, Reason: "need at least 2 samples"}
	}
	if req.Transfer != nil {
		if req.Transfer.Period <= 0 || math.IsNaN(req.Transfer.Period) {
			return &dynamo.ConfigError{Field: "period", Value: req.Transfer.Period, Reason: "must be positive"}
		}
		if s.cfg.MaxSegments <= 0 {
			return &dynamo.ConfigError{Field: "max_segments", Value: s.cfg.MaxSegments, Reason: "must be positive"}
		}
		// compared as float64 so that huge ratios cannot wrap the int conversion
		if n := segmentRatio(req.TFinal, req.Transfer.Period); !(n <= float64(s.cfg.MaxSegments)) {
			return &dynamo.ConfigError{
				Field:  "period",
				Value:  req.Transfer.Period,
				Reason: fmt.Sprintf("%.4g segments exceed the limit of %d", n, s.cfg.MaxSegments),
			}
		}
	}
	return nil
}

func segmentRatio(tFinal, period float64) float64 {
	return math.Ceil(tFinal/period - 1e-9)
}

// segmentCount must only be called once validate has bounded the ratio.
func segmentCount(tFinal, period float64) int {
	return int(segmentRatio(tFinal, period))
}

// maxPrealloc bounds the up-front point capacity of a semi-continuous run;
// longer runs grow the slice as they go.
const maxPrealloc = 1 << 16

func linspace(a, b float64, n int) []float64 {
	out := make([]float64, n)
	step := (b - a) / float64(n-1)
	for i := range out {
		out[i] = a + float64(i)*step
	}
	out[n-1] = b
	return out
}

func (s *Simulator) runContinuous(ctx context.Context, model *models.Droop, policy control.Policy, req Request) (*Trajectory, error) {
	sys := closedLoop{sys: model, ctrl: policy}
	sol, err := integrators.Integrate(ctx, s.integrator, sys, req.Initial, linspace(0, req.TFinal, req.Samples), integrators.OptionsFrom(s.cfg))
	if err != nil {
		return nil, err
	}

	tr := &Trajectory{Points: make([]Point, 0, len(sol.Times))}
	tr.Stats.Add(sol.Stats)
	tr.Stats.Segments = 1
	for i, t := range sol.Times {
		if err := s.appendPoint(tr, model, policy, sol.States[i], t, 0); err != nil {
			return nil, err
		}
	}
	return tr, nil
}

// runSemiContinuous folds batch segments of length Period over [0, TFinal].
// Each boundary contributes two samples at the same time: the state before
// and after the transfer. No transfer follows the final segment.
func (s *Simulator) runSemiContinuous(ctx context.Context, model *models.Droop, req Request) (*Trajectory, error) {
	transfer := *req.Transfer
	batch := control.NewBatch()
	sys := closedLoop{sys: model, ctrl: batch}
	opts := integrators.OptionsFrom(s.cfg)

	segments := segmentCount(req.TFinal, transfer.Period)
	capacity := maxPrealloc
	if n := req.Points(); n < maxPrealloc {
		capacity = int(n)
	}
	tr := &Trajectory{
		Points:     make([]Point, 0, capacity),
		Boundaries: make([]Boundary, 0, min(segments, maxPrealloc)),
	}

	t0 := 0.0
	x := req.Initial.Clone()
	for k := 0; t0 < req.TFinal; k++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("sim: segment %d: %w", k, err)
		}

		t1 := math.Min(t0+transfer.Period, req.TFinal)
		if req.TFinal-t1 <= transfer.Period*1e-9 {
			t1 = req.TFinal
		}

		sol, err := integrators.Integrate(ctx, s.integrator, sys, x, linspace(t0, t1, req.Samples), opts)
		if err != nil {
			return nil, fmt.Errorf("sim: segment %d: %w", k, err)
		}
		tr.Stats.Add(sol.Stats)
		tr.Stats.Segments++

		first := 0
		if k > 0 {
			// the segment's initial state is the post-dilution sample
			first = 1
		}
		for i := first; i < len(sol.Times); i++ {
			if err := s.appendPoint(tr, model, batch, sol.States[i], sol.Times[i], k); err != nil {
				return nil, err
			}
		}

		t0 = t1
		x = sol.States[len(sol.States)-1]
		if t0 >= req.TFinal {
			break
		}

		next, df, err := transfer.Dilute(x)
		if err != nil {
			var de *dynamo.DegenerateDilutionError
			if errors.As(err, &de) {
				de.Segment = k
				de.Time = t0
			}
			return nil, err
		}

		tr.Boundaries = append(tr.Boundaries, Boundary{Index: len(tr.Points), T: t0, Retained: df})
		if err := s.appendPoint(tr, model, batch, next, t0, k+1); err != nil {
			return nil, err
		}
		x = next
	}

	return tr, nil
}

func (s *Simulator) appendPoint(tr *Trajectory, model *models.Droop, policy dynamo.Controller, x dynamo.State, t float64, segment int) error {
	rho, mu, mass, err := model.Diagnostics(x)
	if err != nil {
		return fmt.Errorf("sim: diagnostics at t=%g: %w", t, err)
	}
	u := policy.Compute(x, t)

	for _, m := range s.metrics {
		m.Observe(x, u, t)
	}
	for _, obs := range s.observers {
		obs.OnStep(x, u, t)
	}

	tr.Points = append(tr.Points, Point{
		T:        t,
		R:        x[models.IdxR],
		Q:        x[models.IdxQ],
		X:        x[models.IdxX],
		Rho:      rho,
		Mu:       mu,
		Mass:     mass,
		Dilution: u[0],
		Segment:  segment,
	})
	return nil
}
