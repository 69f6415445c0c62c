package experiment

import (
	"context"

	"github.com/san-kum/phytosim/internal/config"
	"github.com/san-kum/phytosim/internal/dynamo"
	"github.com/san-kum/phytosim/internal/sim"
)

// Experiment binds a validated configuration to a simulator.
type Experiment struct {
	cfg        *config.Config
	req        sim.Request
	registry   *Registry
	integrator func() dynamo.Integrator
	simulator  *sim.Simulator
}

// New validates cfg and prepares a simulator with the standard metrics.
func New(cfg *config.Config, registry *Registry) (*Experiment, error) {
	req, err := cfg.ToRequest()
	if err != nil {
		return nil, err
	}
	integ, err := registry.IntegratorFactory(cfg.Integrator)
	if err != nil {
		return nil, err
	}
	e := &Experiment{cfg: cfg, req: req, registry: registry, integrator: integ}
	e.simulator = e.newSimulator()
	return e, nil
}

func (e *Experiment) newSimulator() *sim.Simulator {
	s := sim.New(e.integrator(), e.cfg.SimConfig())
	for _, m := range e.registry.DefaultMetrics() {
		s.AddMetric(m)
	}
	return s
}

func (e *Experiment) Run(ctx context.Context) (*sim.Trajectory, error) {
	return e.simulator.Run(ctx, e.req)
}

// Request returns the request this experiment runs.
func (e *Experiment) Request() sim.Request { return e.req }

// GetSimulator returns the underlying simulator for adding observers.
func (e *Experiment) GetSimulator() *sim.Simulator {
	return e.simulator
}

// Factory builds independent simulators with this experiment's integrator
// and metrics, for ensembles and sweeps.
func (e *Experiment) Factory() sim.Factory {
	return e.newSimulator
}

// Simulate validates cfg and runs it once with the default registry.
func Simulate(ctx context.Context, cfg *config.Config) (*sim.Trajectory, error) {
	e, err := New(cfg, NewRegistry())
	if err != nil {
		return nil, err
	}
	return e.Run(ctx)
}
