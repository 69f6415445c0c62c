package automation

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/san-kum/phytosim/internal/config"
	"github.com/san-kum/phytosim/internal/dynamo"
	"github.com/san-kum/phytosim/internal/experiment"
	"github.com/san-kum/phytosim/internal/metrics"
	"github.com/san-kum/phytosim/internal/sim"
)

// MonteCarloConfig perturbs the initial state of Base multiplicatively by
// up to ±Perturbation per component.
type MonteCarloConfig struct {
	Base         *config.Config
	Perturbation float64
	Trials       int
	Workers      int
	Seed         int64
}

type MonteCarloResult struct {
	Trial     int
	Initial   dynamo.State
	Final     dynamo.State
	WashedOut bool
}

// RunMonteCarlo runs the perturbed trials on an ensemble.
func RunMonteCarlo(ctx context.Context, cfg MonteCarloConfig, registry *experiment.Registry) ([]MonteCarloResult, error) {
	if cfg.Trials < 1 {
		return nil, &dynamo.ConfigError{Field: "trials", Value: cfg.Trials, Reason: "need at least one trial"}
	}
	if cfg.Perturbation < 0 || cfg.Perturbation >= 1 {
		return nil, &dynamo.ConfigError{Field: "perturbation", Value: cfg.Perturbation, Reason: "must lie in [0, 1)"}
	}
	exp, err := experiment.New(cfg.Base, registry)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	base := exp.Request()
	reqs := make([]sim.Request, cfg.Trials)
	for i := range reqs {
		init := make(dynamo.State, len(base.Initial))
		for j, v := range base.Initial {
			init[j] = v * (1 + (rng.Float64()-0.5)*2*cfg.Perturbation)
		}
		reqs[i] = base
		reqs[i].Initial = init
	}

	trs, err := sim.NewEnsemble(exp.Factory(), cfg.Workers).Run(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("monte carlo: %w", err)
	}

	results := make([]MonteCarloResult, len(trs))
	for i, tr := range trs {
		final := tr.Final()
		results[i] = MonteCarloResult{
			Trial:     i,
			Initial:   reqs[i].Initial,
			Final:     final.State(),
			WashedOut: final.X < metrics.DefaultWashoutThreshold,
		}
	}
	return results, nil
}

// MonteCarloStats counts trials that kept and lost their culture.
func MonteCarloStats(results []MonteCarloResult) (persisted int, washedOut int) {
	for _, r := range results {
		if r.WashedOut {
			washedOut++
		} else {
			persisted++
		}
	}
	return
}
