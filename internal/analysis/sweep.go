package analysis

import (
	"context"
	"math"

	"github.com/san-kum/phytosim/internal/control"
	"github.com/san-kum/phytosim/internal/dynamo"
	"github.com/san-kum/phytosim/internal/models"
	"github.com/san-kum/phytosim/internal/sim"
)

// SweepConfig describes a chemostat dilution-rate sweep.
type SweepConfig struct {
	Params  models.Params
	Initial dynamo.State
	DMin    float64
	DMax    float64
	Steps   int
	TFinal  float64
	Samples int
	// Transient is the time after which min/max density are recorded.
	Transient float64
}

// SweepPoint is the outcome for one dilution rate.
type SweepPoint struct {
	D           float64     `json:"d"`
	Final       sim.Point   `json:"final"`
	MinX        float64     `json:"min_x"`
	MaxX        float64     `json:"max_x"`
	Equilibrium Equilibrium `json:"equilibrium"`
	// MaxReal is the leading eigenvalue real part at the equilibrium.
	MaxReal float64 `json:"max_real"`
}

// Sweep runs one chemostat simulation per dilution rate on ens and pairs
// each simulated end state with the closed-form equilibrium.
func Sweep(ctx context.Context, ens *sim.Ensemble, cfg SweepConfig) ([]SweepPoint, error) {
	if cfg.Steps < 2 {
		return nil, &dynamo.ConfigError{Field: "steps", Value: cfg.Steps, Reason: "need at least 2 dilution rates"}
	}
	if !(cfg.DMax > cfg.DMin) || cfg.DMin <= 0 {
		return nil, &dynamo.ConfigError{Field: "d", Value: [2]float64{cfg.DMin, cfg.DMax}, Reason: "need 0 < d_min < d_max"}
	}

	step := (cfg.DMax - cfg.DMin) / float64(cfg.Steps-1)
	reqs := make([]sim.Request, cfg.Steps)
	points := make([]SweepPoint, cfg.Steps)
	for i := range reqs {
		d := cfg.DMin + float64(i)*step
		chem, err := control.NewChemostat(d)
		if err != nil {
			return nil, err
		}
		reqs[i] = sim.Request{
			Params:  cfg.Params,
			Initial: cfg.Initial,
			Policy:  chem,
			TFinal:  cfg.TFinal,
			Samples: cfg.Samples,
		}
		points[i].D = d
	}

	results, err := ens.Run(ctx, reqs)
	if err != nil {
		return nil, err
	}

	errs := make([]error, len(points))
	dynamo.ParallelFor(len(points), 4, func(start, end int) {
		for i := start; i < end; i++ {
			errs[i] = summarize(&points[i], cfg, results[i])
		}
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return points, nil
}

func summarize(pt *SweepPoint, cfg SweepConfig, tr *sim.Trajectory) error {
	pt.Final = tr.Final()
	pt.MinX, pt.MaxX = math.Inf(1), math.Inf(-1)
	for _, p := range tr.Points {
		if p.T < cfg.Transient {
			continue
		}
		pt.MinX = math.Min(pt.MinX, p.X)
		pt.MaxX = math.Max(pt.MaxX, p.X)
	}

	eq, st, err := ChemostatStability(cfg.Params, pt.D)
	if err != nil {
		return err
	}
	pt.Equilibrium = eq
	pt.MaxReal = st.MaxReal
	return nil
}

// ChemostatStability linearizes the closed-loop chemostat at its
// equilibrium for dilution rate d.
func ChemostatStability(p models.Params, d float64) (Equilibrium, Stability, error) {
	eq, err := ChemostatEquilibrium(p, d)
	if err != nil {
		return Equilibrium{}, Stability{}, err
	}
	chem, err := control.NewChemostat(d)
	if err != nil {
		return Equilibrium{}, Stability{}, err
	}
	st, err := LocalStability(sim.ClosedLoop(models.NewDroop(p), chem), eq.State())
	if err != nil {
		return Equilibrium{}, Stability{}, err
	}
	return eq, st, nil
}
