package automation

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/phytosim/internal/config"
	"github.com/san-kum/phytosim/internal/experiment"
	"github.com/san-kum/phytosim/internal/export"
	"github.com/san-kum/phytosim/internal/sim"
)

// Scenario is a named batch of simulations read from YAML.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// OutDir is where SaveAs paths are resolved. Relative to the scenario
	// file when loaded with LoadScenario.
	OutDir  string        `yaml:"out_dir"`
	Workers int           `yaml:"workers"`
	Runs    []ScenarioRun `yaml:"runs"`
}

// ScenarioRun starts from the defaults, or from Preset ("regime/name"),
// and decodes Config over it.
type ScenarioRun struct {
	Name   string    `yaml:"name"`
	Preset string    `yaml:"preset"`
	Config yaml.Node `yaml:"config"`
	SaveAs string    `yaml:"save_as"`
}

// RunResult is the outcome of one scenario run.
type RunResult struct {
	ID         string
	Name       string
	Path       string
	Config     *config.Config
	Trajectory *sim.Trajectory
	Elapsed    time.Duration
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !filepath.IsAbs(sc.OutDir) {
		sc.OutDir = filepath.Join(filepath.Dir(path), sc.OutDir)
	}
	return sc, nil
}

func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if len(sc.Runs) == 0 {
		return nil, fmt.Errorf("scenario %q has no runs", sc.Name)
	}
	seen := make(map[string]bool, len(sc.Runs))
	for i, r := range sc.Runs {
		if r.Name == "" {
			sc.Runs[i].Name = fmt.Sprintf("run-%d", i+1)
		}
		if seen[sc.Runs[i].Name] {
			return nil, fmt.Errorf("duplicate run name %q", sc.Runs[i].Name)
		}
		seen[sc.Runs[i].Name] = true
	}
	return &sc, nil
}

// Resolve builds the configuration of one run.
func (r ScenarioRun) Resolve() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if r.Preset != "" {
		regime, name, ok := splitPreset(r.Preset)
		if !ok {
			return nil, fmt.Errorf("preset %q: want regime/name", r.Preset)
		}
		cfg = config.GetPreset(regime, name)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %q (available: %v)", r.Preset, config.ListPresets(regime))
		}
	}
	if !r.Config.IsZero() {
		if err := r.Config.Decode(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

func splitPreset(s string) (string, string, bool) {
	regime, name, ok := strings.Cut(s, "/")
	if !ok || regime == "" || name == "" {
		return "", "", false
	}
	return regime, name, true
}

// RunScenario executes every run concurrently and writes those with SaveAs.
// Results come back in declaration order; the first failure cancels the
// rest.
func RunScenario(ctx context.Context, sc *Scenario, registry *experiment.Registry) ([]RunResult, error) {
	configs := make([]*config.Config, len(sc.Runs))
	for i, r := range sc.Runs {
		cfg, err := r.Resolve()
		if err != nil {
			return nil, fmt.Errorf("run %q: %w", r.Name, err)
		}
		configs[i] = cfg
	}

	workers := sc.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]RunResult, len(sc.Runs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range sc.Runs {
		i := i
		g.Go(func() error {
			res, err := execute(ctx, sc, sc.Runs[i], configs[i], registry)
			if err != nil {
				return fmt.Errorf("run %q: %w", sc.Runs[i].Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func execute(ctx context.Context, sc *Scenario, run ScenarioRun, cfg *config.Config, registry *experiment.Registry) (RunResult, error) {
	exp, err := experiment.New(cfg, registry)
	if err != nil {
		return RunResult{}, err
	}

	res := RunResult{ID: uuid.NewString(), Name: run.Name, Config: cfg}
	start := time.Now()
	tr, err := exp.Run(ctx)
	if err != nil {
		return RunResult{}, err
	}
	res.Trajectory = tr
	res.Elapsed = time.Since(start)

	if run.SaveAs != "" {
		res.Path = run.SaveAs
		if !filepath.IsAbs(res.Path) {
			res.Path = filepath.Join(sc.OutDir, res.Path)
		}
		info := export.RunInfo{
			ID:         res.ID,
			Name:       run.Name,
			Integrator: cfg.Integrator,
			Params:     exp.Request().Params,
			Timestamp:  start.UTC(),
		}
		if err := export.WriteFile(res.Path, info, tr); err != nil {
			return RunResult{}, err
		}
	}
	log.Printf("scenario %s: %s done in %v (%d samples)", sc.Name, run.Name, res.Elapsed, tr.Len())
	return res, nil
}
