package optim

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/san-kum/phytosim/internal/config"
	"github.com/san-kum/phytosim/internal/experiment"
	"github.com/san-kum/phytosim/internal/sim"
)

// GridSearch tries every combination of the listed config settings.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Objective picks the value to optimize: a run metric by name, or else the
// final sample of a trajectory column.
type Objective struct {
	Name     string
	Maximize bool
}

// Value reads the objective from tr. NaN means it is unavailable.
func (o Objective) Value(tr *sim.Trajectory) float64 {
	if v, ok := tr.Metrics[o.Name]; ok {
		return v
	}
	col := tr.Column(o.Name)
	if len(col) == 0 {
		return math.NaN()
	}
	return col[len(col)-1]
}

func (o Objective) better(v, best float64) bool {
	if o.Maximize {
		return v > best
	}
	return v < best
}

// Result is the best grid point found. Failed counts grid points whose
// configuration was invalid or whose run failed.
type Result struct {
	Params    map[string]float64
	Value     float64
	Evaluated int
	Failed    int
}

// Search runs one simulation per grid point starting from base.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, registry *experiment.Registry, obj Objective) (Result, error) {
	if len(g.paramNames) == 0 || len(g.paramNames) != len(g.ranges) {
		return Result{}, fmt.Errorf("grid search: %d names for %d ranges", len(g.paramNames), len(g.ranges))
	}
	res := Result{Value: math.Inf(1)}
	if obj.Maximize {
		res.Value = math.Inf(-1)
	}

	err := g.searchRecursive(ctx, 0, make(map[string]float64), base, registry, obj, &res)
	if err != nil {
		return Result{}, err
	}
	if res.Params == nil {
		return res, fmt.Errorf("grid search: none of %d points produced %q", res.Evaluated, obj.Name)
	}
	return res, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	base *config.Config,
	registry *experiment.Registry,
	obj Objective,
	res *Result,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		res.Evaluated++
		cfg := base.Clone()
		for k, v := range current {
			if err := cfg.Set(k, v); err != nil {
				return err
			}
		}

		exp, err := experiment.New(cfg, registry)
		if err != nil {
			res.Failed++
			return nil
		}
		tr, err := exp.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res.Failed++
			return nil
		}

		val := obj.Value(tr)
		if !math.IsNaN(val) && obj.better(val, res.Value) {
			res.Value = val
			res.Params = make(map[string]float64, len(current))
			for k, v := range current {
				res.Params[k] = v
			}
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, base, registry, obj, res); err != nil {
			return err
		}
	}
	return nil
}

// ParseRange reads "name=start:stop:n" into n evenly spaced values.
func ParseRange(s string) (string, []float64, error) {
	name, bounds, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", nil, fmt.Errorf("range %q: want name=start:stop:n", s)
	}
	parts := strings.Split(bounds, ":")
	if len(parts) != 3 {
		return "", nil, fmt.Errorf("range %q: want name=start:stop:n", s)
	}
	start, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return "", nil, fmt.Errorf("range %q: %w", s, err)
	}
	stop, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return "", nil, fmt.Errorf("range %q: %w", s, err)
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil || n < 1 {
		return "", nil, fmt.Errorf("range %q: count must be a positive integer", s)
	}

	values := make([]float64, n)
	if n == 1 {
		values[0] = start
		return name, values, nil
	}
	step := (stop - start) / float64(n-1)
	for i := range values {
		values[i] = start + float64(i)*step
	}
	return name, values, nil
}
