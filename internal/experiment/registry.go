package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/phytosim/internal/dynamo"
	"github.com/san-kum/phytosim/internal/integrators"
	"github.com/san-kum/phytosim/internal/metrics"
)

// Registry resolves integrators and run metrics by name.
type Registry struct {
	integrators map[string]func() dynamo.Integrator
	metrics     func() []dynamo.Metric
}

func NewRegistry() *Registry {
	r := &Registry{
		integrators: make(map[string]func() dynamo.Integrator),
		metrics:     metrics.Standard,
	}

	r.integrators["rk45"] = func() dynamo.Integrator { return integrators.NewRK45() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }
	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }

	return r
}

// GetIntegrator returns a fresh integrator; integrators keep scratch
// buffers and are not shared between runs.
func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	fn, err := r.IntegratorFactory(name)
	if err != nil {
		return nil, err
	}
	return fn(), nil
}

func (r *Registry) IntegratorFactory(name string) (func() dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, &dynamo.ConfigError{Field: "integrator", Value: name, Reason: fmt.Sprintf("must be one of %v", r.ListIntegrators())}
	}
	return fn, nil
}

func (r *Registry) ListIntegrators() []string {
	names := make([]string, 0, len(r.integrators))
	for name := range r.integrators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics returns fresh metric instances for one run.
func (r *Registry) DefaultMetrics() []dynamo.Metric {
	return r.metrics()
}
