package analysis

import (
	"math"

	"github.com/san-kum/phytosim/internal/dynamo"
)

// LyapunovExponent estimates the largest Lyapunov exponent of an
// autonomous system by trajectory separation. For a culture settling onto
// a steady state it approaches the largest real part of the Jacobian
// eigenvalues there, so the two estimates cross-check each other.
//
// Algorithm:
// 1. Run two nearby trajectories with fixed steps of dt
// 2. After each step, log the growth of their separation
// 3. Rescale the perturbed trajectory back to distance d0
func LyapunovExponent(
	sys dynamo.System,
	integ dynamo.Integrator,
	x0 dynamo.State,
	dt, duration float64,
	perturbation float64,
) (float64, error) {
	if len(x0) == 0 || dt <= 0 || duration <= 0 || perturbation <= 0 {
		return 0, &dynamo.ConfigError{Field: "lyapunov", Value: []float64{dt, duration, perturbation}, Reason: "need a state and positive dt, duration and perturbation"}
	}

	x := x0.Clone()
	xp := x0.Clone()
	xp[0] += perturbation
	d0 := perturbation

	t := 0.0
	sumLog := 0.0
	count := 0

	var err error
	for t < duration {
		x, err = integ.Step(sys, x, nil, t, dt)
		if err != nil {
			return 0, &dynamo.IntegrationError{Step: count, Time: t, State: x, Reason: "reference trajectory", Wrapped: err}
		}
		xp, err = integ.Step(sys, xp, nil, t, dt)
		if err != nil {
			return 0, &dynamo.IntegrationError{Step: count, Time: t, State: xp, Reason: "perturbed trajectory", Wrapped: err}
		}
		t += dt

		diff := xp.Sub(x)
		sep := diff.Norm()
		if sep == 0 || math.IsNaN(sep) || math.IsInf(sep, 0) {
			return 0, &dynamo.IntegrationError{Step: count, Time: t, State: x, Reason: "trajectories collapsed"}
		}
		sumLog += math.Log(sep / d0)
		count++

		xp = x.Add(diff.Scale(d0 / sep))
	}

	return sumLog / t, nil
}
