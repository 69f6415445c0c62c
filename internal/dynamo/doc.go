// Package dynamo provides core simulation primitives for culture models.
//
// The package defines the fundamental interfaces and types shared by the
// models, dilution policies, integrators and the trajectory simulator:
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [Integrator], [AdaptiveIntegrator]: numerical steppers
//   - [Controller]: dilution policy evaluated inside the right-hand side
//   - [Metric], [Observer]: hooks fed every output sample
//
// # Errors
//
// Every failure a simulation request can produce matches one of
// [ErrDomain], [ErrIntegration], [ErrDegenerateDilution] or
// [ErrConfiguration] through errors.Is. The typed errors carry the detail.
//
// # Thread Safety
//
// Values in this package are plain data. Systems and controllers used by
// the simulator are stateless, so independent requests may run in parallel
// as long as each gets its own State slices.
package dynamo
