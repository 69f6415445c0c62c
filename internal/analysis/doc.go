// Package analysis derives steady-state and stability information from
// culture models and simulated trajectories.
//
//   - [ChemostatEquilibrium]: closed-form Droop chemostat steady state, with washout
//   - [LocalStability]: Jacobian eigenvalues at a state
//   - [LyapunovExponent]: separation-rate estimate, a cross-check for [LocalStability]
//   - [PeriodicState]: convergence of the post-dilution states of a semi-continuous run
//   - [TurbidostatBand]: share of late samples inside the turbidostat band
//   - [DominantPeriod]: strongest oscillation of a trajectory column
//   - [Sweep]: chemostat dilution-rate sweep run on a [sim.Ensemble]
//
// # Washout
//
// A chemostat diluted faster than the culture can grow in fresh medium
// loses its cells:
//
//	dc, _ := analysis.CriticalDilution(params)
//	eq, _ := analysis.ChemostatEquilibrium(params, d)
//	if eq.Washout {
//	    // d >= dc
//	}
package analysis
