// Package control provides the dilution policies of the culture regimes.
//
// Continuous regimes implement [dynamo.Controller]; the returned control
// vector holds the effective dilution rate and is evaluated inside the
// model right-hand side at every integrator stage:
//
//   - [Batch]: closed vessel, no dilution
//   - [Chemostat]: constant dilution rate
//   - [Turbidostat]: density feedback through a linear ramp over a band
//
// The semi-continuous regime integrates batch dynamics over fixed periods
// and applies [Transfer] between segments.
//
// # Usage
//
//	pol, err := control.NewTurbidostat(xStar, muMax)
//	if err != nil {
//		return err
//	}
//	u := pol.Compute(x, t) // u[0] is d_eff
//
// All policies are immutable values and safe for concurrent use.
package control
