package control

import (
	"math"

	"github.com/san-kum/phytosim/internal/dynamo"
)

// Transfer is the instantaneous dilution applied between semi-continuous
// segments. Exactly one of Target and Fraction is set: with Target the
// retained fraction is Target/X at the boundary, otherwise Fraction is used
// as given.
type Transfer struct {
	Period   float64
	Target   float64
	Fraction float64
	Rs       float64
}

// NewTransferToTarget dilutes back to the density target every period.
func NewTransferToTarget(period, target, rs float64) (Transfer, error) {
	if err := checkPeriod(period); err != nil {
		return Transfer{}, err
	}
	if math.IsNaN(target) || math.IsInf(target, 0) || target <= 0 {
		return Transfer{}, &dynamo.ConfigError{Field: "x_star", Value: target, Reason: "target density must be positive"}
	}
	return Transfer{Period: period, Target: target, Rs: rs}, nil
}

// NewTransferFraction keeps a fixed fraction df of the culture every period.
func NewTransferFraction(period, df, rs float64) (Transfer, error) {
	if err := checkPeriod(period); err != nil {
		return Transfer{}, err
	}
	if math.IsNaN(df) || df <= 0 || df > 1 {
		return Transfer{}, &dynamo.ConfigError{Field: "df", Value: df, Reason: "dilution fraction must be in (0, 1]"}
	}
	return Transfer{Period: period, Fraction: df, Rs: rs}, nil
}

func checkPeriod(period float64) error {
	if math.IsNaN(period) || math.IsInf(period, 0) || period <= 0 {
		return &dynamo.ConfigError{Field: "period", Value: period, Reason: "must be positive"}
	}
	return nil
}

// RetainedFraction returns Df for the boundary state x. A target above the
// current density yields 1 (no transfer).
func (tr Transfer) RetainedFraction(x dynamo.State) (float64, error) {
	if tr.Target <= 0 {
		return tr.Fraction, nil
	}
	n := x[2]
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, &dynamo.DegenerateDilutionError{Density: n}
	}
	df := tr.Target / n
	if df > 1 || df < 0 {
		df = 1
	}
	return df, nil
}

// Dilute applies the transfer to x and returns the post-dilution state.
// The quota is carried over unchanged.
func (tr Transfer) Dilute(x dynamo.State) (dynamo.State, float64, error) {
	if len(x) < 3 {
		return nil, 0, &dynamo.ConfigError{Field: "state", Value: len(x), Reason: "expected (R, Q, X)"}
	}
	df, err := tr.RetainedFraction(x)
	if err != nil {
		return nil, 0, err
	}
	return dynamo.State{
		df*x[0] + (1-df)*tr.Rs,
		x[1],
		df * x[2],
	}, df, nil
}
