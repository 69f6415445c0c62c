package analysis

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/phytosim/internal/dynamo"
)

// Stability describes the linearization of a system at a state.
type Stability struct {
	Jacobian    *mat.Dense
	Eigenvalues []complex128
	// MaxReal is the largest real part; negative means locally stable.
	MaxReal float64
}

func (s Stability) Stable() bool { return s.MaxReal < 0 }

// Jacobian approximates df/dx of an autonomous system by central
// differences.
func Jacobian(sys dynamo.System, x dynamo.State, t float64) (*mat.Dense, error) {
	n := sys.StateDim()
	if len(x) != n {
		return nil, &dynamo.ConfigError{Field: "state", Value: len(x), Reason: "dimension mismatch with system"}
	}

	jac := mat.NewDense(n, n, nil)
	xp := x.Clone()
	xm := x.Clone()
	for j := 0; j < n; j++ {
		h := 1e-6 * math.Max(1, math.Abs(x[j]))
		xp[j] = x[j] + h
		xm[j] = x[j] - h

		fp, err := sys.Derive(xp, nil, t)
		if err != nil {
			return nil, fmt.Errorf("analysis: jacobian column %d: %w", j, err)
		}
		fm, err := sys.Derive(xm, nil, t)
		if err != nil {
			return nil, fmt.Errorf("analysis: jacobian column %d: %w", j, err)
		}
		for i := 0; i < n; i++ {
			jac.Set(i, j, (fp[i]-fm[i])/(2*h))
		}

		xp[j] = x[j]
		xm[j] = x[j]
	}
	return jac, nil
}

// LocalStability linearizes sys at x and returns the eigenvalues sorted by
// decreasing real part.
func LocalStability(sys dynamo.System, x dynamo.State) (Stability, error) {
	jac, err := Jacobian(sys, x, 0)
	if err != nil {
		return Stability{}, err
	}

	var eig mat.Eigen
	if ok := eig.Factorize(jac, mat.EigenNone); !ok {
		return Stability{}, &dynamo.DomainError{Func: "eigen", Arg: "jacobian", Value: math.NaN()}
	}
	vals := eig.Values(nil)
	sort.Slice(vals, func(a, b int) bool {
		if real(vals[a]) != real(vals[b]) {
			return real(vals[a]) > real(vals[b])
		}
		return imag(vals[a]) > imag(vals[b])
	})

	maxReal := math.Inf(-1)
	for _, v := range vals {
		if cmplx.IsNaN(v) {
			return Stability{}, &dynamo.DomainError{Func: "eigen", Arg: "jacobian", Value: math.NaN()}
		}
		maxReal = math.Max(maxReal, real(v))
	}

	return Stability{Jacobian: jac, Eigenvalues: vals, MaxReal: maxReal}, nil
}
