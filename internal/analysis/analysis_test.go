package analysis

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/san-kum/phytosim/internal/control"
	"github.com/san-kum/phytosim/internal/dynamo"
	"github.com/san-kum/phytosim/internal/integrators"
	"github.com/san-kum/phytosim/internal/models"
	"github.com/san-kum/phytosim/internal/sim"
)

func chemostatSystem(t *testing.T, p models.Params, d float64) dynamo.System {
	t.Helper()
	chem, err := control.NewChemostat(d)
	if err != nil {
		t.Fatal(err)
	}
	return sim.ClosedLoop(models.NewDroop(p), chem)
}

func TestChemostatEquilibrium(t *testing.T) {
	p := models.DefaultParams()
	eq, err := ChemostatEquilibrium(p, 0.5)
	if err != nil {
		t.Fatalf("equilibrium failed: %v", err)
	}
	if eq.Washout {
		t.Fatal("unexpected washout at d=0.5")
	}

	wantQ := 0.2
	wantR := 0.5 * 0.2 / (2 - 0.5*0.2)
	wantX := (1 - wantR) / wantQ
	if math.Abs(eq.Q-wantQ) > 1e-12 || math.Abs(eq.R-wantR) > 1e-12 || math.Abs(eq.X-wantX) > 1e-12 {
		t.Errorf("got (%f, %f, %f), want (%f, %f, %f)", eq.R, eq.Q, eq.X, wantR, wantQ, wantX)
	}

	mu, _ := models.Growth(eq.Q, p.MuMax, p.QMin)
	if math.Abs(mu-0.5) > 1e-12 {
		t.Errorf("expected growth to balance dilution, got mu=%f", mu)
	}

	dx, err := chemostatSystem(t, p, 0.5).Derive(eq.State(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if dx.Norm() > 1e-12 {
		t.Errorf("expected zero derivative at equilibrium, got %v", dx)
	}
}

func TestChemostatWashout(t *testing.T) {
	p := models.DefaultParams()

	dc, err := CriticalDilution(p)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(dc-1/1.1) > 1e-12 {
		t.Errorf("expected critical dilution %f, got %f", 1/1.1, dc)
	}

	for _, d := range []float64{0.95, 1.0, 3.0} {
		eq, err := ChemostatEquilibrium(p, d)
		if err != nil {
			t.Fatalf("d=%g: %v", d, err)
		}
		if !eq.Washout || eq.X != 0 || eq.R != p.Rs {
			t.Errorf("d=%g: expected washout at (Rs, Qw, 0), got %+v", d, eq)
		}
		dx, err := chemostatSystem(t, p, d).Derive(eq.State(), nil, 0)
		if err != nil {
			t.Fatal(err)
		}
		if dx.Norm() > 1e-12 {
			t.Errorf("d=%g: washout state is not stationary: %v", d, dx)
		}
	}

	eq, err := ChemostatEquilibrium(p, 0.85)
	if err != nil || eq.Washout {
		t.Errorf("expected interior equilibrium just below %f, got %+v, %v", dc, eq, err)
	}
}

func TestChemostatEquilibriumErrors(t *testing.T) {
	p := models.DefaultParams()
	for _, d := range []float64{0, -0.1, math.NaN()} {
		if _, err := ChemostatEquilibrium(p, d); !errors.Is(err, dynamo.ErrConfiguration) {
			t.Errorf("d=%g: expected configuration error, got %v", d, err)
		}
	}
	p.Km = 0
	if _, err := ChemostatEquilibrium(p, 0.5); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected invalid params to be rejected, got %v", err)
	}
}

func TestJacobianMatchesAnalytic(t *testing.T) {
	p := models.DefaultParams()
	d := 0.5
	x := dynamo.State{0.4, 0.6, 1.5}

	jac, err := Jacobian(chemostatSystem(t, p, d), x, 0)
	if err != nil {
		t.Fatal(err)
	}

	r, q, n := x[0], x[1], x[2]
	rho := p.VMax * r / (p.Km + r)
	rhoR := p.VMax * p.Km / ((p.Km + r) * (p.Km + r))
	mu := p.MuMax * (1 - p.QMin/q)
	muQ := p.MuMax * p.QMin / (q * q)
	want := [3][3]float64{
		{-d - rhoR*n, 0, -rho},
		{rhoR, -mu - muQ*q, 0},
		{0, n * muQ, mu - d},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if got := jac.At(i, j); math.Abs(got-want[i][j]) > 1e-6 {
				t.Errorf("J[%d][%d] = %f, want %f", i, j, got, want[i][j])
			}
		}
	}
}

func TestLocalStability(t *testing.T) {
	p := models.DefaultParams()
	eq, err := ChemostatEquilibrium(p, 0.5)
	if err != nil {
		t.Fatal(err)
	}

	st, err := LocalStability(chemostatSystem(t, p, 0.5), eq.State())
	if err != nil {
		t.Fatalf("stability failed: %v", err)
	}
	if !st.Stable() {
		t.Errorf("expected stable interior equilibrium, eigenvalues %v", st.Eigenvalues)
	}
	if len(st.Eigenvalues) != 3 {
		t.Fatalf("expected 3 eigenvalues, got %d", len(st.Eigenvalues))
	}

	// total mass relaxes at rate d
	found := false
	for _, v := range st.Eigenvalues {
		if math.Abs(real(v)+0.5) < 1e-5 && math.Abs(imag(v)) < 1e-5 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected eigenvalue -d among %v", st.Eigenvalues)
	}

	// below the critical rate the washout state invades
	wash, err := washout(p, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	st, err = LocalStability(chemostatSystem(t, p, 0.5), wash.State())
	if err != nil {
		t.Fatal(err)
	}
	if st.Stable() {
		t.Errorf("expected unstable washout state, eigenvalues %v", st.Eigenvalues)
	}
}

func TestLyapunovAgreesWithEigenvalues(t *testing.T) {
	p := models.DefaultParams()
	eq, err := ChemostatEquilibrium(p, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	sys := chemostatSystem(t, p, 0.5)

	st, err := LocalStability(sys, eq.State())
	if err != nil {
		t.Fatal(err)
	}

	lambda, err := LyapunovExponent(sys, integrators.NewRK4(), eq.State(), 0.01, 100, 1e-7)
	if err != nil {
		t.Fatalf("lyapunov failed: %v", err)
	}
	if lambda >= 0 {
		t.Errorf("expected negative exponent near a stable equilibrium, got %f", lambda)
	}

	minReal := real(st.Eigenvalues[len(st.Eigenvalues)-1])
	if lambda < minReal-0.1 || lambda > st.MaxReal+0.1 {
		t.Errorf("exponent %f outside eigenvalue range [%f, %f]", lambda, minReal, st.MaxReal)
	}

	if _, err := LyapunovExponent(sys, integrators.NewRK4(), eq.State(), 0, 1, 1e-7); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected configuration error for dt=0, got %v", err)
	}
}

func semiContinuousRun(t *testing.T, tFinal float64) *sim.Trajectory {
	t.Helper()
	transfer, err := control.NewTransferToTarget(1, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	s := sim.New(integrators.NewRK45(), dynamo.DefaultConfig())
	tr, err := s.Run(context.Background(), sim.Request{
		Params:   models.DefaultParams(),
		Initial:  dynamo.State{1, 1, 1},
		Transfer: &transfer,
		TFinal:   tFinal,
		Samples:  11,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return tr
}

func TestPeriodicState(t *testing.T) {
	report, err := PeriodicState(semiContinuousRun(t, 40), 1e-4)
	if err != nil {
		t.Fatalf("periodic state failed: %v", err)
	}
	if report.Cycles != 39 {
		t.Errorf("expected 39 dilutions, got %d", report.Cycles)
	}
	if !report.Converged {
		t.Errorf("expected convergence, residual %e", report.Residual)
	}
	if report.Ratio <= 0 || report.Ratio >= 1 {
		t.Errorf("expected contraction ratio in (0, 1), got %f", report.Ratio)
	}

	if _, err := PeriodicState(semiContinuousRun(t, 2), 1e-4); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected configuration error for a short run, got %v", err)
	}
}

func TestTurbidostatBand(t *testing.T) {
	policy, err := control.NewTurbidostat(2, 1)
	if err != nil {
		t.Fatal(err)
	}
	tr := &sim.Trajectory{Points: []sim.Point{
		{T: 0, X: 0.5},
		{T: 1, X: 1.95},
		{T: 2, X: 2.0},
		{T: 3, X: 2.2},
		{T: 4, X: 2.05},
	}}

	report := TurbidostatBand(tr, policy, 1)
	if report.Samples != 4 || report.Inside != 3 {
		t.Errorf("expected 3 of 4 samples inside, got %+v", report)
	}
	if report.Fraction != 0.75 {
		t.Errorf("expected fraction 0.75, got %f", report.Fraction)
	}
	if report.MinX != 1.95 || report.MaxX != 2.2 {
		t.Errorf("unexpected range [%f, %f]", report.MinX, report.MaxX)
	}
}

func TestDominantPeriod(t *testing.T) {
	tr := &sim.Trajectory{}
	for i := 0; i < 500; i++ {
		ti := 0.1 * float64(i)
		tr.Points = append(tr.Points, sim.Point{T: ti, X: 1 + 0.5*math.Sin(2*math.Pi*ti/5)})
	}

	osc, err := DominantPeriod(tr, "X", 0)
	if err != nil {
		t.Fatalf("dominant period failed: %v", err)
	}
	if math.Abs(osc.Period-5) > 1e-9 {
		t.Errorf("expected period 5, got %f", osc.Period)
	}
	if math.Abs(osc.Amplitude-0.5) > 1e-6 {
		t.Errorf("expected amplitude 0.5, got %f", osc.Amplitude)
	}

	flat := &sim.Trajectory{}
	for i := 0; i < 16; i++ {
		flat.Points = append(flat.Points, sim.Point{T: float64(i), X: 3})
	}
	osc, err = DominantPeriod(flat, "X", 0)
	if err != nil || osc.Period != 0 {
		t.Errorf("expected no oscillation in a flat signal, got %+v, %v", osc, err)
	}

	if _, err := DominantPeriod(tr, "theta", 0); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected configuration error for unknown column, got %v", err)
	}

	if _, err := DominantPeriod(semiContinuousRun(t, 5), "X", 0); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected uneven sampling to be rejected, got %v", err)
	}
}

func TestPhasePortrait(t *testing.T) {
	tr := semiContinuousRun(t, 3)

	portrait, err := PhasePortrait(tr, "Q", "X")
	if err != nil {
		t.Fatalf("portrait failed: %v", err)
	}
	if len(portrait.Points) != tr.Len() {
		t.Errorf("expected %d points, got %d", tr.Len(), len(portrait.Points))
	}

	out := PhasePortraitToASCII(portrait, 40, 12)
	if !strings.Contains(out, "o") || !strings.Contains(out, "*") {
		t.Errorf("expected start and end markers in:\n%s", out)
	}
	if !strings.HasPrefix(out, "X [") {
		t.Errorf("expected y label first, got %q", strings.SplitN(out, "\n", 2)[0])
	}

	if _, err := PhasePortrait(tr, "Q", "omega"); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestSweep(t *testing.T) {
	ens := sim.NewEnsemble(func() *sim.Simulator {
		return sim.New(integrators.NewRK45(), dynamo.DefaultConfig())
	}, 0)

	points, err := Sweep(context.Background(), ens, SweepConfig{
		Params:    models.DefaultParams(),
		Initial:   dynamo.State{1, 1, 1},
		DMin:      0.2,
		DMax:      0.6,
		Steps:     3,
		TFinal:    200,
		Samples:   201,
		Transient: 150,
	})
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}

	for _, pt := range points {
		if math.Abs(pt.Final.X-pt.Equilibrium.X) > 1e-3*pt.Equilibrium.X {
			t.Errorf("d=%g: simulated X=%f, equilibrium X=%f", pt.D, pt.Final.X, pt.Equilibrium.X)
		}
		if pt.MaxReal >= 0 {
			t.Errorf("d=%g: expected stable equilibrium, max real part %f", pt.D, pt.MaxReal)
		}
		if pt.MaxX-pt.MinX > 1e-2 {
			t.Errorf("d=%g: density still moving after transient: [%f, %f]", pt.D, pt.MinX, pt.MaxX)
		}
	}
	if !(points[0].Final.X > points[2].Final.X) {
		t.Error("expected density to fall with dilution rate")
	}

	if _, err := Sweep(context.Background(), ens, SweepConfig{DMin: 0.5, DMax: 0.2, Steps: 3}); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestChemostatStability(t *testing.T) {
	p := models.DefaultParams()

	eq, st, err := ChemostatStability(p, 0.5)
	if err != nil {
		t.Fatalf("stability failed: %v", err)
	}
	if eq.Washout || math.Abs(eq.Q-0.2) > 1e-12 {
		t.Errorf("expected interior equilibrium with Q*=0.2, got %+v", eq)
	}
	if !st.Stable() {
		t.Errorf("expected stable equilibrium, eigenvalues %v", st.Eigenvalues)
	}

	eq, st, err = ChemostatStability(p, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	if !eq.Washout || !st.Stable() {
		t.Errorf("expected a stable washout above the critical rate, got %+v max real %g", eq, st.MaxReal)
	}

	if _, _, err := ChemostatStability(p, 0); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected configuration error for d=0, got %v", err)
	}
}
