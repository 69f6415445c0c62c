package control

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/phytosim/internal/dynamo"
)

func TestBatch(t *testing.T) {
	u := NewBatch().Compute(dynamo.State{1.0, 2.0, 3.0}, 5.0)

	if len(u) != 1 {
		t.Fatalf("expected 1 control, got %d", len(u))
	}
	if u[0] != 0 {
		t.Errorf("batch dilution should be 0, got %f", u[0])
	}
}

func TestChemostat(t *testing.T) {
	c, err := NewChemostat(0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, x := range []dynamo.State{{0, 1, 0}, {5, 2, 100}} {
		if u := c.Compute(x, 1.0); u[0] != 0.3 {
			t.Errorf("expected constant dilution 0.3, got %f", u[0])
		}
	}

	if _, err := NewChemostat(-0.1); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestTurbidostatRamp(t *testing.T) {
	p, err := NewTurbidostat(10, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		x    float64
		want float64
	}{
		{0, 0},
		{9.49, 0},
		{9.5, 0},
		{10, 1.0},
		{10.25, 1.5},
		{10.5, 2.0},
		{50, 2.0},
	}
	for _, tt := range tests {
		got := p.Compute(dynamo.State{1, 1, tt.x}, 0)[0]
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("rate at X=%g: got %f, want %f", tt.x, got, tt.want)
		}
	}
}

func TestTurbidostatContinuous(t *testing.T) {
	p, _ := NewTurbidostat(1, 1.0)
	prev := p.Rate(0.9)
	for x := 0.9; x <= 1.1; x += 1e-4 {
		r := p.Rate(x)
		if math.Abs(r-prev) > 1e-2 {
			t.Fatalf("ramp jumps at X=%f: %f -> %f", x, prev, r)
		}
		prev = r
	}
}

func TestTurbidostatBandValidation(t *testing.T) {
	if _, err := NewTurbidostatBand(1, 1, 1.1, 0.9); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected inverted band to be rejected, got %v", err)
	}
	if _, err := NewTurbidostat(0, 1); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected zero target to be rejected, got %v", err)
	}
}

func TestTransferFraction(t *testing.T) {
	tr, err := NewTransferFraction(5, 0.25, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	next, df, err := tr.Dilute(dynamo.State{2, 0.5, 8})
	if err != nil {
		t.Fatalf("dilute failed: %v", err)
	}
	if df != 0.25 {
		t.Errorf("expected df 0.25, got %f", df)
	}
	want := dynamo.State{0.25*2 + 0.75*4, 0.5, 2}
	for i := range want {
		if math.Abs(next[i]-want[i]) > 1e-12 {
			t.Errorf("state[%d] = %f, want %f", i, next[i], want[i])
		}
	}
}

func TestTransferTarget(t *testing.T) {
	tr, err := NewTransferToTarget(5, 2, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	next, df, err := tr.Dilute(dynamo.State{0.1, 0.5, 8})
	if err != nil {
		t.Fatalf("dilute failed: %v", err)
	}
	if df != 0.25 || next[2] != 2 {
		t.Errorf("expected density reset to target, got df=%f X=%f", df, next[2])
	}

	_, df, _ = tr.Dilute(dynamo.State{0.1, 0.5, 1})
	if df != 1 {
		t.Errorf("expected no transfer below target, got df=%f", df)
	}
}

func TestTransferDegenerate(t *testing.T) {
	tr, _ := NewTransferToTarget(5, 2, 1)
	_, _, err := tr.Dilute(dynamo.State{1, 0.5, 0})

	var de *dynamo.DegenerateDilutionError
	if !errors.As(err, &de) {
		t.Fatalf("expected DegenerateDilutionError, got %v", err)
	}
	if !errors.Is(err, dynamo.ErrDegenerateDilution) {
		t.Error("expected error to match ErrDegenerateDilution")
	}
}

func TestTransferValidation(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"zero period", func() error { _, err := NewTransferFraction(0, 0.5, 1); return err }},
		{"negative period", func() error { _, err := NewTransferToTarget(-1, 1, 1); return err }},
		{"df above one", func() error { _, err := NewTransferFraction(1, 1.5, 1); return err }},
		{"zero df", func() error { _, err := NewTransferFraction(1, 0, 1); return err }},
		{"zero target", func() error { _, err := NewTransferToTarget(1, 0, 1); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, dynamo.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestParseRegime(t *testing.T) {
	tests := map[string]Regime{
		"batch":               RegimeBatch,
		"Chemostat":           RegimeChemostat,
		"turbidostat":         RegimeTurbidostat,
		"semi-continuous":     RegimeSemiContinuous,
		"SemiContinuousBatch": RegimeSemiContinuous,
	}
	for in, want := range tests {
		got, err := ParseRegime(in)
		if err != nil || got != want {
			t.Errorf("ParseRegime(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseRegime("fedbatch"); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
