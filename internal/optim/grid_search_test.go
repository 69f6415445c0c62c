package optim

import (
	"context"
	"testing"

	"github.com/san-kum/phytosim/internal/config"
	"github.com/san-kum/phytosim/internal/experiment"
)

func chemostatBase() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Regime = "chemostat"
	cfg.TFinal = 200
	cfg.Samples = 11
	return cfg
}

func TestGridSearchDensity(t *testing.T) {
	g := NewGridSearch([]string{"d"}, [][]float64{{-1, 0.2, 0.5, 0.8}})

	res, err := g.Search(context.Background(), chemostatBase(), experiment.NewRegistry(), Objective{Name: "X", Maximize: true})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if res.Params["d"] != 0.2 {
		t.Errorf("slowest dilution should carry the densest culture, got d=%f", res.Params["d"])
	}
	if res.Evaluated != 4 || res.Failed != 1 {
		t.Errorf("expected 4 evaluated and 1 failed, got %d/%d", res.Evaluated, res.Failed)
	}

	res, err = g.Search(context.Background(), chemostatBase(), experiment.NewRegistry(), Objective{Name: "X"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Params["d"] != 0.8 {
		t.Errorf("expected d=0.8 to minimize density, got %f", res.Params["d"])
	}
}

func TestGridSearchErrors(t *testing.T) {
	ctx := context.Background()
	reg := experiment.NewRegistry()

	if _, err := NewGridSearch(nil, nil).Search(ctx, chemostatBase(), reg, Objective{Name: "X"}); err == nil {
		t.Error("expected error for an empty grid")
	}
	if _, err := NewGridSearch([]string{"gain"}, [][]float64{{1}}).Search(ctx, chemostatBase(), reg, Objective{Name: "X"}); err == nil {
		t.Error("expected error for an unknown setting")
	}
	if _, err := NewGridSearch([]string{"d"}, [][]float64{{0.5}}).Search(ctx, chemostatBase(), reg, Objective{Name: "nope"}); err == nil {
		t.Error("expected error when no point yields the objective")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := NewGridSearch([]string{"d"}, [][]float64{{0.5}}).Search(cancelled, chemostatBase(), reg, Objective{Name: "X"}); err == nil {
		t.Error("expected error for a cancelled context")
	}
}

func TestParseRange(t *testing.T) {
	name, values, err := ParseRange("d=0.1:0.5:5")
	if err != nil {
		t.Fatal(err)
	}
	if name != "d" || len(values) != 5 {
		t.Fatalf("unexpected range %s %v", name, values)
	}
	if values[0] != 0.1 || values[4] != 0.5 {
		t.Errorf("expected endpoints 0.1 and 0.5, got %v", values)
	}

	if _, values, _ := ParseRange("period=2:9:1"); len(values) != 1 || values[0] != 2 {
		t.Errorf("single value range should hold the start, got %v", values)
	}

	for _, bad := range []string{"d", "=1:2:3", "d=1:2", "d=a:2:3", "d=1:2:0"} {
		if _, _, err := ParseRange(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
