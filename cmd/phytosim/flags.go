package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/san-kum/phytosim/internal/config"
	"github.com/san-kum/phytosim/internal/control"
	"github.com/san-kum/phytosim/internal/models"
)

// addParamFlags registers the Droop parameters.
func addParamFlags(cmd *cobra.Command) {
	p := models.DefaultParams()
	cmd.Flags().Float64Var(&muMax, "mu-max", p.MuMax, "maximum growth rate")
	cmd.Flags().Float64Var(&vMax, "v-max", p.VMax, "maximum uptake rate")
	cmd.Flags().Float64Var(&km, "km", p.Km, "uptake half-saturation constant")
	cmd.Flags().Float64Var(&qMin, "q-min", p.QMin, "subsistence quota")
	cmd.Flags().Float64Var(&rs, "rs", p.Rs, "resource concentration of the inflowing medium")
}

// addConfigFlags registers everything resolveConfig reads. Flags override the
// preset or config file only when given explicitly.
func addConfigFlags(cmd *cobra.Command) {
	def := config.DefaultConfig()
	addParamFlags(cmd)
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML config file")
	cmd.Flags().StringVarP(&preset, "preset", "p", "", "named preset of the regime")
	cmd.MarkFlagsMutuallyExclusive("config", "preset")

	cmd.Flags().StringVar(&integrator, "integrator", def.Integrator, "integrator (see `phytosim integrators`)")
	cmd.Flags().Float64Var(&dilution, "d", def.D, "chemostat dilution rate")
	cmd.Flags().Float64Var(&xStar, "x-star", def.XStar, "target density (turbidostat, semi-continuous)")
	cmd.Flags().Float64Var(&period, "period", def.Period, "transfer period (semi-continuous)")
	cmd.Flags().Float64Var(&df, "df", 0, "fixed retained fraction per transfer instead of a target density")
	cmd.Flags().Float64Var(&r0, "r0", def.Initial.R, "initial free resource")
	cmd.Flags().Float64Var(&q0, "q0", def.Initial.Q, "initial quota")
	cmd.Flags().Float64Var(&x0, "x0", def.Initial.X, "initial density")
	cmd.Flags().Float64VarP(&tFinal, "t-final", "t", def.TFinal, "simulated time")
	cmd.Flags().IntVarP(&samples, "samples", "n", def.Samples, "output samples (per segment when semi-continuous)")
	cmd.Flags().Float64Var(&tolerance, "tol", def.Tolerance, "adaptive step tolerance")
}

// resolveConfig starts from the defaults, a preset or a config file, sets
// the regime from the positional argument and applies explicit flags.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	regime := ""
	if len(args) == 1 {
		r, err := control.ParseRegime(args[0])
		if err != nil {
			return nil, err
		}
		regime = string(r)
	}

	switch {
	case preset != "":
		if regime == "" {
			return nil, fmt.Errorf("--preset needs a regime argument")
		}
		cfg = config.GetPreset(regime, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %q for %s (available: %v)", preset, regime, config.ListPresets(regime))
		}
	case configFile != "":
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if regime != "" {
		cfg.Regime = regime
	}

	applyParamFlags(cmd, cfg)
	f := cmd.Flags()
	if f.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if f.Changed("d") {
		cfg.D = dilution
	}
	if f.Changed("x-star") {
		cfg.XStar = xStar
		cfg.Log10XStar = nil
	}
	if f.Changed("period") {
		cfg.Period = period
	}
	if f.Changed("df") {
		cfg.DF = df
	}
	if f.Changed("r0") {
		cfg.Initial.R = r0
	}
	if f.Changed("q0") {
		cfg.Initial.Q = q0
	}
	if f.Changed("x0") {
		cfg.Initial.X = x0
	}
	if f.Changed("t-final") {
		cfg.TFinal = tFinal
	}
	if f.Changed("samples") {
		cfg.Samples = samples
	}
	if f.Changed("tol") {
		cfg.Tolerance = tolerance
	}
	return cfg, cfg.Validate()
}

func applyParamFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("mu-max") {
		cfg.MuMax = muMax
	}
	if f.Changed("v-max") {
		cfg.VMax = vMax
	}
	if f.Changed("km") {
		cfg.Km = km
	}
	if f.Changed("q-min") {
		cfg.QMin = qMin
	}
	if f.Changed("rs") {
		cfg.Rs = rs
		cfg.R0 = nil
	}
}
