package config

import (
	"sort"

	"github.com/san-kum/phytosim/internal/control"
)

func preset(regime control.Regime, mutate func(*Config)) *Config {
	c := DefaultConfig()
	c.Regime = string(regime)
	mutate(c)
	return c
}

// Presets holds ready-made configurations keyed by regime and name.
var Presets = map[string]map[string]*Config{
	string(control.RegimeBatch): {
		"starve": preset(control.RegimeBatch, func(c *Config) {
			c.TFinal = 10
		}),
		"rich": preset(control.RegimeBatch, func(c *Config) {
			c.Initial = InitialState{R: 10, Q: 0.5, X: 0.1}
			c.TFinal = 20
		}),
		"clamped": preset(control.RegimeBatch, func(c *Config) {
			c.QuotaPolicy = "clamp"
			c.Initial = InitialState{R: 0.5, Q: 0.05, X: 1}
			c.TFinal = 20
		}),
	},
	string(control.RegimeChemostat): {
		"steady": preset(control.RegimeChemostat, func(c *Config) {
			c.D = 0.5
			c.TFinal = 100
		}),
		"slow": preset(control.RegimeChemostat, func(c *Config) {
			c.D = 0.1
			c.TFinal = 200
		}),
		"washout": preset(control.RegimeChemostat, func(c *Config) {
			c.D = 1.5
			c.TFinal = 40
		}),
	},
	string(control.RegimeTurbidostat): {
		"hold": preset(control.RegimeTurbidostat, func(c *Config) {
			c.XStar = 2
			c.Initial = InitialState{R: 1, Q: 0.5, X: 0.5}
			c.TFinal = 100
			c.Samples = 1001
		}),
		"narrow": preset(control.RegimeTurbidostat, func(c *Config) {
			c.XStar = 2
			c.BandLow, c.BandHigh = 0.99, 1.01
			c.Initial = InitialState{R: 1, Q: 0.5, X: 0.5}
			c.TFinal = 100
			c.Samples = 1001
		}),
	},
	string(control.RegimeSemiContinuous): {
		"daily": preset(control.RegimeSemiContinuous, func(c *Config) {
			c.XStar = 1
			c.Period = 1
			c.TFinal = 30
			c.Samples = 21
		}),
		"halving": preset(control.RegimeSemiContinuous, func(c *Config) {
			c.DF = 0.5
			c.Period = 2
			c.TFinal = 40
			c.Samples = 21
		}),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(regime, name string) *Config {
	r, err := control.ParseRegime(regime)
	if err != nil {
		return nil
	}
	regimePresets, ok := Presets[string(r)]
	if !ok {
		return nil
	}
	cfg, ok := regimePresets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

// ListPresets returns the preset names of a regime in sorted order.
func ListPresets(regime string) []string {
	r, err := control.ParseRegime(regime)
	if err != nil {
		return nil
	}
	regimePresets, ok := Presets[string(r)]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(regimePresets))
	for name := range regimePresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
