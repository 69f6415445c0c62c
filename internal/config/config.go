package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/phytosim/internal/control"
	"github.com/san-kum/phytosim/internal/dynamo"
	"github.com/san-kum/phytosim/internal/models"
	"github.com/san-kum/phytosim/internal/sim"
)

const (
	DefaultIntegrator = "rk45"
	DefaultTFinal     = 10.0
	DefaultSamples    = 201
	DefaultD          = 0.5
	DefaultXStar      = 2.0
	DefaultPeriod     = 1.0
)

// Config is the user-facing description of one simulation. It decodes from
// YAML files, JSON request bodies and CLI flags alike.
type Config struct {
	Regime     string `yaml:"regime" json:"regime"`
	Integrator string `yaml:"integrator" json:"integrator"`

	MuMax       float64  `yaml:"mu_max" json:"mu_max"`
	VMax        float64  `yaml:"v_max" json:"v_max"`
	Km          float64  `yaml:"k_m" json:"k_m"`
	QMin        float64  `yaml:"q_min" json:"q_min"`
	Rs          float64  `yaml:"rs" json:"rs"`
	R0          *float64 `yaml:"r0,omitempty" json:"r0,omitempty"`
	QuotaPolicy string   `yaml:"quota_policy,omitempty" json:"quota_policy,omitempty"`

	// chemostat
	D float64 `yaml:"d" json:"d"`
	// turbidostat and semi-continuous target density
	XStar      float64  `yaml:"x_star" json:"x_star"`
	Log10XStar *float64 `yaml:"log10_x_star,omitempty" json:"log10_x_star,omitempty"`
	BandLow    float64  `yaml:"band_low" json:"band_low"`
	BandHigh   float64  `yaml:"band_high" json:"band_high"`
	// semi-continuous
	Period float64 `yaml:"period" json:"period"`
	DF     float64 `yaml:"df,omitempty" json:"df,omitempty"`

	TFinal      float64      `yaml:"t_final" json:"t_final"`
	Initial     InitialState `yaml:"initial" json:"initial"`
	Samples     int          `yaml:"samples" json:"samples"`
	Tolerance   float64      `yaml:"tolerance" json:"tolerance"`
	MaxSegments int          `yaml:"max_segments" json:"max_segments"`
}

type InitialState struct {
	R float64 `yaml:"r" json:"r"`
	Q float64 `yaml:"q" json:"q"`
	X float64 `yaml:"x" json:"x"`
}

func DefaultConfig() *Config {
	p := models.DefaultParams()
	sc := dynamo.DefaultConfig()
	return &Config{
		Regime:      string(control.RegimeBatch),
		Integrator:  DefaultIntegrator,
		MuMax:       p.MuMax,
		VMax:        p.VMax,
		Km:          p.Km,
		QMin:        p.QMin,
		Rs:          p.Rs,
		QuotaPolicy: string(p.QuotaPolicy),
		D:           DefaultD,
		XStar:       DefaultXStar,
		BandLow:     control.DefaultBandLow,
		BandHigh:    control.DefaultBandHigh,
		Period:      DefaultPeriod,
		TFinal:      DefaultTFinal,
		Initial:     InitialState{R: 1, Q: 1, X: 1},
		Samples:     DefaultSamples,
		Tolerance:   sc.Tolerance,
		MaxSegments: sc.MaxSegments,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults, so a file only names what it
// changes.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	if c.R0 != nil {
		v := *c.R0
		out.R0 = &v
	}
	if c.Log10XStar != nil {
		v := *c.Log10XStar
		out.Log10XStar = &v
	}
	return &out
}

// ModelParams resolves the parameter set, honouring the r0 alias of rs.
func (c *Config) ModelParams() (models.Params, error) {
	p := models.Params{
		MuMax:       c.MuMax,
		VMax:        c.VMax,
		Km:          c.Km,
		QMin:        c.QMin,
		Rs:          c.Rs,
		QuotaPolicy: models.QuotaPolicy(c.QuotaPolicy),
	}
	if c.R0 != nil {
		p.Rs = *c.R0
	}
	if p.QuotaPolicy == "" {
		p.QuotaPolicy = models.QuotaExtrapolate
	}
	return p, p.Validate()
}

// TargetDensity returns x_star, or 10^log10_x_star when that is given.
func (c *Config) TargetDensity() float64 {
	if c.Log10XStar != nil {
		return math.Pow(10, *c.Log10XStar)
	}
	return c.XStar
}

// SimConfig is the integration budget for this configuration.
func (c *Config) SimConfig() dynamo.Config {
	sc := dynamo.DefaultConfig()
	if c.Tolerance > 0 {
		sc.Tolerance = c.Tolerance
	}
	if c.MaxSegments > 0 {
		sc.MaxSegments = c.MaxSegments
	}
	return sc
}

// Validate checks every field the chosen regime reads.
func (c *Config) Validate() error {
	_, err := c.ToRequest()
	return err
}

// ToRequest builds the immutable simulation request.
func (c *Config) ToRequest() (sim.Request, error) {
	regime, err := control.ParseRegime(c.Regime)
	if err != nil {
		return sim.Request{}, err
	}
	p, err := c.ModelParams()
	if err != nil {
		return sim.Request{}, err
	}
	if math.IsNaN(c.Tolerance) || c.Tolerance < 0 {
		return sim.Request{}, &dynamo.ConfigError{Field: "tolerance", Value: c.Tolerance, Reason: "must be positive"}
	}

	req := sim.Request{
		Params:  p,
		Initial: dynamo.State{c.Initial.R, c.Initial.Q, c.Initial.X},
		TFinal:  c.TFinal,
		Samples: c.Samples,
	}
	if math.IsNaN(c.TFinal) || math.IsInf(c.TFinal, 0) || c.TFinal <= 0 {
		return sim.Request{}, &dynamo.ConfigError{Field: "t_final", Value: c.TFinal, Reason: "must be positive"}
	}
	if c.Samples < 2 {
		return sim.Request{}, &dynamo.ConfigError{Field: "samples", Value: c.Samples, Reason: "need at least 2 samples"}
	}

	switch regime {
	case control.RegimeBatch:
		req.Policy = control.NewBatch()
	case control.RegimeChemostat:
		chem, err := control.NewChemostat(c.D)
		if err != nil {
			return sim.Request{}, err
		}
		req.Policy = chem
	case control.RegimeTurbidostat:
		turb, err := control.NewTurbidostatBand(c.TargetDensity(), p.MuMax, c.BandLow, c.BandHigh)
		if err != nil {
			return sim.Request{}, err
		}
		req.Policy = turb
	case control.RegimeSemiContinuous:
		var tr control.Transfer
		// any df given selects fraction mode, where out-of-range values are rejected
		if c.DF != 0 {
			tr, err = control.NewTransferFraction(c.Period, c.DF, p.Rs)
		} else {
			tr, err = control.NewTransferToTarget(c.Period, c.TargetDensity(), p.Rs)
		}
		if err != nil {
			return sim.Request{}, err
		}
		req.Transfer = &tr
	}
	return req, nil
}

// Set assigns one numeric setting by its YAML name. Initial components are
// addressed as initial.r, initial.q and initial.x.
func (c *Config) Set(name string, value float64) error {
	switch name {
	case "mu_max":
		c.MuMax = value
	case "v_max":
		c.VMax = value
	case "k_m":
		c.Km = value
	case "q_min":
		c.QMin = value
	case "rs":
		c.Rs = value
		c.R0 = nil
	case "d":
		c.D = value
	case "x_star":
		c.XStar = value
		c.Log10XStar = nil
	case "log10_x_star":
		c.Log10XStar = &value
	case "band_low":
		c.BandLow = value
	case "band_high":
		c.BandHigh = value
	case "period":
		c.Period = value
	case "df":
		c.DF = value
	case "t_final":
		c.TFinal = value
	case "tolerance":
		c.Tolerance = value
	case "initial.r":
		c.Initial.R = value
	case "initial.q":
		c.Initial.Q = value
	case "initial.x":
		c.Initial.X = value
	default:
		return &dynamo.ConfigError{Field: name, Value: value, Reason: "unknown setting"}
	}
	return nil
}
