package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/san-kum/phytosim/internal/analysis"
	"github.com/san-kum/phytosim/internal/config"
	"github.com/san-kum/phytosim/internal/control"
	"github.com/san-kum/phytosim/internal/dynamo"
	"github.com/san-kum/phytosim/internal/export"
	"github.com/san-kum/phytosim/internal/sim"
	"github.com/san-kum/phytosim/internal/viz"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.Is(err, dynamo.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, dynamo.ErrDomain),
		errors.Is(err, dynamo.ErrDegenerateDilution),
		errors.Is(err, dynamo.ErrIntegration):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error(), "request_id": GetRequestID(c)})
}

// decodeConfig layers an optional preset (?regime=&preset=) and the JSON
// body over the defaults.
func (s *Server) decodeConfig(c *gin.Context) (*config.Config, bool) {
	cfg := config.DefaultConfig()
	if name := c.Query("preset"); name != "" {
		regime := c.Query("regime")
		cfg = config.GetPreset(regime, name)
		if cfg == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown preset %s/%s", regime, name)})
			return nil, false
		}
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return nil, false
		}
	}
	if cfg.Samples > s.opts.MaxSamples {
		writeError(c, &dynamo.ConfigError{Field: "samples", Value: cfg.Samples, Reason: fmt.Sprintf("at most %d per request", s.opts.MaxSamples)})
		return nil, false
	}
	if cfg.MaxSegments <= 0 || cfg.MaxSegments > s.opts.MaxSegments {
		cfg.MaxSegments = s.opts.MaxSegments
	}
	req, err := cfg.ToRequest()
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if n := req.Segments(); !(n <= float64(cfg.MaxSegments)) {
		writeError(c, &dynamo.ConfigError{Field: "period", Value: cfg.Period, Reason: fmt.Sprintf("%.4g segments exceed the limit of %d", n, cfg.MaxSegments)})
		return nil, false
	}
	if n := req.Points(); !(n <= float64(s.opts.MaxPoints)) {
		writeError(c, &dynamo.ConfigError{Field: "samples", Value: n, Reason: fmt.Sprintf("run would produce %.4g points, at most %d per request", n, s.opts.MaxPoints)})
		return nil, false
	}
	return cfg, true
}

func (s *Server) run(c *gin.Context, cfg *config.Config) (*sim.Trajectory, bool) {
	regime := cfg.Regime
	if r, err := control.ParseRegime(cfg.Regime); err == nil {
		regime = string(r)
	}

	s.metrics.inflight.Inc()
	start := time.Now()
	tr, err := s.opts.Run(c.Request.Context(), cfg)
	s.metrics.inflight.Dec()

	if err != nil {
		s.metrics.observe(regime, "error", time.Since(start).Seconds(), 0)
		writeError(c, err)
		return nil, false
	}
	s.metrics.observe(regime, "ok", time.Since(start).Seconds(), tr.Len())
	return tr, true
}

func (s *Server) simulate(c *gin.Context) {
	cfg, ok := s.decodeConfig(c)
	if !ok {
		return
	}
	tr, ok := s.run(c, cfg)
	if !ok {
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "csv":
		c.Header("Content-Type", "text/csv")
		c.Status(http.StatusOK)
		if err := export.WriteCSV(c.Writer, tr); err != nil {
			c.Error(err)
		}
	default:
		params, _ := cfg.ModelParams()
		info := export.RunInfo{
			ID:         GetRequestID(c),
			Integrator: cfg.Integrator,
			Params:     params,
			Timestamp:  time.Now().UTC(),
		}
		c.JSON(http.StatusOK, export.NewDocument(info, tr))
	}
}

type plotQuery struct {
	Format  string   `form:"format"`
	Columns []string `form:"column"`
	Title   string   `form:"title"`
}

func (s *Server) plot(c *gin.Context) {
	q := plotQuery{Format: "svg"}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.Format != "svg" && q.Format != "png" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be svg or png"})
		return
	}

	cfg, ok := s.decodeConfig(c)
	if !ok {
		return
	}
	tr, ok := s.run(c, cfg)
	if !ok {
		return
	}

	if q.Title == "" {
		q.Title = cfg.Regime
	}
	p, err := viz.TrajectoryPlot(tr, q.Title, q.Columns)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contentType := "image/svg+xml"
	if q.Format == "png" {
		contentType = "image/png"
	}
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if err := viz.Render(c.Writer, p, q.Format); err != nil {
		c.Error(err)
	}
}

func (s *Server) listPresets(c *gin.Context) {
	out := make(map[string][]string)
	for _, r := range control.Regimes() {
		out[string(r)] = config.ListPresets(string(r))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) regimePresets(c *gin.Context) {
	regime := c.Param("regime")
	if _, err := control.ParseRegime(regime); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, config.ListPresets(regime))
}

func (s *Server) getPreset(c *gin.Context) {
	cfg := config.GetPreset(c.Param("regime"), c.Param("name"))
	if cfg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "preset not found"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

type equilibriumQuery struct {
	D     float64 `form:"d"`
	MuMax float64 `form:"mu_max"`
	VMax  float64 `form:"v_max"`
	Km    float64 `form:"k_m"`
	QMin  float64 `form:"q_min"`
	Rs    float64 `form:"rs"`
}

type equilibriumResponse struct {
	Equilibrium analysis.Equilibrium `json:"equilibrium"`
	Critical    float64              `json:"critical_dilution"`
	Eigenvalues [][2]float64         `json:"eigenvalues"`
	MaxReal     float64              `json:"max_real"`
	Stable      bool                 `json:"stable"`
}

func (s *Server) equilibrium(c *gin.Context) {
	defaults := config.DefaultConfig()
	q := equilibriumQuery{
		D:     defaults.D,
		MuMax: defaults.MuMax,
		VMax:  defaults.VMax,
		Km:    defaults.Km,
		QMin:  defaults.QMin,
		Rs:    defaults.Rs,
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg := defaults.Clone()
	cfg.MuMax, cfg.VMax, cfg.Km, cfg.QMin, cfg.Rs = q.MuMax, q.VMax, q.Km, q.QMin, q.Rs
	p, err := cfg.ModelParams()
	if err != nil {
		writeError(c, err)
		return
	}

	eq, st, err := analysis.ChemostatStability(p, q.D)
	if err != nil {
		writeError(c, err)
		return
	}
	crit, err := analysis.CriticalDilution(p)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := equilibriumResponse{
		Equilibrium: eq,
		Critical:    crit,
		Eigenvalues: make([][2]float64, len(st.Eigenvalues)),
		MaxReal:     st.MaxReal,
		Stable:      st.Stable(),
	}
	for i, v := range st.Eigenvalues {
		resp.Eigenvalues[i] = [2]float64{real(v), imag(v)}
	}
	c.JSON(http.StatusOK, resp)
}
