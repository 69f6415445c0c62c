package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/san-kum/phytosim/internal/config"
	"github.com/san-kum/phytosim/internal/dynamo"
	"github.com/san-kum/phytosim/internal/experiment"
	"github.com/san-kum/phytosim/internal/sim"
)

const (
	DefaultAddr       = ":8080"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxSamples = 100000
	DefaultMaxPoints  = 2_000_000
)

// Runner simulates one validated configuration.
type Runner func(ctx context.Context, cfg *config.Config) (*sim.Trajectory, error)

type Options struct {
	Addr    string
	Timeout time.Duration
	// MaxSamples caps samples per request, or per segment in the
	// semi-continuous regime.
	MaxSamples int
	// MaxPoints caps the total samples of one run across all segments.
	MaxPoints int
	// MaxSegments caps semi-continuous segments. A request may lower it;
	// larger values are clamped.
	MaxSegments int
	// Run defaults to experiment.Simulate.
	Run Runner
}

type Server struct {
	opts    Options
	metrics *Metrics
	router  *gin.Engine
}

func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = DefaultMaxSamples
	}
	if opts.MaxPoints <= 0 {
		opts.MaxPoints = DefaultMaxPoints
	}
	if opts.MaxSegments <= 0 {
		opts.MaxSegments = dynamo.DefaultConfig().MaxSegments
	}
	if opts.Run == nil {
		opts.Run = experiment.Simulate
	}
	s := &Server{opts: opts, metrics: NewMetrics()}
	s.router = s.setupRouter()
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(Logger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))

	api := router.Group("/v1")
	api.Use(Timeout(s.opts.Timeout))
	{
		api.POST("/simulate", s.simulate)
		api.POST("/plot", s.plot)
		api.GET("/presets", s.listPresets)
		api.GET("/presets/:regime", s.regimePresets)
		api.GET("/presets/:regime/:name", s.getPreset)
		api.GET("/equilibrium", s.equilibrium)
	}
	return router
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", s.opts.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Println("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Println("server exited")
	return nil
}
