package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/phytosim/internal/config"
	"github.com/san-kum/phytosim/internal/sim"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := New(Options{})
	w := do(t, s, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err, "every response carries a request id")
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := New(Options{})
	id := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, id)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, id, w.Header().Get(RequestIDHeader))
}

func TestSimulate(t *testing.T) {
	s := New(Options{})

	t.Run("should run a chemostat from a JSON body", func(t *testing.T) {
		w := do(t, s, http.MethodPost, "/v1/simulate", `{"regime":"chemostat","d":0.5,"t_final":5,"samples":11}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var doc struct {
			Run struct {
				ID string `json:"id"`
			} `json:"run"`
			Regime  string `json:"regime"`
			Samples []struct {
				T        float64 `json:"t"`
				Dilution float64 `json:"dilution"`
			} `json:"samples"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
		assert.Equal(t, "chemostat", doc.Regime)
		assert.Len(t, doc.Samples, 11)
		assert.Equal(t, 0.5, doc.Samples[3].Dilution)
		assert.Equal(t, w.Header().Get(RequestIDHeader), doc.Run.ID)
	})

	t.Run("should start from a preset", func(t *testing.T) {
		w := do(t, s, http.MethodPost, "/v1/simulate?regime=semicontinuous&preset=daily", `{"t_final":3}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var doc struct {
			Regime     string         `json:"regime"`
			Boundaries []sim.Boundary `json:"boundaries"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
		assert.Equal(t, "semicontinuous", doc.Regime)
		assert.Len(t, doc.Boundaries, 2)
	})

	t.Run("should stream CSV on request", func(t *testing.T) {
		w := do(t, s, http.MethodPost, "/v1/simulate?format=csv", `{"t_final":1,"samples":3}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
		assert.Len(t, lines, 4)
		assert.True(t, strings.HasPrefix(lines[0], "time,R,Q,X"))
	})
}

func TestSimulateErrors(t *testing.T) {
	s := New(Options{MaxSamples: 1000})

	tests := []struct {
		name   string
		target string
		body   string
		status int
	}{
		{"malformed body", "/v1/simulate", `{"regime":`, http.StatusBadRequest},
		{"unknown regime", "/v1/simulate", `{"regime":"fermenter"}`, http.StatusBadRequest},
		{"negative dilution", "/v1/simulate", `{"regime":"chemostat","d":-1}`, http.StatusBadRequest},
		{"too many samples", "/v1/simulate", `{"samples":5000}`, http.StatusBadRequest},
		{"unknown preset", "/v1/simulate?regime=batch&preset=nope", "", http.StatusNotFound},
		{"empty culture diluted to target", "/v1/simulate", `{"regime":"semicontinuous","initial":{"r":1,"q":1,"x":0},"t_final":3}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestSimulateBudget(t *testing.T) {
	called := 0
	counting := func(ctx context.Context, cfg *config.Config) (*sim.Trajectory, error) {
		called++
		return &sim.Trajectory{}, nil
	}
	s := New(Options{MaxPoints: 10000, MaxSegments: 500, Run: counting})

	tests := []struct {
		name string
		body string
	}{
		{"too many points across segments", `{"regime":"semicontinuous","period":0.0001,"t_final":10,"samples":100000,"df":0.5}`},
		{"points under the sample cap but over the budget", `{"regime":"semicontinuous","period":0.1,"t_final":10,"samples":200,"df":0.5}`},
		{"segments over a raised limit", `{"regime":"semicontinuous","period":0.01,"t_final":10,"samples":2,"df":0.5,"max_segments":100000}`},
		{"segment count beyond int range", `{"regime":"semicontinuous","period":1e-300,"t_final":1,"samples":2,"df":0.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/v1/simulate", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
	assert.Zero(t, called, "rejected requests must not reach the runner")

	t.Run("should clamp the segment limit to the server's", func(t *testing.T) {
		var got int
		s := New(Options{MaxSegments: 500, Run: func(ctx context.Context, cfg *config.Config) (*sim.Trajectory, error) {
			got = cfg.MaxSegments
			return &sim.Trajectory{}, nil
		}})
		w := do(t, s, http.MethodPost, "/v1/simulate", `{"regime":"semicontinuous","period":1,"t_final":10,"df":0.5,"max_segments":100000}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, 500, got)
	})
}

func TestSimulateTimeout(t *testing.T) {
	blocking := func(ctx context.Context, _ *config.Config) (*sim.Trajectory, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s := New(Options{Timeout: 20 * time.Millisecond, Run: blocking})

	w := do(t, s, http.MethodPost, "/v1/simulate", `{"t_final":1}`)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestPlot(t *testing.T) {
	s := New(Options{})

	w := do(t, s, http.MethodPost, "/v1/plot?column=X&column=R", `{"t_final":2,"samples":21}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "<svg")

	w = do(t, s, http.MethodPost, "/v1/plot?format=gif", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPresets(t *testing.T) {
	s := New(Options{})

	w := do(t, s, http.MethodGet, "/v1/presets", "")
	require.Equal(t, http.StatusOK, w.Code)
	var all map[string][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Contains(t, all["chemostat"], "steady")
	assert.Contains(t, all["semicontinuous"], "daily")

	w = do(t, s, http.MethodGet, "/v1/presets/turbidostat", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["hold","narrow"]`, w.Body.String())

	w = do(t, s, http.MethodGet, "/v1/presets/chemostat/washout", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cfg config.Config
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, 1.5, cfg.D)

	w = do(t, s, http.MethodGet, "/v1/presets/chemostat/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodGet, "/v1/presets/fermenter", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEquilibrium(t *testing.T) {
	s := New(Options{})

	w := do(t, s, http.MethodGet, "/v1/equilibrium?d=0.5", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp equilibriumResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Equilibrium.Washout)
	assert.InDelta(t, 0.2, resp.Equilibrium.Q, 1e-12)
	assert.True(t, resp.Stable)
	assert.Len(t, resp.Eigenvalues, 3)
	assert.InDelta(t, 1/1.1, resp.Critical, 1e-12)

	w = do(t, s, http.MethodGet, "/v1/equilibrium?d=1.5", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Equilibrium.Washout)

	w = do(t, s, http.MethodGet, "/v1/equilibrium?d=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(Options{})
	do(t, s, http.MethodPost, "/v1/simulate", `{"t_final":1,"samples":3}`)

	w := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `phytosim_simulations_total{outcome="ok",regime="batch"} 1`)
}
