package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/phytosim/internal/control"
	"github.com/san-kum/phytosim/internal/models"
	"github.com/san-kum/phytosim/internal/sim"
)

func sampleTrajectory() *sim.Trajectory {
	return &sim.Trajectory{
		Regime: control.RegimeSemiContinuous,
		Points: []sim.Point{
			{T: 0, R: 1, Q: 1, X: 1, Rho: 1, Mu: 0.9, Mass: 2},
			{T: 1, R: 0.5, Q: 0.5, X: 3, Rho: 0.67, Mu: 0.8, Mass: 2},
			{T: 1, R: 0.8, Q: 0.5, X: 1, Rho: 0.89, Mu: 0.8, Mass: 1.3, Segment: 1},
			{T: 2, R: 0.2, Q: 0.4, X: 0, Rho: 0.33, Mu: 0.75, Mass: 0.2, Segment: 1},
		},
		Boundaries: []sim.Boundary{{Index: 2, T: 1, Retained: 1.0 / 3}},
		Metrics:    map[string]float64{"mass_drift": 0.35},
	}
}

func TestWriteCSV(t *testing.T) {
	t.Run("should write header and one row per sample", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, sampleTrajectory()))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 5)
		assert.Equal(t, "time,R,Q,X,rho,mu,mass,log10X,dilution,segment", lines[0])
		assert.Equal(t, "0,1,1,1,1,0.9,2,0,0,0", lines[1])
	})

	t.Run("should leave log10X empty for zero density", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, sampleTrajectory()))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		fields := strings.Split(lines[4], ",")
		assert.Equal(t, "", fields[7])
		assert.NotContains(t, buf.String(), "Inf")
	})
}

func TestReadCSV(t *testing.T) {
	t.Run("should read back what was written", func(t *testing.T) {
		tr := sampleTrajectory()
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, tr))

		points, err := ReadCSV(&buf)
		require.NoError(t, err)
		assert.Equal(t, tr.Points, points)
	})

	t.Run("should reject a foreign header", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("t,theta,omega,a,b,c,d,e,f,g\n"))
		assert.Error(t, err)
	})

	t.Run("should report the failing line", func(t *testing.T) {
		in := strings.Join(Header, ",") + "\n0,1,1,abc,1,1,2,,0,0\n"
		_, err := ReadCSV(strings.NewReader(in))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 2")
	})
}

func TestReadTrajectory(t *testing.T) {
	t.Run("should recover dilution boundaries from segments", func(t *testing.T) {
		want := sampleTrajectory()
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, want))

		tr, err := ReadTrajectory(&buf)
		require.NoError(t, err)
		assert.Equal(t, control.RegimeSemiContinuous, tr.Regime)
		require.Len(t, tr.Boundaries, 1)
		assert.Equal(t, 2, tr.Boundaries[0].Index)
		assert.InDelta(t, 1.0/3, tr.Boundaries[0].Retained, 1e-12)
	})

	t.Run("should leave continuous runs without boundaries", func(t *testing.T) {
		tr := &sim.Trajectory{Points: sampleTrajectory().Points[:2]}
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, tr))

		got, err := ReadTrajectory(&buf)
		require.NoError(t, err)
		assert.Empty(t, got.Boundaries)
		assert.Equal(t, control.Regime(""), got.Regime)
	})
}

func TestWriteJSON(t *testing.T) {
	t.Run("should encode null for non-positive density", func(t *testing.T) {
		var buf bytes.Buffer
		info := RunInfo{ID: "run-1", Integrator: "rk45", Params: models.DefaultParams()}
		require.NoError(t, WriteJSON(&buf, info, sampleTrajectory()))

		var doc struct {
			Run     RunInfo `json:"run"`
			Regime  string  `json:"regime"`
			Samples []struct {
				T      float64  `json:"t"`
				X      float64  `json:"X"`
				Log10X *float64 `json:"log10X"`
			} `json:"samples"`
			Boundaries []sim.Boundary      `json:"boundaries"`
			Metrics    map[string]float64 `json:"metrics"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

		assert.Equal(t, "run-1", doc.Run.ID)
		assert.Equal(t, "semicontinuous", doc.Regime)
		require.Len(t, doc.Samples, 4)
		require.NotNil(t, doc.Samples[1].Log10X)
		assert.InDelta(t, 0.4771, *doc.Samples[1].Log10X, 1e-4)
		assert.Nil(t, doc.Samples[3].Log10X)
		assert.Len(t, doc.Boundaries, 1)
		assert.Equal(t, 0.35, doc.Metrics["mass_drift"])
	})
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("should pick the format from the extension", func(t *testing.T) {
		csvPath := filepath.Join(dir, "out", "run.csv")
		require.NoError(t, WriteFile(csvPath, RunInfo{}, sampleTrajectory()))
		data, err := os.ReadFile(csvPath)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "time,R,Q,X"))

		jsonPath := filepath.Join(dir, "run.json")
		require.NoError(t, WriteFile(jsonPath, RunInfo{Name: "daily"}, sampleTrajectory()))
		data, err = os.ReadFile(jsonPath)
		require.NoError(t, err)
		assert.True(t, json.Valid(data))
	})

	t.Run("should reject unknown extensions", func(t *testing.T) {
		err := WriteFile(filepath.Join(dir, "run.parquet"), RunInfo{}, sampleTrajectory())
		assert.Error(t, err)
	})
}
