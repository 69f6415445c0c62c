package export

import (
	"encoding/json"
	"io"
	"time"

	"github.com/san-kum/phytosim/internal/control"
	"github.com/san-kum/phytosim/internal/models"
	"github.com/san-kum/phytosim/internal/sim"
)

// RunInfo identifies a run in exported documents.
type RunInfo struct {
	ID         string        `json:"id,omitempty"`
	Name       string        `json:"name,omitempty"`
	Integrator string        `json:"integrator,omitempty"`
	Params     models.Params `json:"params"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Sample is a trajectory point as exported. Log10X is null where X <= 0.
type Sample struct {
	sim.Point
	Log10X *float64 `json:"log10X"`
}

type Document struct {
	Run        RunInfo            `json:"run"`
	Regime     control.Regime     `json:"regime"`
	Samples    []Sample           `json:"samples"`
	Boundaries []sim.Boundary     `json:"boundaries,omitempty"`
	Stats      sim.Stats          `json:"stats"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// NewDocument converts a trajectory into its exported form.
func NewDocument(info RunInfo, tr *sim.Trajectory) Document {
	doc := Document{
		Run:        info,
		Regime:     tr.Regime,
		Samples:    make([]Sample, len(tr.Points)),
		Boundaries: tr.Boundaries,
		Stats:      tr.Stats,
		Metrics:    tr.Metrics,
	}
	for i, p := range tr.Points {
		doc.Samples[i].Point = p
		if lx, err := p.Log10X(); err == nil {
			doc.Samples[i].Log10X = &lx
		}
	}
	return doc
}

func WriteJSON(w io.Writer, info RunInfo, tr *sim.Trajectory) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewDocument(info, tr))
}
