package metrics

import (
	"github.com/san-kum/phytosim/internal/dynamo"
	"github.com/san-kum/phytosim/internal/models"
)

// DefaultWashoutThreshold is the density below which a culture counts as
// washed out.
const DefaultWashoutThreshold = 1e-6

// Washout is the fraction of samples with density below threshold.
type Washout struct {
	name      string
	threshold float64
	washed    int
	samples   int
}

func NewWashout(threshold float64) *Washout {
	if threshold <= 0 {
		threshold = DefaultWashoutThreshold
	}
	return &Washout{
		name:      "washout",
		threshold: threshold,
	}
}

func (w *Washout) Name() string { return w.name }

func (w *Washout) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if len(x) < 3 {
		return
	}
	w.samples++
	if x[models.IdxX] < w.threshold {
		w.washed++
	}
}

func (w *Washout) Value() float64 {
	if w.samples == 0 {
		return 0
	}
	return float64(w.washed) / float64(w.samples)
}

func (w *Washout) Reset() {
	w.washed = 0
	w.samples = 0
}

// Standard returns the metrics attached to every CLI and server run.
func Standard() []dynamo.Metric {
	return []dynamo.Metric{
		NewMassDrift(),
		NewDilutionEffort(),
		NewWashout(DefaultWashoutThreshold),
	}
}
