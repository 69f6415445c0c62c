package metrics

import (
	"math"

	"github.com/san-kum/phytosim/internal/dynamo"
	"github.com/san-kum/phytosim/internal/models"
)

// MassDrift tracks the largest relative departure of R + Q*X from its
// first observed value. Total resource is conserved only in batch culture,
// so the metric is an integration accuracy check there.
type MassDrift struct {
	name     string
	initial  float64
	current  float64
	maxDrift float64
	samples  int
}

func NewMassDrift() *MassDrift {
	return &MassDrift{name: "mass_drift"}
}

func (m *MassDrift) Name() string { return m.name }

func (m *MassDrift) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if len(x) < 3 {
		return
	}
	mass := models.Mass(x)
	if m.samples == 0 {
		m.initial = mass
	}
	m.current = mass
	m.samples++

	if m.initial != 0 {
		drift := math.Abs(mass-m.initial) / math.Abs(m.initial)
		m.maxDrift = math.Max(m.maxDrift, drift)
	}
}

func (m *MassDrift) Value() float64 { return m.maxDrift }

func (m *MassDrift) Reset() {
	m.initial = 0
	m.current = 0
	m.maxDrift = 0
	m.samples = 0
}
