package metrics

import (
	"github.com/san-kum/phytosim/internal/dynamo"
)

// DilutionEffort is the mean dilution rate over the observed samples.
type DilutionEffort struct {
	name    string
	sum     float64
	samples int
}

func NewDilutionEffort() *DilutionEffort {
	return &DilutionEffort{name: "dilution_effort"}
}

func (d *DilutionEffort) Name() string { return d.name }

func (d *DilutionEffort) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if len(u) > 0 {
		d.sum += u[0]
	}
	d.samples++
}

func (d *DilutionEffort) Value() float64 {
	if d.samples == 0 {
		return 0
	}
	return d.sum / float64(d.samples)
}

func (d *DilutionEffort) Reset() {
	d.sum = 0
	d.samples = 0
}
