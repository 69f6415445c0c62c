package control

import "github.com/san-kum/phytosim/internal/dynamo"

// Batch is a closed culture: nothing flows in or out.
type Batch struct{}

func NewBatch() Batch {
	return Batch{}
}

func (Batch) Name() string { return string(RegimeBatch) }

func (Batch) Compute(x dynamo.State, t float64) dynamo.Control {
	return dynamo.Control{0}
}
