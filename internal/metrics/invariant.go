package metrics

import (
	"math"

	"github.com/san-kum/numlab/internal/dynamo"
)

// InvariantDrift tracks the largest relative deviation of a conserved
// quantity from its first observed value.
type InvariantDrift struct {
	name     string
	fn       func(dynamo.State) float64
	initial  float64
	current  float64
	maxDrift float64
	samples  int
}

func NewInvariantDrift(fn func(dynamo.State) float64) *InvariantDrift {
	return &InvariantDrift{
		name: "invariant_drift",
		fn:   fn,
	}
}

func (e *InvariantDrift) Name() string { return e.name }

func (e *InvariantDrift) Observe(x dynamo.State, t float64) {
	if e.fn == nil {
		return
	}

	energy := e.fn(x)

	if e.samples == 0 {
		e.initial = energy
	}

	e.current = energy
	e.samples++

	drift := math.Abs(energy - e.initial)
	if e.initial != 0 {
		drift /= math.Abs(e.initial)
	}
	e.maxDrift = math.Max(e.maxDrift, drift)
}

func (e *InvariantDrift) Value() float64 {
	return e.maxDrift
}

func (e *InvariantDrift) Initial() float64 { return e.initial }
func (e *InvariantDrift) Current() float64 { return e.current }
func (e *InvariantDrift) Samples() int     { return e.samples }

func (e *InvariantDrift) Reset() {
	e.initial = 0
	e.current = 0
	e.maxDrift = 0
	e.samples = 0
}
