package metrics

import (
	"math"

	"github.com/san-kum/numlab/internal/dynamo"
)

// ExactError compares the first state component against a known solution.
type ExactError struct {
	name    string
	exact   dynamo.Func1
	max     float64
	sum     float64
	last    float64
	samples int
}

func NewExactError(exact dynamo.Func1) *ExactError {
	return &ExactError{
		name:  "max_error",
		exact: exact,
	}
}

func (e *ExactError) Name() string { return e.name }

func (e *ExactError) Observe(x dynamo.State, t float64) {
	e.Record(t, x[0])
}

// Record stores |y - exact(t)| and returns it.
func (e *ExactError) Record(t, y float64) float64 {
	err := math.Abs(y - e.exact(t))
	e.max = math.Max(e.max, err)
	e.sum += err
	e.last = err
	e.samples++
	return err
}

func (e *ExactError) Value() float64 { return e.max }

func (e *ExactError) Mean() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.sum / float64(e.samples)
}

func (e *ExactError) Last() float64 { return e.last }

func (e *ExactError) Reset() {
	e.max = 0
	e.sum = 0
	e.last = 0
	e.samples = 0
}
