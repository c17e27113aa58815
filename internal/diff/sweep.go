package diff

import (
	"fmt"

	"github.com/san-kum/numlab/internal/dynamo"
)

type SweepResult struct {
	X      []float64
	First  []float64
	Second []float64
	// Steps holds the h that produced each accepted point.
	Steps    []float64
	Adjusted int
	Invalid  int
}

// Sweep evaluates f' and f'' on points+1 equally spaced abscissae of
// [from, to]. A point whose estimates fail the guard is retried with h
// doubled, at most MaxGrowth times; points that never succeed are skipped
// and counted. Every point starts again from the base step.
func (d *Differ) Sweep(f dynamo.Func1, from, to float64, points int, sink dynamo.Sink) (*SweepResult, error) {
	if to <= from {
		return nil, dynamo.Invalidf("sweep end (%g) must exceed start (%g)", to, from)
	}
	if points <= 0 {
		return nil, dynamo.Invalidf("sweep needs a positive number of points, got %d", points)
	}
	if sink == nil {
		sink = dynamo.Discard
	}

	res := &SweepResult{}
	dx := (to - from) / float64(points)
	for i := 0; i <= points; i++ {
		x := from + float64(i)*dx
		h := d.H

		var d1, d2 float64
		ok := false
		for attempt := 0; attempt <= d.MaxGrowth; attempt++ {
			var err1, err2 error
			d1, _, err1 = first(f, x, h)
			d2, _, err2 = second(f, x, h)
			if err1 == nil && err2 == nil {
				ok = true
				break
			}
			h *= 2
		}

		if !ok {
			res.Invalid++
			d.warn(dynamo.Warning{Kind: dynamo.WarnInvalidPoint, Step: i, Value: x, Message: fmt.Sprintf("no valid estimate at x=%g", x)})
			continue
		}
		if h != d.H {
			res.Adjusted++
			d.warn(dynamo.Warning{Kind: dynamo.WarnStepSize, Step: i, Value: h, Message: fmt.Sprintf("step raised to %.2e at x=%g", h, x)})
		}

		res.X = append(res.X, x)
		res.First = append(res.First, d1)
		res.Second = append(res.Second, d2)
		res.Steps = append(res.Steps, h)
		if err := sink.Emit(SeriesDerivatives, x, d1, d2); err != nil {
			return res, fmt.Errorf("emit %s: %w", SeriesDerivatives, err)
		}
	}
	return res, nil
}
