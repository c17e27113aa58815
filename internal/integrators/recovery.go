package integrators

import (
	"errors"
	"fmt"

	"github.com/san-kum/numlab/internal/dynamo"
)

// DefaultMaxHalvings retries a failed step once, as two steps of h/2.
const DefaultMaxHalvings = 1

// Recovery retries a scalar step that failed the numeric guard by covering
// the same interval with 2^k sub-steps of h/2^k, k = 1..MaxHalvings.
type Recovery struct {
	MaxHalvings int
}

func NewRecovery(maxHalvings int) Recovery {
	if maxHalvings < 0 {
		maxHalvings = 0
	}
	return Recovery{MaxHalvings: maxHalvings}
}

// Step advances y from x to x+h. The returned level is 0 when the full step
// succeeded, otherwise the number of halvings that were needed. Errors other
// than numeric faults are returned unchanged.
func (r Recovery) Step(s Scalar, f dynamo.ScalarFunc, x, y, h float64, step int) (ScalarStep, int, error) {
	res, err := s.Step(f, x, y, h, step)
	if err == nil {
		return res, 0, nil
	}
	if !errors.Is(err, dynamo.ErrNumericFault) {
		return res, 0, err
	}
	last := err

	for level := 1; level <= r.MaxHalvings; level++ {
		parts := 1 << level
		sub := h / float64(parts)
		res, err = r.subdivide(s, f, x, y, sub, parts, step)
		if err == nil {
			res.Warnings = append(res.Warnings, dynamo.Warning{
				Kind:    dynamo.WarnRecovered,
				Step:    step,
				Value:   sub,
				Message: fmt.Sprintf("step at x=%.4f recovered with %d sub-steps", x, parts),
			})
			return res, level, nil
		}
		last = err
	}
	return ScalarStep{}, r.MaxHalvings, fmt.Errorf("%w at x=%.4f: %w", dynamo.ErrRecoveryFailed, x, last)
}

func (r Recovery) subdivide(s Scalar, f dynamo.ScalarFunc, x, y, h float64, parts, step int) (ScalarStep, error) {
	var out ScalarStep
	var warnings []dynamo.Warning
	for i := 0; i < parts; i++ {
		res, err := s.Step(f, x+float64(i)*h, y, h, step)
		if err != nil {
			return ScalarStep{}, err
		}
		warnings = append(warnings, res.Warnings...)
		y = res.Y
		out = res
	}
	out.Warnings = warnings
	return out, nil
}
