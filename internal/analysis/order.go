package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/numlab/internal/dynamo"
)

type OrderResult struct {
	Steps  []float64
	Errors []float64
	// Ratios[i] is the local order between Steps[i] and Steps[i+1].
	Ratios []float64
	Order  float64
}

// ObservedOrder fits log(err) = p·log(h) + c by least squares and returns p.
func ObservedOrder(steps, errs []float64) (float64, error) {
	if len(steps) != len(errs) {
		return 0, dynamo.Invalidf("have %d step sizes but %d errors", len(steps), len(errs))
	}
	if len(steps) < 2 {
		return 0, dynamo.Invalidf("need at least 2 step sizes, got %d", len(steps))
	}
	lh := make([]float64, len(steps))
	le := make([]float64, len(errs))
	for i := range steps {
		if !(steps[i] > 0) || !(errs[i] > 0) {
			return 0, dynamo.Invalidf("step %g and error %g must both be positive", steps[i], errs[i])
		}
		lh[i] = math.Log(steps[i])
		le[i] = math.Log(errs[i])
	}
	_, slope := stat.LinearRegression(lh, le, nil, false)
	return slope, dynamo.Require("order", slope)
}

// Study calls run once per step size, largest first, and fits the order of
// the errors it reports.
func Study(steps []float64, run func(h float64) (float64, error)) (*OrderResult, error) {
	hs := append([]float64(nil), steps...)
	sort.Sort(sort.Reverse(sort.Float64Slice(hs)))

	res := &OrderResult{Steps: hs, Errors: make([]float64, len(hs))}
	for i, h := range hs {
		e, err := run(h)
		if err != nil {
			return res, err
		}
		res.Errors[i] = e
	}
	for i := 0; i+1 < len(hs); i++ {
		res.Ratios = append(res.Ratios, math.Log(res.Errors[i]/res.Errors[i+1])/math.Log(hs[i]/hs[i+1]))
	}

	order, err := ObservedOrder(hs, res.Errors)
	if err != nil {
		return res, err
	}
	res.Order = order
	return res, nil
}
