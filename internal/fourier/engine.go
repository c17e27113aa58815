// Package fourier computes trigonometric series coefficients of a function on
// [0, 2L) by rectangle-rule quadrature on a fixed grid and rebuilds partial
// sums from them.
package fourier

import (
	"fmt"
	"math"

	kitlog "github.com/go-kit/kit/log"

	"github.com/san-kum/numlab/internal/dynamo"
)

const (
	DefaultPoints = 1000
	MinPoints     = 10
	// OverflowLimit bounds every quadrature partial sum.
	OverflowLimit = 1e50
)

// Series names forwarded to the sink.
const (
	SeriesCoefficients = "coefficients"
	SeriesOriginal     = "original"
	SeriesApprox       = "series"
)

type Engine struct {
	L      float64
	Terms  int
	Points int
	logger kitlog.Logger
}

type Option func(*Engine)

func WithPoints(n int) Option {
	return func(e *Engine) { e.Points = n }
}

func WithLogger(l kitlog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func New(l float64, terms int, opts ...Option) (*Engine, error) {
	e := &Engine{
		L:      l,
		Terms:  terms,
		Points: DefaultPoints,
		logger: kitlog.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if !(e.L > 0) || !dynamo.IsValid(e.L) {
		return nil, dynamo.Invalidf("half period L must be positive, got %g", e.L)
	}
	if e.Terms <= 0 {
		return nil, dynamo.Invalidf("number of terms must be positive, got %d", e.Terms)
	}
	if e.Points < MinPoints {
		return nil, dynamo.Invalidf("quadrature needs at least %d points, got %d", MinPoints, e.Points)
	}
	return e, nil
}

// Grid returns the quadrature abscissae x_i = i·Δx, Δx = 2L/Points.
func (e *Engine) Grid() []float64 {
	dx := 2 * e.L / float64(e.Points)
	xs := make([]float64, e.Points)
	for i := range xs {
		xs[i] = float64(i) * dx
	}
	return xs
}

// accumulate adds v to sum and guards the new partial sum.
func accumulate(sum, v float64, name func() string) (float64, error) {
	sum += v
	if !dynamo.IsValid(sum) {
		return sum, &dynamo.NumericFault{Name: name(), Value: sum}
	}
	if math.Abs(sum) > OverflowLimit {
		return sum, fmt.Errorf("%w: %s = %.3e", dynamo.ErrOverflow, name(), sum)
	}
	return sum, nil
}

// Compute returns a0 and (a_n, b_n) for n = 1..Terms. Each partial sum is
// guarded as it accumulates; any fault aborts the whole computation.
func (e *Engine) Compute(f dynamo.Func1, sink dynamo.Sink) (*Coefficients, error) {
	if f == nil {
		return nil, dynamo.Invalidf("no function to expand")
	}
	if sink == nil {
		sink = dynamo.Discard
	}

	grid := e.Grid()
	dx := 2 * e.L / float64(e.Points)
	if err := dynamo.Require("dx", dx); err != nil {
		return nil, err
	}
	scale := dx / e.L

	fs := make([]float64, len(grid))
	var a0 float64
	for i, x := range grid {
		v := f(x)
		if !dynamo.IsValid(v) {
			return nil, &dynamo.NumericFault{Name: fmt.Sprintf("f(%g)", x), Value: v}
		}
		fs[i] = v
		var err error
		if a0, err = accumulate(a0, v, func() string { return "a0 partial sum" }); err != nil {
			return nil, err
		}
	}
	a0 *= scale
	if err := dynamo.Require("a0", a0); err != nil {
		return nil, err
	}

	terms := make([]Term, e.Terms+1)
	terms[0] = Term{N: 0, A: a0}
	for n := 1; n <= e.Terms; n++ {
		var sa, sb float64
		w := float64(n) * math.Pi / e.L
		aName := func() string { return fmt.Sprintf("a%d partial sum", n) }
		bName := func() string { return fmt.Sprintf("b%d partial sum", n) }
		for i, x := range grid {
			var err error
			if sa, err = accumulate(sa, fs[i]*math.Cos(w*x), aName); err != nil {
				return nil, err
			}
			if sb, err = accumulate(sb, fs[i]*math.Sin(w*x), bName); err != nil {
				return nil, err
			}
		}
		an, bn := sa*scale, sb*scale
		if err := dynamo.First(dynamo.Require(fmt.Sprintf("a%d", n), an), dynamo.Require(fmt.Sprintf("b%d", n), bn)); err != nil {
			return nil, err
		}
		terms[n] = Term{N: n, A: an, B: bn}
	}

	for _, t := range terms {
		if err := sink.Emit(SeriesCoefficients, float64(t.N), t.A, t.B); err != nil {
			return nil, fmt.Errorf("emit %s: %w", SeriesCoefficients, err)
		}
	}
	e.logger.Log("level", "info", "subsys", "fourier", "L", e.L, "terms", e.Terms, "points", e.Points, "a0", a0)
	return &Coefficients{l: e.L, terms: terms}, nil
}

// Sample evaluates f and the N-term partial sum on points+1 equally spaced
// abscissae of [from, to] and forwards both to the sink. Samples whose
// partial sum fails the guard are zeroed and counted, not fatal. Where f
// itself is invalid both values are emitted as zero and counted the same way.
func (e *Engine) Sample(f dynamo.Func1, c *Coefficients, from, to float64, points int, sink dynamo.Sink) (*Series, error) {
	if to <= from {
		return nil, dynamo.Invalidf("sample range end (%g) must exceed start (%g)", to, from)
	}
	if points < MinPoints {
		return nil, dynamo.Invalidf("need at least %d sample points, got %d", MinPoints, points)
	}
	if sink == nil {
		sink = dynamo.Discard
	}

	n := c.Len()
	s := &Series{
		X:        make([]float64, 0, points+1),
		Original: make([]float64, 0, points+1),
		Approx:   make([]float64, 0, points+1),
	}
	var err error
	dx := (to - from) / float64(points)
	for i := 0; i <= points; i++ {
		x := from + float64(i)*dx
		orig := f(x)
		var approx float64
		if !dynamo.IsValid(orig) {
			orig = 0
			s.Divergent++
			e.logger.Log("level", "warning", "subsys", "fourier", "kind", dynamo.WarnInvalidPoint, "x", x)
		} else if approx, err = c.Reconstruct(x, n); err != nil {
			approx = 0
			s.Divergent++
			e.logger.Log("level", "warning", "subsys", "fourier", "kind", dynamo.WarnDivergentSample, "x", x, "err", err)
		}
		s.X = append(s.X, x)
		s.Original = append(s.Original, orig)
		s.Approx = append(s.Approx, approx)
		if err := dynamo.First(sink.Emit(SeriesOriginal, x, orig), sink.Emit(SeriesApprox, x, approx)); err != nil {
			return s, fmt.Errorf("emit: %w", err)
		}
	}
	return s, nil
}
