// Package diff estimates derivatives of one- and two-variable functions with
// central finite differences.
package diff

import (
	"fmt"
	"math"

	kitlog "github.com/go-kit/kit/log"

	"github.com/san-kum/numlab/internal/dynamo"
)

const (
	// LargeStep and SmallStep bound the step sizes accepted without warning.
	LargeStep = 1.0
	SmallStep = 1e-10

	CancellationLimit = 1e-15
	LargeValue        = 1e50

	DefaultMaxGrowth = 20
)

// SeriesDerivatives carries (x, f'(x), f''(x)) tuples from a sweep.
const SeriesDerivatives = "derivatives"

type Differ struct {
	H         float64
	MaxGrowth int

	diag   *dynamo.Diagnostics
	logger kitlog.Logger
}

type Option func(*Differ)

// WithMaxGrowth bounds how many times a sweep may double h at one point.
func WithMaxGrowth(n int) Option {
	return func(d *Differ) { d.MaxGrowth = n }
}

func WithLogger(l kitlog.Logger) Option {
	return func(d *Differ) { d.logger = l }
}

func New(h float64, opts ...Option) (*Differ, error) {
	d := &Differ{
		H:         h,
		MaxGrowth: DefaultMaxGrowth,
		diag:      dynamo.NewDiagnostics(),
		logger:    kitlog.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if !(h > 0) || !dynamo.IsValid(h) {
		return nil, dynamo.Invalidf("step h must be positive, got %g", h)
	}
	if d.MaxGrowth < 0 {
		return nil, dynamo.Invalidf("max growth must not be negative, got %d", d.MaxGrowth)
	}
	if h > LargeStep {
		d.warn(dynamo.Warning{Kind: dynamo.WarnStepSize, Value: h, Message: "step is large, derivatives may be inaccurate"})
	}
	if h < SmallStep {
		d.warn(dynamo.Warning{Kind: dynamo.WarnStepSize, Value: h, Message: "step is tiny, expect cancellation error"})
	}
	return d, nil
}

func (d *Differ) Diagnostics() *dynamo.Diagnostics { return d.diag }

func (d *Differ) warn(w dynamo.Warning) {
	d.logger.Log("level", "warning", "subsys", "diff", "kind", w.Kind, "value", w.Value, "message", w.Message)
	d.diag.Add(w)
}

func eval1(f dynamo.Func1, x float64) (float64, error) {
	v := f(x)
	if !dynamo.IsValid(v) {
		return v, &dynamo.NumericFault{Name: fmt.Sprintf("f(%g)", x), Value: v}
	}
	return v, nil
}

func eval2(f dynamo.Func2, x, y float64) (float64, error) {
	v := f(x, y)
	if !dynamo.IsValid(v) {
		return v, &dynamo.NumericFault{Name: fmt.Sprintf("f(%g, %g)", x, y), Value: v}
	}
	return v, nil
}

func evalAll1(f dynamo.Func1, xs ...float64) ([]float64, error) {
	out := make([]float64, len(xs))
	for i, x := range xs {
		v, err := eval1(f, x)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func evalAll2(f dynamo.Func2, pts ...[2]float64) ([]float64, error) {
	out := make([]float64, len(pts))
	for i, p := range pts {
		v, err := eval2(f, p[0], p[1])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func first(f dynamo.Func1, x, h float64) (float64, float64, error) {
	v, err := evalAll1(f, x+h, x-h)
	if err != nil {
		return 0, 0, err
	}
	spread := v[0] - v[1]
	d := spread / (2 * h)
	return d, spread, dynamo.Require("f'", d)
}

func second(f dynamo.Func1, x, h float64) (float64, float64, error) {
	v, err := evalAll1(f, x+h, x, x-h)
	if err != nil {
		return 0, 0, err
	}
	peak := math.Max(math.Abs(v[0]), math.Max(math.Abs(v[1]), math.Abs(v[2])))
	d := (v[0] - 2*v[1] + v[2]) / (h * h)
	return d, peak, dynamo.Require("f''", d)
}

// First is (f(x+h) - f(x-h)) / 2h.
func (d *Differ) First(f dynamo.Func1, x float64) (float64, error) {
	v, spread, err := first(f, x, d.H)
	if err != nil {
		return 0, err
	}
	if math.Abs(spread) < CancellationLimit {
		d.warn(dynamo.Warning{Kind: dynamo.WarnCancellation, Value: spread, Message: fmt.Sprintf("f(x+h) - f(x-h) vanishes at x=%g", x)})
	}
	return v, nil
}

// Second is (f(x+h) - 2f(x) + f(x-h)) / h².
func (d *Differ) Second(f dynamo.Func1, x float64) (float64, error) {
	v, peak, err := second(f, x, d.H)
	if err != nil {
		return 0, err
	}
	if peak > LargeValue {
		d.warn(dynamo.Warning{Kind: dynamo.WarnInstability, Value: peak, Message: fmt.Sprintf("very large samples around x=%g", x)})
	}
	return v, nil
}

func (d *Differ) PartialX(f dynamo.Func2, x, y float64) (float64, error) {
	h := d.H
	v, err := evalAll2(f, [2]float64{x + h, y}, [2]float64{x - h, y})
	if err != nil {
		return 0, err
	}
	out := (v[0] - v[1]) / (2 * h)
	return out, dynamo.Require("df/dx", out)
}

func (d *Differ) PartialY(f dynamo.Func2, x, y float64) (float64, error) {
	h := d.H
	v, err := evalAll2(f, [2]float64{x, y + h}, [2]float64{x, y - h})
	if err != nil {
		return 0, err
	}
	out := (v[0] - v[1]) / (2 * h)
	return out, dynamo.Require("df/dy", out)
}

func (d *Differ) SecondX(f dynamo.Func2, x, y float64) (float64, error) {
	h := d.H
	v, err := evalAll2(f, [2]float64{x + h, y}, [2]float64{x, y}, [2]float64{x - h, y})
	if err != nil {
		return 0, err
	}
	out := (v[0] - 2*v[1] + v[2]) / (h * h)
	return out, dynamo.Require("d²f/dx²", out)
}

func (d *Differ) SecondY(f dynamo.Func2, x, y float64) (float64, error) {
	h := d.H
	v, err := evalAll2(f, [2]float64{x, y + h}, [2]float64{x, y}, [2]float64{x, y - h})
	if err != nil {
		return 0, err
	}
	out := (v[0] - 2*v[1] + v[2]) / (h * h)
	return out, dynamo.Require("d²f/dy²", out)
}

// Mixed is (f(x+h,y+h) - f(x+h,y-h) - f(x-h,y+h) + f(x-h,y-h)) / 4h².
func (d *Differ) Mixed(f dynamo.Func2, x, y float64) (float64, error) {
	h := d.H
	v, err := evalAll2(f,
		[2]float64{x + h, y + h}, [2]float64{x + h, y - h},
		[2]float64{x - h, y + h}, [2]float64{x - h, y - h},
	)
	if err != nil {
		return 0, err
	}
	out := (v[0] - v[1] - v[2] + v[3]) / (4 * h * h)
	return out, dynamo.Require("d²f/dxdy", out)
}

// ThirdX is (f(x+2h) - 2f(x+h) + 2f(x-h) - f(x-2h)) / 2h³ along x.
func (d *Differ) ThirdX(f dynamo.Func2, x, y float64) (float64, error) {
	h := d.H
	v, err := evalAll2(f,
		[2]float64{x + 2*h, y}, [2]float64{x + h, y},
		[2]float64{x - h, y}, [2]float64{x - 2*h, y},
	)
	if err != nil {
		return 0, err
	}
	out := (v[0] - 2*v[1] + 2*v[2] - v[3]) / (2 * h * h * h)
	return out, dynamo.Require("d³f/dx³", out)
}

// Derivatives is the full set evaluated at one point.
type Derivatives struct {
	First    float64 `json:"first"`
	Second   float64 `json:"second"`
	PartialX float64 `json:"partial_x"`
	PartialY float64 `json:"partial_y"`
	SecondX  float64 `json:"second_x"`
	SecondY  float64 `json:"second_y"`
	Mixed    float64 `json:"mixed"`
	ThirdX   float64 `json:"third_x"`
}

// All evaluates every estimate; the first fault aborts.
func (d *Differ) All(f dynamo.Func1, g dynamo.Func2, x, y float64) (Derivatives, error) {
	var out Derivatives
	steps := []struct {
		dst *float64
		fn  func() (float64, error)
	}{
		{&out.First, func() (float64, error) { return d.First(f, x) }},
		{&out.Second, func() (float64, error) { return d.Second(f, x) }},
		{&out.PartialX, func() (float64, error) { return d.PartialX(g, x, y) }},
		{&out.PartialY, func() (float64, error) { return d.PartialY(g, x, y) }},
		{&out.SecondX, func() (float64, error) { return d.SecondX(g, x, y) }},
		{&out.SecondY, func() (float64, error) { return d.SecondY(g, x, y) }},
		{&out.Mixed, func() (float64, error) { return d.Mixed(g, x, y) }},
		{&out.ThirdX, func() (float64, error) { return d.ThirdX(g, x, y) }},
	}
	for _, s := range steps {
		v, err := s.fn()
		if err != nil {
			return out, err
		}
		*s.dst = v
	}
	d.logger.Log("level", "info", "subsys", "diff", "x", x, "y", y, "h", d.H, "first", out.First, "second", out.Second)
	return out, nil
}
