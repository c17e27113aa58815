package diff

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/numlab/internal/dynamo"
)

func fx(x float64) float64 { return math.Sin(x) + x*x }

func gxy(x, y float64) float64 { return x*x*math.Sin(y) + math.Exp(x*y) }

func TestAll(t *testing.T) {
	d, err := New(1e-3)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	x, y := 1.0, 0.5
	e := math.Exp(x * y)
	got, err := d.All(fx, gxy, x, y)
	if err != nil {
		t.Fatalf("all: %v", err)
	}

	tests := []struct {
		name     string
		got      float64
		expected float64
	}{
		{"first", got.First, math.Cos(x) + 2*x},
		{"second", got.Second, -math.Sin(x) + 2},
		{"partial x", got.PartialX, 2*x*math.Sin(y) + y*e},
		{"partial y", got.PartialY, x*x*math.Cos(y) + x*e},
		{"second x", got.SecondX, 2*math.Sin(y) + y*y*e},
		{"second y", got.SecondY, -x*x*math.Sin(y) + x*x*e},
		{"mixed", got.Mixed, 2*x*math.Cos(y) + e + x*y*e},
		{"third x", got.ThirdX, y * y * y * e},
	}
	for _, tt := range tests {
		if math.Abs(tt.got-tt.expected) > 1e-4 {
			t.Errorf("%s: got %.8f, expected %.8f", tt.name, tt.got, tt.expected)
		}
	}
	if d.Diagnostics().Len() != 0 {
		t.Errorf("unexpected warnings: %v", d.Diagnostics().Warnings)
	}
}

func TestNewStepValidation(t *testing.T) {
	if _, err := New(0); !errors.Is(err, dynamo.ErrInvalidConfig) {
		t.Errorf("h=0: expected invalid config, got %v", err)
	}
	if _, err := New(-1e-3); !errors.Is(err, dynamo.ErrInvalidConfig) {
		t.Errorf("h<0: expected invalid config, got %v", err)
	}

	tests := []struct {
		h     float64
		warns int
	}{
		{1e-4, 0},
		{2, 1},
		{1e-12, 1},
	}
	for _, tt := range tests {
		d, err := New(tt.h)
		if err != nil {
			t.Fatalf("h=%g: %v", tt.h, err)
		}
		if got := d.Diagnostics().Count(dynamo.WarnStepSize); got != tt.warns {
			t.Errorf("h=%g: got %d step warnings, expected %d", tt.h, got, tt.warns)
		}
	}
}

func TestFirstCancellation(t *testing.T) {
	d, _ := New(1e-4)
	v, err := d.First(func(x float64) float64 { return 3 }, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0 {
		t.Errorf("derivative of a constant should be 0, got %v", v)
	}
	if d.Diagnostics().Count(dynamo.WarnCancellation) != 1 {
		t.Error("expected a cancellation warning")
	}
}

func TestFault(t *testing.T) {
	d, _ := New(1e-4)
	_, err := d.PartialX(func(x, y float64) float64 { return math.Log(x) }, 0, 0)
	if !errors.Is(err, dynamo.ErrNumericFault) {
		t.Errorf("expected numeric fault, got %v", err)
	}

	_, err = d.All(fx, func(x, y float64) float64 { return math.Inf(1) }, 1, 1)
	if !errors.Is(err, dynamo.ErrNumericFault) {
		t.Errorf("expected numeric fault, got %v", err)
	}
}

type countSink struct{ n int }

func (c *countSink) Emit(string, ...float64) error { c.n++; return nil }
func (c *countSink) Close() error                  { return nil }

func holed(x float64) float64 {
	if r := math.Abs(x - 0.5); r > 0 && r < 0.01 {
		return math.NaN()
	}
	return x * x
}

func TestSweep(t *testing.T) {
	d, _ := New(1e-4)
	sink := &countSink{}
	res, err := d.Sweep(fx, -1, 3, 100, sink)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res.X) != 101 || sink.n != 101 {
		t.Fatalf("expected 101 points, got %d (emitted %d)", len(res.X), sink.n)
	}
	for i, x := range res.X {
		if math.Abs(res.First[i]-(math.Cos(x)+2*x)) > 1e-6 {
			t.Errorf("f'(%.2f) = %.8f", x, res.First[i])
		}
	}
}

func TestSweepGrowsStep(t *testing.T) {
	d, _ := New(1e-4)
	res, err := d.Sweep(holed, 0, 1, 10, nil)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Adjusted != 1 || res.Invalid != 0 {
		t.Fatalf("expected one adjusted point, got adjusted=%d invalid=%d", res.Adjusted, res.Invalid)
	}
	if res.Steps[5] <= 0.01 {
		t.Errorf("step at x=0.5 should have grown past the hole, got %g", res.Steps[5])
	}
	if math.Abs(res.First[5]-1) > 1e-9 {
		t.Errorf("f'(0.5) = %v, expected 1", res.First[5])
	}
	if res.Steps[6] != 1e-4 {
		t.Errorf("next point should restart from the base step, got %g", res.Steps[6])
	}
}

func TestSweepGivesUp(t *testing.T) {
	d, _ := New(1e-4, WithMaxGrowth(3))
	res, err := d.Sweep(holed, 0, 1, 10, nil)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Invalid != 1 || len(res.X) != 10 {
		t.Errorf("expected one invalid point and 10 kept, got invalid=%d kept=%d", res.Invalid, len(res.X))
	}
	if d.Diagnostics().Count(dynamo.WarnInvalidPoint) != 1 {
		t.Error("expected an invalid point warning")
	}
}
