package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/numlab/internal/dynamo"
	"github.com/san-kum/numlab/internal/integrators"
	"github.com/san-kum/numlab/internal/metrics"
)

type recordSink struct {
	series map[string][][]float64
	closed bool
}

func newRecordSink() *recordSink {
	return &recordSink{series: make(map[string][][]float64)}
}

func (r *recordSink) Emit(series string, values ...float64) error {
	r.series[series] = append(r.series[series], append([]float64(nil), values...))
	return nil
}

func (r *recordSink) Close() error {
	r.closed = true
	return nil
}

func linearProblem(h float64) ScalarProblem {
	return ScalarProblem{
		Name:        "linear",
		F:           func(x, y float64) float64 { return x - y },
		Exact:       func(x float64) float64 { return x - 1 + 2*math.Exp(-x) },
		X0:          0,
		Y0:          1,
		XEnd:        2,
		H:           h,
		MaxHalvings: integrators.DefaultMaxHalvings,
	}
}

func TestRunScalar(t *testing.T) {
	sink := newRecordSink()
	result, err := New().RunScalar(context.Background(), linearProblem(0.1), sink)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if result.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", result.Status)
	}
	if result.Steps != 20 {
		t.Errorf("expected 20 steps, got %d", result.Steps)
	}
	if len(result.States) != 21 {
		t.Errorf("expected 21 samples, got %d", len(result.States))
	}

	sol := sink.series[SeriesSolution]
	if len(sol) != 21 {
		t.Fatalf("expected 21 solution tuples, got %d", len(sol))
	}
	if sol[0][0] != 0 || sol[0][1] != 1 {
		t.Errorf("first sample should be the initial condition, got %v", sol[0])
	}
	if math.Abs(sol[20][0]-2) > 1e-12 {
		t.Errorf("last sample should be at x_end, got x=%v", sol[20][0])
	}
	if len(sink.series[SeriesError]) != 21 {
		t.Errorf("expected 21 error tuples, got %d", len(sink.series[SeriesError]))
	}

	if !result.HasExact || result.MaxError > 1e-5 {
		t.Errorf("max error too large: %.3e", result.MaxError)
	}
	if result.MeanError > result.MaxError {
		t.Errorf("mean error %.3e exceeds max %.3e", result.MeanError, result.MaxError)
	}
}

func TestRunScalarConvergence(t *testing.T) {
	sim := New()
	coarse, err := sim.RunScalar(context.Background(), linearProblem(0.2), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	fine, err := sim.RunScalar(context.Background(), linearProblem(0.1), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	ratio := coarse.FinalError / fine.FinalError
	if ratio < 12 || ratio > 20 {
		t.Errorf("expected ~16x error reduction, got %.2f", ratio)
	}
}

func TestRunScalarRecovery(t *testing.T) {
	calls := 0
	p := linearProblem(0.1)
	p.F = func(x, y float64) float64 {
		calls++
		if calls == 5 {
			return math.NaN()
		}
		return x - y
	}

	result, err := New().RunScalar(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Recovered != 1 {
		t.Errorf("expected one recovered step, got %d", result.Recovered)
	}
	if result.Diagnostics.Count(dynamo.WarnRecovered) != 1 {
		t.Errorf("expected one recovered warning, got %d", result.Diagnostics.Count(dynamo.WarnRecovered))
	}
	if result.MaxError > 1e-5 {
		t.Errorf("recovered run drifted: max error %.3e", result.MaxError)
	}
}

func TestRunScalarRecoveryFailed(t *testing.T) {
	p := linearProblem(0.1)
	p.F = func(x, y float64) float64 {
		if x > 0.95 {
			return math.Inf(1)
		}
		return x - y
	}

	sink := newRecordSink()
	result, err := New().RunScalar(context.Background(), p, sink)
	if !errors.Is(err, dynamo.ErrRecoveryFailed) {
		t.Fatalf("expected recovery failure, got %v", err)
	}

	var simErr *dynamo.SimulationError
	if !errors.As(err, &simErr) {
		t.Fatalf("expected *SimulationError, got %T", err)
	}
	if result == nil || result.Status != StatusRecoveryFailed {
		t.Fatalf("expected partial result with recovery_failed status, got %+v", result)
	}
	if len(sink.series[SeriesSolution]) == 0 {
		t.Error("samples before the failure should have been emitted")
	}
	if result.Steps >= 20 {
		t.Errorf("run should end early, took %d steps", result.Steps)
	}
}

func TestRunScalarValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ScalarProblem)
	}{
		{"zero step", func(p *ScalarProblem) { p.H = 0 }},
		{"negative step", func(p *ScalarProblem) { p.H = -0.1 }},
		{"empty interval", func(p *ScalarProblem) { p.XEnd = p.X0 }},
		{"nan initial", func(p *ScalarProblem) { p.Y0 = math.NaN() }},
		{"no function", func(p *ScalarProblem) { p.F = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := linearProblem(0.1)
			tt.mutate(&p)
			if _, err := New().RunScalar(context.Background(), p, nil); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRunScalarCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := New().RunScalar(ctx, linearProblem(0.1), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.Status != StatusCanceled {
		t.Errorf("expected canceled status, got %s", result.Status)
	}
}

func rotationProblem() SystemProblem {
	return SystemProblem{
		Name: "rotation",
		System: dynamo.Planar{
			F1: func(x, y float64) float64 { return y },
			F2: func(x, y float64) float64 { return -x },
		},
		Layout:    LayoutPlanar,
		Exact:     math.Cos,
		Invariant: func(x dynamo.State) float64 { return x[0]*x[0] + x[1]*x[1] },
		X0:        dynamo.State{1, 0},
		TEnd:      10,
		H:         0.05,
	}
}

func TestRunSystem(t *testing.T) {
	sink := newRecordSink()
	sim := New()
	stab := metrics.NewStability(2)
	sim.AddMetric(stab)

	result, err := sim.RunSystem(context.Background(), rotationProblem(), sink)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Steps != 200 {
		t.Errorf("expected 200 steps, got %d", result.Steps)
	}

	final := result.Final()
	r := final[0]*final[0] + final[1]*final[1]
	if math.Abs(r-1) > 0.01 {
		t.Errorf("x²+y² = %.6f, expected within 1%% of 1", r)
	}
	if !result.HasInvariant || result.InvariantVariation() > 0.01 {
		t.Errorf("invariant variation too large: %.3e", result.InvariantVariation())
	}
	if result.Diagnostics.Len() != 0 {
		t.Errorf("expected no warnings, got %v", result.Diagnostics.Warnings)
	}
	if result.Metrics["stability"] != 1 {
		t.Errorf("expected stability 1, got %f", result.Metrics["stability"])
	}

	for _, name := range []string{SeriesX, SeriesY, SeriesPhase, SeriesError} {
		if got := len(sink.series[name]); got != 201 {
			t.Errorf("series %s: expected 201 tuples, got %d", name, got)
		}
	}
}

func TestRunSystemSecondOrder(t *testing.T) {
	p := SystemProblem{
		Name:   "oscillator",
		System: dynamo.SecondOrder{F: func(x, y, yp float64) float64 { return -y }},
		Layout: LayoutSecondOrder,
		Exact:  math.Sin,
		X0:     dynamo.State{0, 1},
		TEnd:   2 * math.Pi,
		H:      0.01,
	}

	sink := newRecordSink()
	result, err := New().RunSystem(context.Background(), p, sink)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.MaxError > 1e-6 {
		t.Errorf("max error too large: %.3e", result.MaxError)
	}
	if len(sink.series[SeriesDerivative]) == 0 || len(sink.series[SeriesSolution]) == 0 {
		t.Error("second-order layout should emit solution and derivative series")
	}
	if len(sink.series[SeriesX]) != 0 {
		t.Error("second-order layout should not emit planar series")
	}
}

func TestRunSystemWithoutInvariant(t *testing.T) {
	tests := []struct {
		name   string
		system dynamo.System
		layout Layout
	}{
		{"decay", dynamo.Planar{
			F1: func(x, y float64) float64 { return -x },
			F2: func(x, y float64) float64 { return -y },
		}, LayoutPlanar},
		{"damped", dynamo.SecondOrder{F: func(x, y, yp float64) float64 { return -yp }}, LayoutSecondOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := SystemProblem{
				Name:   tt.name,
				System: tt.system,
				Layout: tt.layout,
				X0:     dynamo.State{1, 1},
				TEnd:   2,
				H:      0.05,
			}
			result, err := New().RunSystem(context.Background(), p, nil)
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if result.HasInvariant {
				t.Error("no invariant was configured")
			}
			if n := result.Diagnostics.Count(dynamo.WarnEnergyDrift); n != 0 {
				t.Errorf("expected no drift warnings, got %d", n)
			}
			if result.InvariantVariation() != 0 {
				t.Errorf("expected zero variation, got %f", result.InvariantVariation())
			}
		})
	}
}

func TestRunScalarStepLimit(t *testing.T) {
	sink := newRecordSink()
	result, err := New(WithMaxSteps(5)).RunScalar(context.Background(), linearProblem(0.1), sink)
	if !errors.Is(err, dynamo.ErrStepLimit) {
		t.Fatalf("expected step limit, got %v", err)
	}
	if result.Status != StatusStepLimit {
		t.Errorf("expected step_limit status, got %s", result.Status)
	}
	if result.Steps != 5 {
		t.Errorf("expected 5 steps, got %d", result.Steps)
	}
	if len(sink.series[SeriesSolution]) != 6 {
		t.Errorf("expected 6 samples before the cap, got %d", len(sink.series[SeriesSolution]))
	}
}

func TestRunSystemStepLimit(t *testing.T) {
	result, err := New(WithMaxSteps(3)).RunSystem(context.Background(), rotationProblem(), nil)
	if !errors.Is(err, dynamo.ErrStepLimit) {
		t.Fatalf("expected step limit, got %v", err)
	}
	if result.Status != StatusStepLimit || result.Steps != 3 {
		t.Errorf("expected step_limit after 3 steps, got %s after %d", result.Status, result.Steps)
	}
}

func TestStepCapTooLarge(t *testing.T) {
	p := linearProblem(1e-300)
	if _, err := New().RunScalar(context.Background(), p, nil); !errors.Is(err, dynamo.ErrInvalidConfig) {
		t.Errorf("expected invalid config for an oversized grid, got %v", err)
	}

	q := rotationProblem()
	q.H = 1e-12
	if _, err := New().RunSystem(context.Background(), q, nil); !errors.Is(err, dynamo.ErrInvalidConfig) {
		t.Errorf("expected invalid config for an oversized grid, got %v", err)
	}
}

func TestRunSystemWarnings(t *testing.T) {
	p := SystemProblem{
		Name: "explode",
		System: dynamo.SystemFunc{Dim: 2, F: func(t float64, x dynamo.State) dynamo.State {
			return dynamo.State{100 * x[0], 100 * x[1]}
		}},
		Layout: LayoutPlanar,
		X0:     dynamo.State{1e-20, 1e-20},
		TEnd:   0.9,
		H:      0.1,
	}

	result, err := New().RunSystem(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("warnings must not stop the run: %v", err)
	}
	if result.Diagnostics.Count(dynamo.WarnGrowth) != 3 {
		t.Errorf("expected growth warnings on steps 6-8, got %d", result.Diagnostics.Count(dynamo.WarnGrowth))
	}
}

func TestRunSystemFault(t *testing.T) {
	p := rotationProblem()
	p.System = dynamo.SystemFunc{Dim: 2, F: func(t float64, x dynamo.State) dynamo.State {
		if t > 1 {
			return dynamo.State{math.NaN(), 0}
		}
		return dynamo.State{x[1], -x[0]}
	}}

	result, err := New().RunSystem(context.Background(), p, nil)
	if !errors.Is(err, dynamo.ErrNumericFault) {
		t.Fatalf("expected numeric fault, got %v", err)
	}
	if result.Status != StatusFault {
		t.Errorf("expected fault status, got %s", result.Status)
	}
}

func TestRunSystemDimension(t *testing.T) {
	p := rotationProblem()
	p.X0 = dynamo.State{1, 0, 0}
	if _, err := New().RunSystem(context.Background(), p, nil); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
}
