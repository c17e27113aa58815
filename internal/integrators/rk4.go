package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/numlab/internal/dynamo"
)

const (
	// InstabilityLimit is the |y| above which a scalar step is flagged.
	InstabilityLimit = 1e10
	// InstabilityWarmup is the number of steps before instability is flagged.
	InstabilityWarmup = 10

	DefaultDriftThreshold = 1e-3
	DefaultDriftWarmup    = 10
	DefaultGrowthWarmup   = 5
	// DefaultRadiusTolerance is the allowed |‖x‖ - radius| once a radius is set.
	DefaultRadiusTolerance = 0.1
	// GrowthFactor is the per-step norm ratio considered runaway growth.
	GrowthFactor = 10.0
)

// Scalar advances y' = f(x, y) by one step.
type Scalar interface {
	Step(f dynamo.ScalarFunc, x, y, h float64, step int) (ScalarStep, error)
	Order() int
	Name() string
}

// ScalarStep is the transient outcome of one scalar step.
type ScalarStep struct {
	Y        float64
	K        [4]float64
	Valid    bool
	Warnings []dynamo.Warning
}

type ScalarRK4 struct{}

func NewScalarRK4() *ScalarRK4 {
	return &ScalarRK4{}
}

func (r *ScalarRK4) Name() string { return "rk4" }
func (r *ScalarRK4) Order() int   { return 4 }

// Step performs one classic RK4 step. Every stage argument, stage slope and
// the result pass the numeric guard; the first failure is returned.
func (r *ScalarRK4) Step(f dynamo.ScalarFunc, x, y, h float64, step int) (ScalarStep, error) {
	var out ScalarStep

	k1 := f(x, y)
	if err := dynamo.Require("k1", k1); err != nil {
		return out, err
	}

	xm := x + h/2
	y2 := y + h*k1/2
	if err := dynamo.First(dynamo.Require("x+h/2", xm), dynamo.Require("y+h*k1/2", y2)); err != nil {
		return out, err
	}
	k2 := f(xm, y2)
	if err := dynamo.Require("k2", k2); err != nil {
		return out, err
	}

	y3 := y + h*k2/2
	if err := dynamo.Require("y+h*k2/2", y3); err != nil {
		return out, err
	}
	k3 := f(xm, y3)
	if err := dynamo.Require("k3", k3); err != nil {
		return out, err
	}

	x4 := x + h
	y4 := y + h*k3
	if err := dynamo.First(dynamo.Require("x+h", x4), dynamo.Require("y+h*k3", y4)); err != nil {
		return out, err
	}
	k4 := f(x4, y4)
	if err := dynamo.Require("k4", k4); err != nil {
		return out, err
	}

	next := y + h*(k1+2*k2+2*k3+k4)/6
	if err := dynamo.Require("y_next", next); err != nil {
		return out, err
	}

	out.Y = next
	out.K = [4]float64{k1, k2, k3, k4}
	out.Valid = true
	if math.Abs(next) > InstabilityLimit && step > InstabilityWarmup {
		out.Warnings = append(out.Warnings, dynamo.Warning{
			Kind:    dynamo.WarnInstability,
			Step:    step,
			Value:   next,
			Message: fmt.Sprintf("|y| exceeded %.0e at x=%.4f", InstabilityLimit, x4),
		})
	}
	return out, nil
}

// SystemStep is the transient outcome of one system step.
type SystemStep struct {
	X        dynamo.State
	K        [4]dynamo.State
	Energy0  float64
	Energy1  float64
	Valid    bool
	Warnings []dynamo.Warning
}

// SystemRK4 integrates an N-dimensional system. Each stage evaluates the
// derivative on the full intermediate state.
type SystemRK4 struct {
	DriftThreshold float64
	DriftWarmup    int
	GrowthWarmup   int

	// Radius, when positive, is the norm the state should keep; leaving it
	// by more than RadiusTolerance after GrowthWarmup steps is flagged.
	Radius          float64
	RadiusTolerance float64

	invariant func(dynamo.State) float64
	scratch   dynamo.State
}

type SystemOption func(*SystemRK4)

// WithInvariant sets the conserved quantity checked after every step. Without
// one no drift check runs.
func WithInvariant(fn func(dynamo.State) float64) SystemOption {
	return func(r *SystemRK4) { r.invariant = fn }
}

func WithDriftThreshold(v float64) SystemOption {
	return func(r *SystemRK4) { r.DriftThreshold = v }
}

func WithDriftWarmup(n int) SystemOption {
	return func(r *SystemRK4) { r.DriftWarmup = n }
}

func WithGrowthWarmup(n int) SystemOption {
	return func(r *SystemRK4) { r.GrowthWarmup = n }
}

func WithRadius(radius, tol float64) SystemOption {
	return func(r *SystemRK4) {
		r.Radius = radius
		r.RadiusTolerance = tol
	}
}

func NewSystemRK4(opts ...SystemOption) *SystemRK4 {
	r := &SystemRK4{
		DriftThreshold:  DefaultDriftThreshold,
		DriftWarmup:     DefaultDriftWarmup,
		GrowthWarmup:    DefaultGrowthWarmup,
		RadiusTolerance: DefaultRadiusTolerance,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *SystemRK4) ensureScratch(n int) {
	if len(r.scratch) != n {
		r.scratch = make(dynamo.State, n)
	}
}

// Invariant returns the conserved quantity checked after each step, or nil.
func (r *SystemRK4) Invariant() func(dynamo.State) float64 {
	return r.invariant
}

func (r *SystemRK4) stage(sys dynamo.System, t float64, x, k dynamo.State, scale float64, name string) (dynamo.State, error) {
	for i := range x {
		r.scratch[i] = x[i] + scale*k[i]
	}
	if err := dynamo.RequireAll(name+".arg", r.scratch); err != nil {
		return nil, err
	}
	out := sys.Derive(t, r.scratch)
	if len(out) != len(x) {
		return nil, fmt.Errorf("%w: %s has %d components, state has %d",
			dynamo.ErrDimensionMismatch, name, len(out), len(x))
	}
	if err := dynamo.RequireAll(name, out); err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

func (r *SystemRK4) Step(sys dynamo.System, t float64, x dynamo.State, h float64, step int) (SystemStep, error) {
	var out SystemStep
	n := len(x)
	if n != sys.StateDim() {
		return out, fmt.Errorf("%w: state has %d components, system expects %d",
			dynamo.ErrDimensionMismatch, n, sys.StateDim())
	}
	r.ensureScratch(n)

	k1 := sys.Derive(t, x)
	if len(k1) != n {
		return out, fmt.Errorf("%w: k1 has %d components, state has %d",
			dynamo.ErrDimensionMismatch, len(k1), n)
	}
	if err := dynamo.RequireAll("k1", k1); err != nil {
		return out, err
	}
	k1 = k1.Clone()

	k2, err := r.stage(sys, t+h/2, x, k1, h/2, "k2")
	if err != nil {
		return out, err
	}
	k3, err := r.stage(sys, t+h/2, x, k2, h/2, "k3")
	if err != nil {
		return out, err
	}
	k4, err := r.stage(sys, t+h, x, k3, h, "k4")
	if err != nil {
		return out, err
	}

	next := make(dynamo.State, n)
	h6 := h / 6.0
	for i := 0; i < n; i++ {
		next[i] = x[i] + h6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}
	if err := dynamo.RequireAll("x_next", next); err != nil {
		return out, err
	}

	out.X = next
	out.K = [4]dynamo.State{k1, k2, k3, k4}
	out.Valid = true

	if inv := r.invariant; inv != nil {
		out.Energy0 = inv(x)
		out.Energy1 = inv(next)
		drift := math.Abs(out.Energy1 - out.Energy0)
		if out.Energy0 != 0 {
			drift /= math.Abs(out.Energy0)
		}
		if drift > r.DriftThreshold && step > r.DriftWarmup {
			out.Warnings = append(out.Warnings, dynamo.Warning{
				Kind:    dynamo.WarnEnergyDrift,
				Step:    step,
				Value:   drift,
				Message: fmt.Sprintf("invariant moved from %.6f to %.6f", out.Energy0, out.Energy1),
			})
		}
	}

	n0, n1 := x.Norm(), next.Norm()
	if n1 > GrowthFactor*n0 && step > r.GrowthWarmup {
		out.Warnings = append(out.Warnings, dynamo.Warning{
			Kind:    dynamo.WarnGrowth,
			Step:    step,
			Value:   n1,
			Message: fmt.Sprintf("state norm grew from %.4e to %.4e", n0, n1),
		})
	}
	if r.Radius > 0 && math.Abs(n1-r.Radius) > r.RadiusTolerance && step > r.GrowthWarmup {
		out.Warnings = append(out.Warnings, dynamo.Warning{
			Kind:    dynamo.WarnRadius,
			Step:    step,
			Value:   n1,
			Message: fmt.Sprintf("radius %.6f, expected ~%g", n1, r.Radius),
		})
	}
	return out, nil
}
