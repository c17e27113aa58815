package dynamo

import "math"

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

// IsValid reports whether every component passes the numeric guard.
func (s State) IsValid() bool {
	for _, v := range s {
		if !IsValid(v) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// ScalarFunc is the right-hand side of a scalar first-order ODE y' = f(x, y).
type ScalarFunc func(x, y float64) float64

// Func1 is a function of one variable (Newton targets, exact solutions).
type Func1 func(x float64) float64

// Func2 is a function of two variables.
type Func2 func(x, y float64) float64

// System is a first-order system dX/dt = f(t, X).
type System interface {
	Derive(t float64, x State) State
	StateDim() int
}

// SystemFunc adapts a closure to System.
type SystemFunc struct {
	Dim int
	F   func(t float64, x State) State
}

func (s SystemFunc) Derive(t float64, x State) State { return s.F(t, x) }
func (s SystemFunc) StateDim() int                   { return s.Dim }

// SecondOrder reduces y'' = f(x, y, y') to the first-order system (y, y').
type SecondOrder struct {
	F func(x, y, yp float64) float64
}

func (s SecondOrder) Derive(t float64, x State) State {
	return State{x[1], s.F(t, x[0], x[1])}
}

func (s SecondOrder) StateDim() int { return 2 }

// Planar is the coupled system dx/dt = F1(x, y), dy/dt = F2(x, y).
type Planar struct {
	F1, F2 Func2
}

func (p Planar) Derive(t float64, x State) State {
	return State{p.F1(x[0], x[1]), p.F2(x[0], x[1])}
}

func (p Planar) StateDim() int { return 2 }

// Sink receives ordered sample tuples on named series. The core never
// depends on how a sink persists them.
type Sink interface {
	Emit(series string, values ...float64) error
	Close() error
}

type nopSink struct{}

func (nopSink) Emit(string, ...float64) error { return nil }
func (nopSink) Close() error                  { return nil }

// Discard is a Sink that drops every sample.
var Discard Sink = nopSink{}
