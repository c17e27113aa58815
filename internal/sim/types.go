package sim

import (
	"math"

	"github.com/san-kum/numlab/internal/dynamo"
)

// Series names forwarded to the sink.
const (
	SeriesSolution   = "solution"
	SeriesError      = "error"
	SeriesDerivative = "derivative"
	SeriesPhase      = "phase"
	SeriesX          = "x"
	SeriesY          = "y"
)

type Metric interface {
	Name() string
	Observe(x dynamo.State, t float64)
	Value() float64
	Reset()
}

// Layout selects which named series a system run emits.
type Layout int

const (
	// LayoutSecondOrder treats the state as (y, y').
	LayoutSecondOrder Layout = iota
	// LayoutPlanar treats the state as (x, y) of a coupled system.
	LayoutPlanar
)

type ScalarProblem struct {
	Name  string
	F     dynamo.ScalarFunc
	Exact dynamo.Func1

	X0   float64
	Y0   float64
	XEnd float64
	H    float64

	MaxHalvings int
}

type SystemProblem struct {
	Name   string
	System dynamo.System
	Layout Layout
	// Exact, when set, returns the first state component at t.
	Exact     dynamo.Func1
	Invariant func(dynamo.State) float64

	T0   float64
	X0   dynamo.State
	TEnd float64
	H    float64
}

type Status string

const (
	StatusCompleted      Status = "completed"
	StatusRecoveryFailed Status = "recovery_failed"
	StatusStepLimit      Status = "step_limit"
	StatusFault          Status = "fault"
	StatusCanceled       Status = "canceled"
)

func (s Status) OK() bool { return s == StatusCompleted }

type Result struct {
	Problem string
	Method  string
	Status  Status

	States []dynamo.State
	Times  []float64

	Steps     int
	Recovered int

	Diagnostics *dynamo.Diagnostics
	Metrics     map[string]float64

	HasExact   bool
	MaxError   float64
	MeanError  float64
	FinalError float64

	HasInvariant     bool
	InitialInvariant float64
	FinalInvariant   float64

	Err error
}

// InvariantVariation is |E1-E0|/|E0|, or the absolute change when E0 is zero.
func (r *Result) InvariantVariation() float64 {
	if !r.HasInvariant {
		return 0
	}
	d := math.Abs(r.FinalInvariant - r.InitialInvariant)
	if r.InitialInvariant != 0 {
		return d / math.Abs(r.InitialInvariant)
	}
	return d
}

func (r *Result) Final() dynamo.State {
	if len(r.States) == 0 {
		return nil
	}
	return r.States[len(r.States)-1]
}
