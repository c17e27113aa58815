package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	kitlog "github.com/go-kit/kit/log"

	"github.com/san-kum/numlab/internal/dynamo"
	"github.com/san-kum/numlab/internal/integrators"
	"github.com/san-kum/numlab/internal/metrics"
)

const (
	// StepCapFactor bounds a run to this multiple of the naive step estimate.
	StepCapFactor = 10
	// MaxStepCap is the largest step cap a run may need; a finer grid is
	// rejected as a config error.
	MaxStepCap = 100_000_000
)

type Simulator struct {
	scalar   integrators.Scalar
	system   *integrators.SystemRK4
	metrics  []Metric
	maxSteps int
	logger   kitlog.Logger
}

type Option func(*Simulator)

func WithLogger(l kitlog.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

// WithScalarStepper replaces the default scalar RK4 stepper.
func WithScalarStepper(st integrators.Scalar) Option {
	return func(s *Simulator) { s.scalar = st }
}

func WithSystemStepper(st *integrators.SystemRK4) Option {
	return func(s *Simulator) { s.system = st }
}

// WithMaxSteps lowers the step cap of every run to n when n is positive.
func WithMaxSteps(n int) Option {
	return func(s *Simulator) { s.maxSteps = n }
}

func New(opts ...Option) *Simulator {
	s := &Simulator{
		scalar: integrators.NewScalarRK4(),
		system: integrators.NewSystemRK4(),
		logger: kitlog.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) AddMetric(m Metric) { s.metrics = append(s.metrics, m) }

// stepCap is StepCapFactor times ceil(span/h), lowered to the configured
// maximum. A cap above MaxStepCap is a config error.
func (s *Simulator) stepCap(span, h float64) (int, error) {
	est := StepCapFactor * math.Ceil(span/h)
	if !(est <= MaxStepCap) {
		return 0, dynamo.Invalidf("interval %g with step %g needs more than %d steps", span, h, MaxStepCap/StepCapFactor)
	}
	limit := int(est)
	if s.maxSteps > 0 && s.maxSteps < limit {
		limit = s.maxSteps
	}
	return limit, nil
}

func (s *Simulator) warn(subsys string, d *dynamo.Diagnostics, ws []dynamo.Warning) {
	for _, w := range ws {
		s.logger.Log("level", "warning", "subsys", subsys, "kind", w.Kind, "step", w.Step, "value", w.Value, "message", w.Message)
	}
	d.Add(ws...)
}

func (s *Simulator) newResult(name, method string) *Result {
	for _, m := range s.metrics {
		m.Reset()
	}
	return &Result{
		Problem:     name,
		Method:      method,
		Status:      StatusCompleted,
		Diagnostics: dynamo.NewDiagnostics(),
		Metrics:     make(map[string]float64),
	}
}

func (s *Simulator) observe(res *Result, x dynamo.State, t float64) {
	res.States = append(res.States, x.Clone())
	res.Times = append(res.Times, t)
	for _, m := range s.metrics {
		m.Observe(x, t)
	}
}

func (s *Simulator) finish(res *Result, status Status, err error) (*Result, error) {
	for _, m := range s.metrics {
		res.Metrics[m.Name()] = m.Value()
	}
	res.Status = status
	res.Err = err
	if err != nil {
		s.logger.Log("level", "error", "subsys", "sim", "problem", res.Problem, "status", status, "steps", res.Steps, "err", err)
	} else {
		s.logger.Log("level", "info", "subsys", "sim", "problem", res.Problem, "status", status, "steps", res.Steps, "warnings", res.Diagnostics.Len())
	}
	return res, err
}

func statusOf(err error) Status {
	switch {
	case errors.Is(err, dynamo.ErrRecoveryFailed):
		return StatusRecoveryFailed
	case errors.Is(err, dynamo.ErrStepLimit):
		return StatusStepLimit
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCanceled
	}
	return StatusFault
}

func validateScalar(p ScalarProblem) error {
	if p.F == nil {
		return dynamo.Invalidf("scalar problem %q has no right-hand side", p.Name)
	}
	if p.H <= 0 {
		return dynamo.Invalidf("step h must be positive, got %g", p.H)
	}
	if p.XEnd <= p.X0 {
		return dynamo.Invalidf("x_end (%g) must exceed x_start (%g)", p.XEnd, p.X0)
	}
	if p.MaxHalvings < 0 {
		return dynamo.Invalidf("max halvings must not be negative, got %d", p.MaxHalvings)
	}
	return dynamo.First(
		dynamo.Require("x0", p.X0),
		dynamo.Require("y0", p.Y0),
		dynamo.Require("x_end", p.XEnd),
		dynamo.Require("h", p.H),
	)
}

// RunScalar integrates y' = f(x, y) from X0 to XEnd. Each sample is emitted
// on the solution series before the step that leaves it. A step that fails
// the numeric guard is retried through integrators.Recovery; if that fails
// the run ends early and the partial result is returned with the error.
func (s *Simulator) RunScalar(ctx context.Context, p ScalarProblem, sink dynamo.Sink) (*Result, error) {
	if err := validateScalar(p); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = dynamo.Discard
	}

	limit, err := s.stepCap(p.XEnd-p.X0, p.H)
	if err != nil {
		return nil, err
	}
	res := s.newResult(p.Name, s.scalar.Name())
	rec := integrators.NewRecovery(p.MaxHalvings)

	var exact *metrics.ExactError
	if p.Exact != nil {
		exact = metrics.NewExactError(p.Exact)
		res.HasExact = true
	}

	s.logger.Log("level", "info", "subsys", "sim", "problem", p.Name, "method", s.scalar.Name(), "h", p.H, "x0", p.X0, "x_end", p.XEnd)

	x, y := p.X0, p.Y0
	h := p.H
	for x <= p.XEnd+h/2 {
		select {
		case <-ctx.Done():
			return s.finish(res, StatusCanceled, ctx.Err())
		default:
		}

		s.observe(res, dynamo.State{y}, x)
		if err := sink.Emit(SeriesSolution, x, y); err != nil {
			return s.finish(res, StatusFault, fmt.Errorf("emit %s: %w", SeriesSolution, err))
		}
		if exact != nil {
			e := exact.Record(x, y)
			if err := sink.Emit(SeriesError, x, e); err != nil {
				return s.finish(res, StatusFault, fmt.Errorf("emit %s: %w", SeriesError, err))
			}
		}

		if x+h > p.XEnd+h/2 {
			break
		}
		if res.Steps >= limit {
			err := &dynamo.SimulationError{Step: res.Steps, Time: x, State: dynamo.State{y}, Wrapped: dynamo.ErrStepLimit}
			return s.finish(res, StatusStepLimit, err)
		}

		step, level, err := rec.Step(s.scalar, p.F, x, y, h, res.Steps)
		if err != nil {
			err = &dynamo.SimulationError{Step: res.Steps, Time: x, State: dynamo.State{y}, Wrapped: err}
			if exact != nil {
				s.fillErrors(res, exact)
			}
			return s.finish(res, statusOf(err), err)
		}
		if level > 0 {
			res.Recovered++
		}
		s.warn("rk4", res.Diagnostics, step.Warnings)

		y = step.Y
		res.Steps++
		x = p.X0 + float64(res.Steps)*h
	}

	if exact != nil {
		s.fillErrors(res, exact)
	}
	return s.finish(res, StatusCompleted, nil)
}

func (s *Simulator) fillErrors(res *Result, e *metrics.ExactError) {
	res.MaxError = e.Value()
	res.MeanError = e.Mean()
	res.FinalError = e.Last()
}

func validateSystem(p SystemProblem) error {
	if p.System == nil {
		return dynamo.Invalidf("system problem %q has no right-hand side", p.Name)
	}
	if p.H <= 0 {
		return dynamo.Invalidf("step h must be positive, got %g", p.H)
	}
	if p.TEnd <= p.T0 {
		return dynamo.Invalidf("t_end (%g) must exceed t_start (%g)", p.TEnd, p.T0)
	}
	if len(p.X0) != p.System.StateDim() {
		return fmt.Errorf("%w: initial state has %d components, system expects %d",
			dynamo.ErrDimensionMismatch, len(p.X0), p.System.StateDim())
	}
	if len(p.X0) < 2 {
		return dynamo.Invalidf("system state needs at least 2 components, got %d", len(p.X0))
	}
	return dynamo.First(
		dynamo.Require("t0", p.T0),
		dynamo.Require("t_end", p.TEnd),
		dynamo.Require("h", p.H),
		dynamo.RequireAll("x0", p.X0),
	)
}

func (s *Simulator) emitSystem(sink dynamo.Sink, layout Layout, t float64, x dynamo.State) error {
	var err error
	switch layout {
	case LayoutSecondOrder:
		err = dynamo.First(
			sink.Emit(SeriesSolution, t, x[0]),
			sink.Emit(SeriesDerivative, t, x[1]),
			sink.Emit(SeriesPhase, x[0], x[1]),
		)
	case LayoutPlanar:
		err = dynamo.First(
			sink.Emit(SeriesX, t, x[0]),
			sink.Emit(SeriesY, t, x[1]),
			sink.Emit(SeriesPhase, x[0], x[1]),
		)
	}
	if err != nil {
		return fmt.Errorf("emit: %w", err)
	}
	return nil
}

// RunSystem integrates a coupled system with the full-state RK4 stepper.
// Drift and growth warnings are collected but never change the trajectory.
func (s *Simulator) RunSystem(ctx context.Context, p SystemProblem, sink dynamo.Sink) (*Result, error) {
	if err := validateSystem(p); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = dynamo.Discard
	}

	stepper := s.system
	if p.Invariant != nil {
		cp := *s.system
		integrators.WithInvariant(p.Invariant)(&cp)
		stepper = &cp
	}

	limit, err := s.stepCap(p.TEnd-p.T0, p.H)
	if err != nil {
		return nil, err
	}
	res := s.newResult(p.Name, "rk4")
	inv := stepper.Invariant()

	var exact *metrics.ExactError
	if p.Exact != nil {
		exact = metrics.NewExactError(p.Exact)
		res.HasExact = true
	}
	if inv != nil {
		res.HasInvariant = true
		res.InitialInvariant = inv(p.X0)
		res.FinalInvariant = res.InitialInvariant
	}

	s.logger.Log("level", "info", "subsys", "sim", "problem", p.Name, "method", "rk4", "h", p.H, "t0", p.T0, "t_end", p.TEnd)

	t := p.T0
	h := p.H
	x := p.X0.Clone()
	for t <= p.TEnd+h/2 {
		select {
		case <-ctx.Done():
			return s.finish(res, StatusCanceled, ctx.Err())
		default:
		}

		s.observe(res, x, t)
		if err := s.emitSystem(sink, p.Layout, t, x); err != nil {
			return s.finish(res, StatusFault, err)
		}
		if exact != nil {
			e := exact.Record(t, x[0])
			if err := sink.Emit(SeriesError, t, e); err != nil {
				return s.finish(res, StatusFault, fmt.Errorf("emit %s: %w", SeriesError, err))
			}
		}

		if t+h > p.TEnd+h/2 {
			break
		}
		if res.Steps >= limit {
			err := &dynamo.SimulationError{Step: res.Steps, Time: t, State: x.Clone(), Wrapped: dynamo.ErrStepLimit}
			return s.finish(res, StatusStepLimit, err)
		}

		step, err := stepper.Step(p.System, t, x, h, res.Steps)
		if err != nil {
			err = &dynamo.SimulationError{Step: res.Steps, Time: t, State: x.Clone(), Wrapped: err}
			if exact != nil {
				s.fillErrors(res, exact)
			}
			return s.finish(res, statusOf(err), err)
		}
		s.warn("rk4", res.Diagnostics, step.Warnings)

		x = step.X
		if inv != nil {
			res.FinalInvariant = step.Energy1
		}
		res.Steps++
		t = p.T0 + float64(res.Steps)*h
	}

	if exact != nil {
		s.fillErrors(res, exact)
	}
	return s.finish(res, StatusCompleted, nil)
}
