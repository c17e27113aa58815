// Package newton implements Newton-Raphson root finding for a scalar
// equation and for a 2x2 nonlinear system solved by closed-form inversion.
package newton

import (
	kitlog "github.com/go-kit/kit/log"

	"github.com/san-kum/numlab/internal/dynamo"
)

// Series names forwarded to the sink.
const (
	SeriesIterations = "iterations"
	SeriesTrajectory = "trajectory"
)

const (
	// ZeroThreshold is the |f'| or |det J| below which a step is impossible.
	ZeroThreshold = 1e-15

	ScalarDivergence       = 1e10
	ScalarDivergenceWarmup = 5
	ScalarResidualLimit    = 0.1

	SystemDivergence       = 1e5
	SystemDivergenceWarmup = 3
	SystemResidualLimit    = 0.01

	DefaultTolerance     = 1e-6
	DefaultScalarMaxIter = 100
	DefaultSystemMaxIter = 50
)

type Status int

const (
	Iterating Status = iota
	Converged
	Diverged
	DerivativeZero
	SingularJacobian
	MaxIterExceeded
	Faulted
)

func (s Status) String() string {
	switch s {
	case Iterating:
		return "iterating"
	case Converged:
		return "converged"
	case Diverged:
		return "diverged"
	case DerivativeZero:
		return "derivative_zero"
	case SingularJacobian:
		return "singular_jacobian"
	case MaxIterExceeded:
		return "max_iter_exceeded"
	case Faulted:
		return "fault"
	}
	return "unknown"
}

// Terminal reports whether no further iteration happens in this status.
func (s Status) Terminal() bool { return s != Iterating }

// Record is one accepted iteration. Jacobian holds f'(x) for the scalar
// solver and det J for the system solver.
type Record struct {
	Iteration int
	State     dynamo.State
	Residual  dynamo.State
	Jacobian  float64
	Error     float64
}

type Result struct {
	Status      Status
	Root        dynamo.State
	Iterations  int
	Records     []Record
	Residual    dynamo.State
	Diagnostics *dynamo.Diagnostics
	Err         error
}

type options struct {
	tol     float64
	maxIter int
	logger  kitlog.Logger
}

type Option func(*options)

func WithTolerance(tol float64) Option {
	return func(o *options) { o.tol = tol }
}

func WithMaxIter(n int) Option {
	return func(o *options) { o.maxIter = n }
}

func WithLogger(l kitlog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(maxIter int, opts []Option) (options, error) {
	o := options{
		tol:     DefaultTolerance,
		maxIter: maxIter,
		logger:  kitlog.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if !(o.tol > 0) || !dynamo.IsValid(o.tol) {
		return o, dynamo.Invalidf("tolerance must be positive, got %g", o.tol)
	}
	if o.maxIter <= 0 {
		return o, dynamo.Invalidf("max iterations must be positive, got %d", o.maxIter)
	}
	return o, nil
}
