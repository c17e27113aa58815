package newton

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/numlab/internal/dynamo"
)

// Scalar finds a root of f given its derivative df.
type Scalar struct {
	f, df dynamo.Func1
	opts  options
}

func NewScalar(f, df dynamo.Func1, opts ...Option) (*Scalar, error) {
	if f == nil || df == nil {
		return nil, dynamo.Invalidf("scalar newton needs f and f'")
	}
	o, err := buildOptions(DefaultScalarMaxIter, opts)
	if err != nil {
		return nil, err
	}
	return &Scalar{f: f, df: df, opts: o}, nil
}

func (s *Scalar) fail(res *Result, status Status, err error) (*Result, error) {
	res.Status = status
	res.Err = err
	s.opts.logger.Log("level", "error", "subsys", "newton", "status", status, "iterations", res.Iterations, "err", err)
	return res, err
}

// Solve iterates from x0 until convergence, divergence, a zero derivative or
// the iteration cap. Every accepted iteration is recorded and emitted on the
// iterations series as (i, x, f(x), f'(x), error) before the status is
// decided. Diverged and MaxIterExceeded are returned without an error.
func (s *Scalar) Solve(ctx context.Context, x0 float64, sink dynamo.Sink) (*Result, error) {
	if err := dynamo.Require("x0", x0); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = dynamo.Discard
	}

	res := &Result{Status: Iterating, Diagnostics: dynamo.NewDiagnostics()}
	logger := s.opts.logger
	logger.Log("level", "info", "subsys", "newton", "mode", "scalar", "x0", x0, "tol", s.opts.tol, "max_iter", s.opts.maxIter)

	x := x0
	for iter := 0; res.Status == Iterating; iter++ {
		select {
		case <-ctx.Done():
			return s.fail(res, Faulted, ctx.Err())
		default:
		}

		fx, dfx := s.f(x), s.df(x)
		if err := dynamo.First(dynamo.Require("f(x)", fx), dynamo.Require("f'(x)", dfx)); err != nil {
			return s.fail(res, Faulted, fmt.Errorf("newton iteration %d: %w", iter, err))
		}
		if math.Abs(dfx) < ZeroThreshold {
			res.Root = dynamo.State{x}
			return s.fail(res, DerivativeZero,
				fmt.Errorf("newton iteration %d at x=%g (f'=%.2e): %w", iter, x, dfx, dynamo.ErrDerivativeZero))
		}

		next := x - fx/dfx
		errAbs := math.Abs(next - x)
		if err := dynamo.First(dynamo.Require("x_next", next), dynamo.Require("error", errAbs)); err != nil {
			return s.fail(res, Faulted, fmt.Errorf("newton iteration %d: %w", iter, err))
		}

		res.Records = append(res.Records, Record{
			Iteration: iter,
			State:     dynamo.State{x},
			Residual:  dynamo.State{fx},
			Jacobian:  dfx,
			Error:     errAbs,
		})
		res.Iterations = iter + 1
		if err := sink.Emit(SeriesIterations, float64(iter), x, fx, dfx, errAbs); err != nil {
			return s.fail(res, Faulted, fmt.Errorf("emit %s: %w", SeriesIterations, err))
		}

		switch {
		case errAbs > ScalarDivergence && iter > ScalarDivergenceWarmup:
			res.Status = Diverged
			res.Root = dynamo.State{x}
			w := dynamo.Warning{Kind: dynamo.WarnDivergence, Step: iter, Value: errAbs, Message: "error keeps growing, try another starting point"}
			logger.Log("level", "warning", "subsys", "newton", "kind", w.Kind, "step", iter, "error", errAbs)
			res.Diagnostics.Add(w)
		case errAbs < s.opts.tol:
			res.Status = Converged
			res.Root = dynamo.State{next}
		case res.Iterations >= s.opts.maxIter:
			res.Status = MaxIterExceeded
			res.Root = dynamo.State{next}
		default:
			x = next
		}
	}

	fr := s.f(res.Root[0])
	if err := dynamo.Require("f(root)", fr); err != nil {
		return s.fail(res, Faulted, err)
	}
	res.Residual = dynamo.State{fr}
	if math.Abs(fr) > ScalarResidualLimit {
		w := dynamo.Warning{Kind: dynamo.WarnResidual, Step: res.Iterations, Value: fr, Message: "f(root) is large, the root may be inaccurate"}
		logger.Log("level", "warning", "subsys", "newton", "kind", w.Kind, "residual", fr)
		res.Diagnostics.Add(w)
	}

	logger.Log("level", "info", "subsys", "newton", "status", res.Status, "root", res.Root[0], "iterations", res.Iterations)
	return res, nil
}
