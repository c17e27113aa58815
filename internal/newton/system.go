package newton

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/numlab/internal/dynamo"
)

// Equations is f1(x, y) = 0, f2(x, y) = 0 with its analytic Jacobian.
type Equations struct {
	F1, F2       dynamo.Func2
	DF1DX, DF1DY dynamo.Func2
	DF2DX, DF2DY dynamo.Func2
}

func (e Equations) complete() bool {
	return e.F1 != nil && e.F2 != nil &&
		e.DF1DX != nil && e.DF1DY != nil &&
		e.DF2DX != nil && e.DF2DY != nil
}

// System solves a 2x2 nonlinear system.
type System struct {
	eq   Equations
	opts options
}

func NewSystem(eq Equations, opts ...Option) (*System, error) {
	if !eq.complete() {
		return nil, dynamo.Invalidf("system newton needs f1, f2 and all four partial derivatives")
	}
	o, err := buildOptions(DefaultSystemMaxIter, opts)
	if err != nil {
		return nil, err
	}
	return &System{eq: eq, opts: o}, nil
}

func (s *System) fail(res *Result, status Status, err error) (*Result, error) {
	res.Status = status
	res.Err = err
	s.opts.logger.Log("level", "error", "subsys", "newton", "status", status, "iterations", res.Iterations, "err", err)
	return res, err
}

// Step solves J·d = -F by Cramer's rule.
func Step(f1, f2, a, b, c, d float64) (dx, dy, det float64, err error) {
	det = a*d - b*c
	if err = dynamo.Require("det", det); err != nil {
		return 0, 0, det, err
	}
	if math.Abs(det) < ZeroThreshold {
		return 0, 0, det, dynamo.ErrSingularJacobian
	}
	dx = (-f1*d + f2*b) / det
	dy = (-a*f2 + f1*c) / det
	if err = dynamo.First(dynamo.Require("dx", dx), dynamo.Require("dy", dy)); err != nil {
		return 0, 0, det, err
	}
	return dx, dy, det, nil
}

// Solve iterates from (x0, y0). Each iteration is emitted on the iterations
// series as (i, x, y, f1, f2, det, error) and the accepted point on the
// trajectory series.
func (s *System) Solve(ctx context.Context, x0, y0 float64, sink dynamo.Sink) (*Result, error) {
	if err := dynamo.First(dynamo.Require("x0", x0), dynamo.Require("y0", y0)); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = dynamo.Discard
	}

	res := &Result{Status: Iterating, Diagnostics: dynamo.NewDiagnostics()}
	logger := s.opts.logger
	logger.Log("level", "info", "subsys", "newton", "mode", "system", "x0", x0, "y0", y0, "tol", s.opts.tol, "max_iter", s.opts.maxIter)

	eq := s.eq
	x, y := x0, y0
	if err := sink.Emit(SeriesTrajectory, x, y); err != nil {
		return s.fail(res, Faulted, fmt.Errorf("emit %s: %w", SeriesTrajectory, err))
	}

	for res.Status == Iterating {
		select {
		case <-ctx.Done():
			return s.fail(res, Faulted, ctx.Err())
		default:
		}

		iter := res.Iterations
		f1, f2 := eq.F1(x, y), eq.F2(x, y)
		a, b := eq.DF1DX(x, y), eq.DF1DY(x, y)
		c, d := eq.DF2DX(x, y), eq.DF2DY(x, y)
		if err := dynamo.First(
			dynamo.Require("f1", f1), dynamo.Require("f2", f2),
			dynamo.Require("df1/dx", a), dynamo.Require("df1/dy", b),
			dynamo.Require("df2/dx", c), dynamo.Require("df2/dy", d),
		); err != nil {
			return s.fail(res, Faulted, fmt.Errorf("newton iteration %d: %w", iter, err))
		}

		dx, dy, det, err := Step(f1, f2, a, b, c, d)
		if err == dynamo.ErrSingularJacobian {
			res.Root = dynamo.State{x, y}
			return s.fail(res, SingularJacobian,
				fmt.Errorf("newton iteration %d at (%g, %g) (det=%.2e): %w", iter, x, y, det, err))
		}
		if err != nil {
			return s.fail(res, Faulted, fmt.Errorf("newton iteration %d: %w", iter, err))
		}

		errNorm := math.Sqrt(dx*dx + dy*dy)
		if err := dynamo.Require("error", errNorm); err != nil {
			return s.fail(res, Faulted, fmt.Errorf("newton iteration %d: %w", iter, err))
		}

		res.Records = append(res.Records, Record{
			Iteration: iter,
			State:     dynamo.State{x, y},
			Residual:  dynamo.State{f1, f2},
			Jacobian:  det,
			Error:     errNorm,
		})
		if err := sink.Emit(SeriesIterations, float64(iter), x, y, f1, f2, det, errNorm); err != nil {
			return s.fail(res, Faulted, fmt.Errorf("emit %s: %w", SeriesIterations, err))
		}

		nx, ny := x+dx, y+dy
		if err := dynamo.First(dynamo.Require("x_next", nx), dynamo.Require("y_next", ny)); err != nil {
			return s.fail(res, Faulted, fmt.Errorf("newton iteration %d: %w", iter, err))
		}
		x, y = nx, ny
		res.Iterations++
		if err := sink.Emit(SeriesTrajectory, x, y); err != nil {
			return s.fail(res, Faulted, fmt.Errorf("emit %s: %w", SeriesTrajectory, err))
		}

		switch {
		case errNorm > SystemDivergence && res.Iterations > SystemDivergenceWarmup:
			res.Status = Diverged
			w := dynamo.Warning{Kind: dynamo.WarnDivergence, Step: iter, Value: errNorm, Message: "error keeps growing, try another starting point"}
			logger.Log("level", "warning", "subsys", "newton", "kind", w.Kind, "step", iter, "error", errNorm)
			res.Diagnostics.Add(w)
		case errNorm < s.opts.tol:
			res.Status = Converged
		case res.Iterations >= s.opts.maxIter:
			res.Status = MaxIterExceeded
		}
	}
	res.Root = dynamo.State{x, y}

	r1, r2 := eq.F1(x, y), eq.F2(x, y)
	if err := dynamo.First(dynamo.Require("f1(root)", r1), dynamo.Require("f2(root)", r2)); err != nil {
		return s.fail(res, Faulted, err)
	}
	res.Residual = dynamo.State{r1, r2}
	if worst := math.Max(math.Abs(r1), math.Abs(r2)); worst > SystemResidualLimit {
		w := dynamo.Warning{Kind: dynamo.WarnResidual, Step: res.Iterations, Value: worst, Message: "residual is large, the solution may be inaccurate"}
		logger.Log("level", "warning", "subsys", "newton", "kind", w.Kind, "residual", worst)
		res.Diagnostics.Add(w)
	}

	logger.Log("level", "info", "subsys", "newton", "status", res.Status, "x", x, "y", y, "iterations", res.Iterations)
	return res, nil
}
