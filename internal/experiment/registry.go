package experiment

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/numlab/internal/config"
	"github.com/san-kum/numlab/internal/diff"
	"github.com/san-kum/numlab/internal/dynamo"
	"github.com/san-kum/numlab/internal/fourier"
	"github.com/san-kum/numlab/internal/integrators"
	"github.com/san-kum/numlab/internal/metrics"
	"github.com/san-kum/numlab/internal/newton"
	"github.com/san-kum/numlab/internal/sim"
)

// Runner builds the engine for one problem kind and runs it.
type Runner func(ctx context.Context, e *Experiment, sink dynamo.Sink) (*Outcome, error)

type Registry struct {
	runners map[string]Runner
}

func NewRegistry() *Registry {
	r := &Registry{runners: make(map[string]Runner)}

	r.runners[config.KindODE] = runODE
	r.runners[config.KindODE2] = runODE2
	r.runners[config.KindSystem] = runSystem
	r.runners[config.KindNewton] = runNewton
	r.runners[config.KindNewton2] = runNewton2
	r.runners[config.KindFourier] = runFourier
	r.runners[config.KindDerivatives] = runDerivatives

	return r
}

func (r *Registry) Register(kind string, fn Runner) {
	r.runners[kind] = fn
}

func (r *Registry) Get(kind string) (Runner, error) {
	fn, ok := r.runners[kind]
	if !ok {
		return nil, fmt.Errorf("unknown problem kind: %s", kind)
	}
	return fn, nil
}

func (r *Registry) Kinds() []string {
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics are attached to every driver run.
func DefaultMetrics() []sim.Metric {
	return []sim.Metric{
		metrics.NewStability(integrators.InstabilityLimit),
	}
}

func (e *Experiment) checks() config.Checks {
	if e.cfg.Kind == config.KindSystem {
		return e.cfg.System.Checks
	}
	return e.cfg.ODE.Checks
}

// systemStepper applies the configured checks; zero fields keep the
// stepper defaults.
func systemStepper(k config.Checks) *integrators.SystemRK4 {
	var opts []integrators.SystemOption
	if k.DriftThreshold > 0 {
		opts = append(opts, integrators.WithDriftThreshold(k.DriftThreshold))
	}
	if k.DriftWarmup > 0 {
		opts = append(opts, integrators.WithDriftWarmup(k.DriftWarmup))
	}
	if k.GrowthWarmup > 0 {
		opts = append(opts, integrators.WithGrowthWarmup(k.GrowthWarmup))
	}
	if k.Radius > 0 {
		tol := k.RadiusTolerance
		if tol == 0 {
			tol = integrators.DefaultRadiusTolerance
		}
		opts = append(opts, integrators.WithRadius(k.Radius, tol))
	}
	return integrators.NewSystemRK4(opts...)
}

func (e *Experiment) simulator() *sim.Simulator {
	k := e.checks()
	opts := []sim.Option{
		sim.WithLogger(e.logger),
		sim.WithMaxSteps(k.MaxSteps),
		sim.WithSystemStepper(systemStepper(k)),
	}
	if st := integrators.NewScalar(e.cfg.Method); st != nil {
		opts = append(opts, sim.WithScalarStepper(st))
	}
	s := sim.New(opts...)
	for _, m := range DefaultMetrics() {
		s.AddMetric(m)
	}
	return s
}

func fromSim(out *Outcome, res *sim.Result) {
	if res == nil {
		return
	}
	out.Sim = res
	out.Method = res.Method
	out.Status = string(res.Status)
	out.Steps = res.Steps
	out.Diagnostics = res.Diagnostics
	for k, v := range res.Metrics {
		out.Summary[k] = v
	}
	out.Summary["recovered"] = float64(res.Recovered)
	if res.HasExact {
		out.Summary["max_error"] = res.MaxError
		out.Summary["mean_error"] = res.MeanError
		out.Summary["final_error"] = res.FinalError
	}
	if res.HasInvariant {
		out.Summary["invariant_initial"] = res.InitialInvariant
		out.Summary["invariant_final"] = res.FinalInvariant
		out.Summary["invariant_variation"] = res.InvariantVariation()
	}
}

func runODE(ctx context.Context, e *Experiment, sink dynamo.Sink) (*Outcome, error) {
	c := e.cfg.ODE
	f, err := e.compiler.Scalar(c.F)
	if err != nil {
		return nil, err
	}
	p := sim.ScalarProblem{
		Name:        e.cfg.Name,
		F:           f,
		X0:          c.X0,
		Y0:          c.Y0,
		XEnd:        c.XEnd,
		H:           c.H,
		MaxHalvings: c.MaxHalvings,
	}
	if c.Exact != "" {
		if p.Exact, err = e.compiler.Exact(c.Exact); err != nil {
			return nil, err
		}
	}

	out := newOutcome(e.cfg)
	res, err := e.simulator().RunScalar(ctx, p, sink)
	fromSim(out, res)
	return out, err
}

func runODE2(ctx context.Context, e *Experiment, sink dynamo.Sink) (*Outcome, error) {
	c := e.cfg.ODE
	f, err := e.compiler.SecondOrder(c.F)
	if err != nil {
		return nil, err
	}
	p := sim.SystemProblem{
		Name:   e.cfg.Name,
		System: dynamo.SecondOrder{F: f},
		Layout: sim.LayoutSecondOrder,
		T0:     c.X0,
		X0:     dynamo.State{c.Y0, c.YP0},
		TEnd:   c.XEnd,
		H:      c.H,
	}
	if c.Exact != "" {
		if p.Exact, err = e.compiler.Exact(c.Exact); err != nil {
			return nil, err
		}
	}

	s := e.simulator()
	if c.Invariant != "" {
		if p.Invariant, err = e.compiler.State(c.Invariant, "y", "yp"); err != nil {
			return nil, err
		}
		s.AddMetric(metrics.NewInvariantDrift(p.Invariant))
	}

	out := newOutcome(e.cfg)
	res, err := s.RunSystem(ctx, p, sink)
	fromSim(out, res)
	return out, err
}

func runSystem(ctx context.Context, e *Experiment, sink dynamo.Sink) (*Outcome, error) {
	c := e.cfg.System
	f1, err := e.compiler.Func2(c.F1)
	if err != nil {
		return nil, err
	}
	f2, err := e.compiler.Func2(c.F2)
	if err != nil {
		return nil, err
	}
	p := sim.SystemProblem{
		Name:   e.cfg.Name,
		System: dynamo.Planar{F1: f1, F2: f2},
		Layout: sim.LayoutPlanar,
		T0:     c.T0,
		X0:     dynamo.State{c.X0, c.Y0},
		TEnd:   c.TEnd,
		H:      c.H,
	}
	if c.Exact != "" {
		if p.Exact, err = e.compiler.Exact(c.Exact); err != nil {
			return nil, err
		}
	}

	s := e.simulator()
	if c.Invariant != "" {
		if p.Invariant, err = e.compiler.State(c.Invariant, "x", "y"); err != nil {
			return nil, err
		}
		s.AddMetric(metrics.NewInvariantDrift(p.Invariant))
	}

	out := newOutcome(e.cfg)
	res, err := s.RunSystem(ctx, p, sink)
	fromSim(out, res)
	return out, err
}

func newtonOptions(e *Experiment) []newton.Option {
	return []newton.Option{
		newton.WithTolerance(e.cfg.Newton.Tolerance),
		newton.WithMaxIter(e.cfg.Newton.MaxIter),
		newton.WithLogger(e.logger),
	}
}

func fromNewton(out *Outcome, res *newton.Result) {
	if res == nil {
		return
	}
	out.Newton = res
	out.Status = res.Status.String()
	out.Steps = res.Iterations
	out.Diagnostics = res.Diagnostics
	out.Summary["iterations"] = float64(res.Iterations)
	if len(res.Root) > 0 {
		out.Summary["root_x"] = res.Root[0]
	}
	if len(res.Root) > 1 {
		out.Summary["root_y"] = res.Root[1]
	}
	worst := 0.0
	for _, r := range res.Residual {
		if a := math.Abs(r); a > worst {
			worst = a
		}
	}
	if len(res.Residual) > 0 {
		out.Summary["residual"] = worst
	}
}

func runNewton(ctx context.Context, e *Experiment, sink dynamo.Sink) (*Outcome, error) {
	c := e.cfg.Newton
	f, err := e.compiler.Func1(c.F)
	if err != nil {
		return nil, err
	}
	df, err := e.compiler.Func1(c.DF)
	if err != nil {
		return nil, err
	}
	solver, err := newton.NewScalar(f, df, newtonOptions(e)...)
	if err != nil {
		return nil, err
	}

	out := newOutcome(e.cfg)
	out.Method = "newton"
	res, err := solver.Solve(ctx, c.X0, sink)
	fromNewton(out, res)
	return out, err
}

func runNewton2(ctx context.Context, e *Experiment, sink dynamo.Sink) (*Outcome, error) {
	c := e.cfg.Newton
	srcs := []string{c.F1, c.F2, c.DF1DX, c.DF1DY, c.DF2DX, c.DF2DY}
	fns := make([]dynamo.Func2, len(srcs))
	for i, src := range srcs {
		fn, err := e.compiler.Func2(src)
		if err != nil {
			return nil, err
		}
		fns[i] = fn
	}
	solver, err := newton.NewSystem(newton.Equations{
		F1: fns[0], F2: fns[1],
		DF1DX: fns[2], DF1DY: fns[3],
		DF2DX: fns[4], DF2DY: fns[5],
	}, newtonOptions(e)...)
	if err != nil {
		return nil, err
	}

	out := newOutcome(e.cfg)
	out.Method = "newton"
	res, err := solver.Solve(ctx, c.X0, c.Y0, sink)
	fromNewton(out, res)
	return out, err
}

func runFourier(ctx context.Context, e *Experiment, sink dynamo.Sink) (*Outcome, error) {
	c := e.cfg.Fourier
	f, err := e.compiler.Func1(c.F)
	if err != nil {
		return nil, err
	}
	engine, err := fourier.New(c.L, c.Terms, fourier.WithPoints(c.Points), fourier.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}

	out := newOutcome(e.cfg)
	out.Method = "fourier"
	coeffs, err := engine.Compute(f, sink)
	if err != nil {
		out.Status = string(sim.StatusFault)
		return out, err
	}
	out.Coefficients = coeffs
	out.Steps = coeffs.Len()
	out.Summary["a0"] = coeffs.A0()

	mse, err := fourier.MeanSquaredError(f, coeffs, engine.Grid(), coeffs.Len())
	if err != nil {
		out.Status = string(sim.StatusFault)
		return out, err
	}
	out.Summary["mse"] = mse

	series, err := engine.Sample(f, coeffs, c.From, c.To, c.SamplePoints, sink)
	out.Series = series
	if series != nil {
		out.Summary["max_deviation"] = series.MaxDeviation()
		out.Summary["divergent"] = float64(series.Divergent)
		if series.Divergent > 0 {
			out.Diagnostics.Add(dynamo.Warning{
				Kind:    dynamo.WarnDivergentSample,
				Value:   float64(series.Divergent),
				Message: fmt.Sprintf("%d samples of the partial sum were discarded", series.Divergent),
			})
		}
	}
	if err != nil {
		out.Status = string(sim.StatusFault)
	}
	return out, err
}

func runDerivatives(ctx context.Context, e *Experiment, sink dynamo.Sink) (*Outcome, error) {
	c := e.cfg.Diff
	f, err := e.compiler.Func1(c.F)
	if err != nil {
		return nil, err
	}
	g, err := e.compiler.Func2(c.G)
	if err != nil {
		return nil, err
	}
	d, err := diff.New(c.H, diff.WithMaxGrowth(c.MaxGrowth), diff.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}

	out := newOutcome(e.cfg)
	out.Method = "central"
	out.Diagnostics = d.Diagnostics()

	all, err := d.All(f, g, c.X0, c.Y0)
	if err != nil {
		out.Status = string(sim.StatusFault)
		return out, err
	}
	out.Derivatives = &all
	for k, v := range map[string]float64{
		"first": all.First, "second": all.Second,
		"partial_x": all.PartialX, "partial_y": all.PartialY,
		"second_x": all.SecondX, "second_y": all.SecondY,
		"mixed": all.Mixed, "third_x": all.ThirdX,
	} {
		out.Summary[k] = v
	}

	sweep, err := d.Sweep(f, c.From, c.To, c.Points, sink)
	out.Sweep = sweep
	if sweep != nil {
		out.Steps = len(sweep.X)
		out.Summary["adjusted"] = float64(sweep.Adjusted)
		out.Summary["invalid"] = float64(sweep.Invalid)
	}
	if err != nil {
		out.Status = string(sim.StatusFault)
	}
	return out, err
}
