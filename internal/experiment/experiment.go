package experiment

import (
	"context"
	"fmt"

	kitlog "github.com/go-kit/kit/log"

	"github.com/san-kum/numlab/internal/config"
	"github.com/san-kum/numlab/internal/diff"
	"github.com/san-kum/numlab/internal/dynamo"
	"github.com/san-kum/numlab/internal/expression"
	"github.com/san-kum/numlab/internal/fourier"
	"github.com/san-kum/numlab/internal/newton"
	"github.com/san-kum/numlab/internal/sim"
)

// Outcome is the kind-independent view of one finished run. Exactly one of
// the engine-specific fields is set.
type Outcome struct {
	Name   string
	Kind   string
	Method string
	Status string
	Steps  int

	Diagnostics *dynamo.Diagnostics
	Summary     map[string]float64

	Sim          *sim.Result
	Newton       *newton.Result
	Coefficients *fourier.Coefficients
	Series       *fourier.Series
	Derivatives  *diff.Derivatives
	Sweep        *diff.SweepResult

	Err error
}

func (o *Outcome) OK() bool { return o.Err == nil }

func newOutcome(cfg *config.Config) *Outcome {
	return &Outcome{
		Name:        cfg.Name,
		Kind:        cfg.Kind,
		Method:      cfg.Method,
		Status:      string(sim.StatusCompleted),
		Diagnostics: dynamo.NewDiagnostics(),
		Summary:     make(map[string]float64),
	}
}

type Experiment struct {
	cfg      *config.Config
	compiler *expression.Compiler
	registry *Registry
	logger   kitlog.Logger
}

type Option func(*Experiment)

func WithLogger(l kitlog.Logger) Option {
	return func(e *Experiment) { e.logger = l }
}

func WithRegistry(r *Registry) Option {
	return func(e *Experiment) { e.registry = r }
}

// New validates cfg and prepares its expressions' parameter scope.
func New(cfg *config.Config, opts ...Option) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	compiler, err := expression.NewCompiler(cfg.Params)
	if err != nil {
		return nil, err
	}
	e := &Experiment{
		cfg:      cfg,
		compiler: compiler,
		registry: NewRegistry(),
		logger:   kitlog.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Experiment) Config() *config.Config { return e.cfg }

// Run executes the configured problem. A run that fails part way returns the
// partial outcome together with the error.
func (e *Experiment) Run(ctx context.Context, sink dynamo.Sink) (*Outcome, error) {
	runner, err := e.registry.Get(e.cfg.Kind)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = dynamo.Discard
	}
	out, err := runner(ctx, e, sink)
	if out != nil {
		out.Err = err
	}
	if err != nil {
		return out, fmt.Errorf("%s: %w", e.cfg.Name, err)
	}
	return out, nil
}

// RunAndClose runs the problem and closes sink on every path. A close error
// is returned when the run itself succeeded.
func (e *Experiment) RunAndClose(ctx context.Context, sink dynamo.Sink) (*Outcome, error) {
	out, err := e.Run(ctx, sink)
	if sink == nil {
		return out, err
	}
	if cerr := sink.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("%s: close sink: %w", e.cfg.Name, cerr)
		if out != nil {
			out.Err = err
		}
	}
	return out, err
}
