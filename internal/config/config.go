package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/numlab/internal/dynamo"
)

// Problem kinds.
const (
	KindODE         = "ode"
	KindODE2        = "ode2"
	KindSystem      = "system"
	KindNewton      = "newton"
	KindNewton2     = "newton2"
	KindFourier     = "fourier"
	KindDerivatives = "derivatives"
)

var Kinds = []string{KindODE, KindODE2, KindSystem, KindNewton, KindNewton2, KindFourier, KindDerivatives}

const (
	DefaultH            = 0.1
	DefaultTolerance    = 1e-6
	DefaultMaxIter      = 100
	DefaultMaxHalvings  = 1
	DefaultTerms        = 10
	DefaultPoints       = 1000
	DefaultSamplePoints = 500
	DefaultDiffH        = 1e-4
	DefaultSweepPoints  = 100
	DefaultMaxGrowth    = 20

	DefaultDriftThreshold     = 1e-3
	DefaultODE2DriftThreshold = 0.01
	DefaultDriftWarmup        = 10
	DefaultGrowthWarmup       = 5
	DefaultRadiusTolerance    = 0.1
)

type Config struct {
	Name   string             `yaml:"name"`
	Kind   string             `yaml:"kind"`
	Method string             `yaml:"method,omitempty"`
	Params map[string]float64 `yaml:"params,omitempty"`

	ODE     ODEConfig     `yaml:"ode,omitempty"`
	System  SystemConfig  `yaml:"system,omitempty"`
	Newton  NewtonConfig  `yaml:"newton,omitempty"`
	Fourier FourierConfig `yaml:"fourier,omitempty"`
	Diff    DiffConfig    `yaml:"diff,omitempty"`
}

// Checks tunes the warnings of a run. Zero fields take the defaults of the
// problem kind; MaxSteps of zero keeps the automatic step cap.
type Checks struct {
	DriftThreshold  float64 `yaml:"drift_threshold,omitempty"`
	DriftWarmup     int     `yaml:"drift_warmup,omitempty"`
	GrowthWarmup    int     `yaml:"growth_warmup,omitempty"`
	Radius          float64 `yaml:"radius,omitempty"`
	RadiusTolerance float64 `yaml:"radius_tolerance,omitempty"`
	MaxSteps        int     `yaml:"max_steps,omitempty"`
}

func (k *Checks) applyDefaults(drift float64) {
	if k.DriftThreshold == 0 {
		k.DriftThreshold = drift
	}
	if k.DriftWarmup == 0 {
		k.DriftWarmup = DefaultDriftWarmup
	}
	if k.GrowthWarmup == 0 {
		k.GrowthWarmup = DefaultGrowthWarmup
	}
	if k.Radius > 0 && k.RadiusTolerance == 0 {
		k.RadiusTolerance = DefaultRadiusTolerance
	}
}

func (k Checks) validate(name string) error {
	if k.DriftThreshold < 0 || k.DriftWarmup < 0 || k.GrowthWarmup < 0 {
		return dynamo.Invalidf("%s: drift and growth checks must not be negative", name)
	}
	if k.Radius < 0 || k.RadiusTolerance < 0 || k.MaxSteps < 0 {
		return dynamo.Invalidf("%s: radius, radius_tolerance and max_steps must not be negative", name)
	}
	return finite("checks", k.DriftThreshold, k.Radius, k.RadiusTolerance)
}

// ODEConfig describes y' = f(x, y) or, for ode2, y'' = f(x, y, yp). The
// ode2 invariant is an expression of y and yp.
type ODEConfig struct {
	F           string  `yaml:"f"`
	Exact       string  `yaml:"exact,omitempty"`
	Invariant   string  `yaml:"invariant,omitempty"`
	X0          float64 `yaml:"x0"`
	XEnd        float64 `yaml:"x_end"`
	Y0          float64 `yaml:"y0"`
	YP0         float64 `yaml:"yp0,omitempty"`
	H           float64 `yaml:"h"`
	MaxHalvings int     `yaml:"max_halvings,omitempty"`

	Checks `yaml:",inline"`
}

// SystemConfig describes dx/dt = f1(x, y), dy/dt = f2(x, y).
type SystemConfig struct {
	F1        string  `yaml:"f1"`
	F2        string  `yaml:"f2"`
	Invariant string  `yaml:"invariant,omitempty"`
	Exact     string  `yaml:"exact,omitempty"`
	T0        float64 `yaml:"t0"`
	TEnd      float64 `yaml:"t_end"`
	X0        float64 `yaml:"x0"`
	Y0        float64 `yaml:"y0"`
	H         float64 `yaml:"h"`

	Checks `yaml:",inline"`
}

type NewtonConfig struct {
	F  string `yaml:"f,omitempty"`
	DF string `yaml:"df,omitempty"`

	F1    string `yaml:"f1,omitempty"`
	F2    string `yaml:"f2,omitempty"`
	DF1DX string `yaml:"df1_dx,omitempty"`
	DF1DY string `yaml:"df1_dy,omitempty"`
	DF2DX string `yaml:"df2_dx,omitempty"`
	DF2DY string `yaml:"df2_dy,omitempty"`

	X0        float64 `yaml:"x0"`
	Y0        float64 `yaml:"y0,omitempty"`
	Tolerance float64 `yaml:"tolerance"`
	MaxIter   int     `yaml:"max_iter"`
}

type FourierConfig struct {
	F            string  `yaml:"f"`
	L            float64 `yaml:"l"`
	Terms        int     `yaml:"terms"`
	Points       int     `yaml:"points,omitempty"`
	SamplePoints int     `yaml:"sample_points,omitempty"`
	From         float64 `yaml:"from"`
	To           float64 `yaml:"to"`
}

type DiffConfig struct {
	F         string  `yaml:"f"`
	G         string  `yaml:"g"`
	X0        float64 `yaml:"x0"`
	Y0        float64 `yaml:"y0"`
	H         float64 `yaml:"h"`
	From      float64 `yaml:"from"`
	To        float64 `yaml:"to"`
	Points    int     `yaml:"points,omitempty"`
	MaxGrowth int     `yaml:"max_growth,omitempty"`
}

func DefaultConfig() *Config {
	return GetPreset("linear")
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	if c.Params != nil {
		cp.Params = make(map[string]float64, len(c.Params))
		for k, v := range c.Params {
			cp.Params[k] = v
		}
	}
	return &cp
}

// ApplyDefaults fills unset numeric knobs with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Method == "" && (c.Kind == KindODE || c.Kind == KindODE2 || c.Kind == KindSystem) {
		c.Method = "rk4"
	}
	if c.ODE.MaxHalvings == 0 {
		c.ODE.MaxHalvings = DefaultMaxHalvings
	}
	switch c.Kind {
	case KindODE2:
		c.ODE.Checks.applyDefaults(DefaultODE2DriftThreshold)
	case KindODE:
		c.ODE.Checks.applyDefaults(DefaultDriftThreshold)
	case KindSystem:
		c.System.Checks.applyDefaults(DefaultDriftThreshold)
	}
	if c.Newton.Tolerance == 0 {
		c.Newton.Tolerance = DefaultTolerance
	}
	if c.Newton.MaxIter == 0 {
		c.Newton.MaxIter = DefaultMaxIter
	}
	if c.Fourier.Points == 0 {
		c.Fourier.Points = DefaultPoints
	}
	if c.Fourier.SamplePoints == 0 {
		c.Fourier.SamplePoints = DefaultSamplePoints
	}
	if c.Diff.Points == 0 {
		c.Diff.Points = DefaultSweepPoints
	}
	if c.Diff.MaxGrowth == 0 {
		c.Diff.MaxGrowth = DefaultMaxGrowth
	}
}

func finite(name string, vs ...float64) error {
	for _, v := range vs {
		if err := dynamo.Require(name, v); err != nil {
			return fmt.Errorf("%w: %w", dynamo.ErrInvalidConfig, err)
		}
	}
	return nil
}

// Validate checks every parameter the selected kind uses before any run.
func (c *Config) Validate() error {
	switch c.Kind {
	case KindODE, KindODE2:
		o := c.ODE
		if o.F == "" {
			return dynamo.Invalidf("%s: ode.f is required", c.Name)
		}
		if o.H <= 0 {
			return dynamo.Invalidf("%s: step h must be positive, got %g", c.Name, o.H)
		}
		if o.XEnd <= o.X0 {
			return dynamo.Invalidf("%s: x_end (%g) must exceed x0 (%g)", c.Name, o.XEnd, o.X0)
		}
		if o.MaxHalvings < 0 {
			return dynamo.Invalidf("%s: max_halvings must not be negative", c.Name)
		}
		if c.Method != "" && c.Method != "rk4" && c.Method != "euler" {
			return dynamo.Invalidf("%s: unknown method %q", c.Name, c.Method)
		}
		if err := o.Checks.validate(c.Name); err != nil {
			return err
		}
		return finite("initial state", o.X0, o.XEnd, o.Y0, o.YP0, o.H)
	case KindSystem:
		s := c.System
		if s.F1 == "" || s.F2 == "" {
			return dynamo.Invalidf("%s: system.f1 and system.f2 are required", c.Name)
		}
		if s.H <= 0 {
			return dynamo.Invalidf("%s: step h must be positive, got %g", c.Name, s.H)
		}
		if s.TEnd <= s.T0 {
			return dynamo.Invalidf("%s: t_end (%g) must exceed t0 (%g)", c.Name, s.TEnd, s.T0)
		}
		if err := s.Checks.validate(c.Name); err != nil {
			return err
		}
		return finite("initial state", s.T0, s.TEnd, s.X0, s.Y0, s.H)
	case KindNewton:
		n := c.Newton
		if n.F == "" || n.DF == "" {
			return dynamo.Invalidf("%s: newton.f and newton.df are required", c.Name)
		}
		return c.validateIteration()
	case KindNewton2:
		n := c.Newton
		if n.F1 == "" || n.F2 == "" || n.DF1DX == "" || n.DF1DY == "" || n.DF2DX == "" || n.DF2DY == "" {
			return dynamo.Invalidf("%s: newton2 needs f1, f2 and all four partial derivatives", c.Name)
		}
		return c.validateIteration()
	case KindFourier:
		f := c.Fourier
		if f.F == "" {
			return dynamo.Invalidf("%s: fourier.f is required", c.Name)
		}
		if f.L <= 0 {
			return dynamo.Invalidf("%s: L must be positive, got %g", c.Name, f.L)
		}
		if f.Terms <= 0 {
			return dynamo.Invalidf("%s: terms must be positive, got %d", c.Name, f.Terms)
		}
		if f.Points < 10 || f.SamplePoints < 10 {
			return dynamo.Invalidf("%s: points and sample_points must be >= 10", c.Name)
		}
		if f.To <= f.From {
			return dynamo.Invalidf("%s: sample range end must exceed start", c.Name)
		}
		return finite("range", f.L, f.From, f.To)
	case KindDerivatives:
		d := c.Diff
		if d.F == "" || d.G == "" {
			return dynamo.Invalidf("%s: diff.f and diff.g are required", c.Name)
		}
		if d.H <= 0 {
			return dynamo.Invalidf("%s: step h must be positive, got %g", c.Name, d.H)
		}
		if d.To <= d.From {
			return dynamo.Invalidf("%s: sweep end must exceed start", c.Name)
		}
		if d.Points <= 0 || d.MaxGrowth < 0 {
			return dynamo.Invalidf("%s: points must be positive and max_growth non-negative", c.Name)
		}
		return finite("point", d.X0, d.Y0, d.H, d.From, d.To)
	}
	return dynamo.Invalidf("unknown kind %q (expected one of %v)", c.Kind, Kinds)
}

func (c *Config) validateIteration() error {
	n := c.Newton
	if n.Tolerance <= 0 {
		return dynamo.Invalidf("%s: tolerance must be positive, got %g", c.Name, n.Tolerance)
	}
	if n.MaxIter <= 0 {
		return dynamo.Invalidf("%s: max_iter must be positive, got %d", c.Name, n.MaxIter)
	}
	return finite("initial guess", n.X0, n.Y0, n.Tolerance)
}

// Step returns the step size of the configured kind.
func (c *Config) Step() float64 {
	switch c.Kind {
	case KindODE, KindODE2:
		return c.ODE.H
	case KindSystem:
		return c.System.H
	case KindDerivatives:
		return c.Diff.H
	}
	return 0
}

// SetStep overrides the step size of the configured kind.
func (c *Config) SetStep(h float64) {
	switch c.Kind {
	case KindODE, KindODE2:
		c.ODE.H = h
	case KindSystem:
		c.System.H = h
	case KindDerivatives:
		c.Diff.H = h
	}
}

// SetEnd overrides the end of the integration interval.
func (c *Config) SetEnd(end float64) {
	switch c.Kind {
	case KindODE, KindODE2:
		c.ODE.XEnd = end
	case KindSystem:
		c.System.TEnd = end
	}
}
