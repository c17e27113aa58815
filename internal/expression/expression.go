// Package expression compiles the right-hand sides written in problem files
// into the closures the steppers and solvers evaluate.
package expression

import (
	"fmt"
	"math"
	"sort"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/san-kum/numlab/internal/dynamo"
)

var reserved = map[string]bool{
	"x": true, "y": true, "yp": true, "t": true, "pi": true, "e": true,
}

// Compiler turns expression source into numeric closures. Named parameters
// are visible to every expression it compiles.
type Compiler struct {
	params map[string]float64
}

func NewCompiler(params map[string]float64) (*Compiler, error) {
	c := &Compiler{params: make(map[string]float64, len(params))}
	for name, v := range params {
		if reserved[name] {
			return nil, dynamo.Invalidf("parameter %q shadows a built-in name", name)
		}
		if err := dynamo.Require(name, v); err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		c.params[name] = v
	}
	return c, nil
}

// Params returns the parameter names in sorted order.
func (c *Compiler) Params() []string {
	names := make([]string, 0, len(c.params))
	for k := range c.params {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

func unary(name string, fn func(float64) float64) exprlang.Option {
	return exprlang.Function(name, func(params ...any) (any, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("%s takes 1 argument, got %d", name, len(params))
		}
		v, err := toFloat(params[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return fn(v), nil
	})
}

func functions() []exprlang.Option {
	return []exprlang.Option{
		unary("sin", math.Sin),
		unary("cos", math.Cos),
		unary("tan", math.Tan),
		unary("asin", math.Asin),
		unary("acos", math.Acos),
		unary("atan", math.Atan),
		unary("sinh", math.Sinh),
		unary("cosh", math.Cosh),
		unary("tanh", math.Tanh),
		unary("exp", math.Exp),
		unary("log", math.Log),
		unary("sqrt", math.Sqrt),
		unary("cbrt", math.Cbrt),
		exprlang.Function("pow", func(params ...any) (any, error) {
			if len(params) != 2 {
				return nil, fmt.Errorf("pow takes 2 arguments, got %d", len(params))
			}
			b, err := toFloat(params[0])
			if err != nil {
				return nil, err
			}
			p, err := toFloat(params[1])
			if err != nil {
				return nil, err
			}
			return math.Pow(b, p), nil
		}),
	}
}

// evaluator runs one compiled program. It reuses its environment map and is
// not safe for concurrent use.
type evaluator struct {
	src     string
	vars    []string
	program *exprvm.Program
	env     map[string]any
}

func (c *Compiler) compile(src string, vars ...string) (*evaluator, error) {
	if src == "" {
		return nil, dynamo.Invalidf("empty expression")
	}
	env := map[string]any{"pi": math.Pi, "e": math.E}
	for k, v := range c.params {
		env[k] = v
	}
	for _, v := range vars {
		env[v] = 0.0
	}

	opts := append([]exprlang.Option{exprlang.Env(env), exprlang.AsFloat64()}, functions()...)
	program, err := exprlang.Compile(src, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: compile %q: %v", dynamo.ErrInvalidConfig, src, err)
	}
	return &evaluator{src: src, vars: vars, program: program, env: env}, nil
}

// eval returns NaN when the program fails at run time so that the numeric
// guard downstream reports it.
func (e *evaluator) eval(vals ...float64) float64 {
	for i, name := range e.vars {
		e.env[name] = vals[i]
	}
	out, err := exprlang.Run(e.program, e.env)
	if err != nil {
		return math.NaN()
	}
	v, err := toFloat(out)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Func1 compiles an expression of x.
func (c *Compiler) Func1(src string) (dynamo.Func1, error) {
	ev, err := c.compile(src, "x")
	if err != nil {
		return nil, err
	}
	return func(x float64) float64 { return ev.eval(x) }, nil
}

// Func2 compiles an expression of x and y.
func (c *Compiler) Func2(src string) (dynamo.Func2, error) {
	ev, err := c.compile(src, "x", "y")
	if err != nil {
		return nil, err
	}
	return func(x, y float64) float64 { return ev.eval(x, y) }, nil
}

// Scalar compiles the right-hand side of y' = f(x, y).
func (c *Compiler) Scalar(src string) (dynamo.ScalarFunc, error) {
	ev, err := c.compile(src, "x", "y")
	if err != nil {
		return nil, err
	}
	return func(x, y float64) float64 { return ev.eval(x, y) }, nil
}

// SecondOrder compiles the right-hand side of y'' = f(x, y, yp).
func (c *Compiler) SecondOrder(src string) (func(x, y, yp float64) float64, error) {
	ev, err := c.compile(src, "x", "y", "yp")
	if err != nil {
		return nil, err
	}
	return func(x, y, yp float64) float64 { return ev.eval(x, y, yp) }, nil
}

// Exact compiles a closed-form solution of t, also accepting x as the
// independent variable.
func (c *Compiler) Exact(src string) (dynamo.Func1, error) {
	ev, err := c.compile(src, "x", "t")
	if err != nil {
		return nil, err
	}
	return func(x float64) float64 { return ev.eval(x, x) }, nil
}

// State compiles an expression whose variables are bound, in order, to the
// components of a state vector.
func (c *Compiler) State(src string, vars ...string) (func(dynamo.State) float64, error) {
	ev, err := c.compile(src, vars...)
	if err != nil {
		return nil, err
	}
	return func(x dynamo.State) float64 { return ev.eval(x[:len(vars)]...) }, nil
}
