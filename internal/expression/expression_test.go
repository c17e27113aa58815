package expression

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/numlab/internal/dynamo"
)

func TestScalar(t *testing.T) {
	c, err := NewCompiler(nil)
	if err != nil {
		t.Fatal(err)
	}
	f, err := c.Scalar("x - y")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := f(3, 1); got != 2 {
		t.Errorf("f(3, 1) = %v, expected 2", got)
	}
}

func TestFunctions(t *testing.T) {
	c, _ := NewCompiler(nil)
	tests := []struct {
		src      string
		x        float64
		expected float64
	}{
		{"x**3 - 2*x - 5", 2, -1},
		{"3*x^2 - 2", 2, 10},
		{"sin(x) + x*x", 1, math.Sin(1) + 1},
		{"exp(x) + 1", 0, 2},
		{"sqrt(x)", 16, 4},
		{"log(e)", 0, 1},
		{"pow(x, 2)", 3, 9},
		{"cos(pi)", 0, -1},
		{"abs(x)", -2.5, 2.5},
		{"x < pi ? x : 2*pi - x", 4, 2*math.Pi - 4},
		{"1", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			f, err := c.Func1(tt.src)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			if got := f(tt.x); math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("got %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestSecondOrderAndFunc2(t *testing.T) {
	c, _ := NewCompiler(map[string]float64{"k": 4})

	f, err := c.SecondOrder("-k*y - yp")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := f(0, 1, 2); got != -6 {
		t.Errorf("got %v, expected -6", got)
	}

	g, err := c.Func2("x*x + y*y - k")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := g(1, 1); got != -2 {
		t.Errorf("got %v, expected -2", got)
	}
}

func TestExact(t *testing.T) {
	c, _ := NewCompiler(nil)
	f, err := c.Exact("cos(t)")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := f(0); got != 1 {
		t.Errorf("got %v, expected 1", got)
	}
}

func TestCompileErrors(t *testing.T) {
	c, _ := NewCompiler(nil)
	for _, src := range []string{"", "x +", "z * 2", "yp"} {
		if _, err := c.Func1(src); !errors.Is(err, dynamo.ErrInvalidConfig) {
			t.Errorf("%q: expected invalid config, got %v", src, err)
		}
	}
}

func TestRuntimeFailureIsNaN(t *testing.T) {
	c, _ := NewCompiler(nil)
	f, err := c.Func1("log(x)")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !math.IsNaN(f(-1)) {
		t.Error("log of a negative number should be NaN")
	}
	if dynamo.IsValid(f(-1)) {
		t.Error("the guard must reject the result")
	}
}

func TestReservedParams(t *testing.T) {
	if _, err := NewCompiler(map[string]float64{"x": 1}); !errors.Is(err, dynamo.ErrInvalidConfig) {
		t.Errorf("expected invalid config, got %v", err)
	}
	if _, err := NewCompiler(map[string]float64{"k": math.NaN()}); !errors.Is(err, dynamo.ErrNumericFault) {
		t.Errorf("expected numeric fault, got %v", err)
	}
	c, _ := NewCompiler(map[string]float64{"b": 1, "a": 2})
	if p := c.Params(); len(p) != 2 || p[0] != "a" {
		t.Errorf("unexpected params %v", p)
	}
}
