package integrators

import "github.com/san-kum/numlab/internal/dynamo"

// Euler is the first-order baseline used by the convergence-order study.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Name() string { return "euler" }
func (e *Euler) Order() int   { return 1 }

func (e *Euler) Step(f dynamo.ScalarFunc, x, y, h float64, step int) (ScalarStep, error) {
	k := f(x, y)
	if err := dynamo.Require("k1", k); err != nil {
		return ScalarStep{}, err
	}
	next := y + h*k
	if err := dynamo.Require("y_next", next); err != nil {
		return ScalarStep{}, err
	}
	return ScalarStep{Y: next, K: [4]float64{k, 0, 0, 0}, Valid: true}, nil
}

// NewScalar returns the stepper registered under name, or nil.
func NewScalar(name string) Scalar {
	switch name {
	case "", "rk4":
		return NewScalarRK4()
	case "euler":
		return NewEuler()
	}
	return nil
}
