package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for stepper and solver operations.
var (
	// ErrNumericFault indicates a NaN, infinite or overflowing intermediate value.
	ErrNumericFault = errors.New("dynamo: numeric fault (NaN, Inf or |v| > 1e100)")

	// ErrDerivativeZero indicates |f'(x)| fell below the Newton threshold.
	ErrDerivativeZero = errors.New("dynamo: derivative is zero")

	// ErrSingularJacobian indicates |det J| fell below the Newton threshold.
	ErrSingularJacobian = errors.New("dynamo: singular jacobian")

	// ErrOverflow indicates a quadrature partial sum exceeded its bound.
	ErrOverflow = errors.New("dynamo: partial sum overflow")

	// ErrRecoveryFailed indicates step halving could not produce a valid step.
	ErrRecoveryFailed = errors.New("dynamo: step recovery failed")

	// ErrStepLimit indicates the global step cap was reached.
	ErrStepLimit = errors.New("dynamo: step limit exceeded")

	// ErrInvalidConfig indicates a parameter outside its valid range.
	ErrInvalidConfig = errors.New("dynamo: invalid configuration")

	// ErrDimensionMismatch indicates mismatched state/system dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")
)

// NumericFault names the value that failed the guard.
type NumericFault struct {
	Name  string
	Value float64
}

func (e *NumericFault) Error() string {
	return fmt.Sprintf("dynamo: %s = %v is not a valid number", e.Name, e.Value)
}

func (e *NumericFault) Unwrap() error {
	return ErrNumericFault
}

// SimulationError wraps an error with the step at which it happened.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}

// Invalidf builds an ErrInvalidConfig error with context.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
