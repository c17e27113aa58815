package dynamo

import (
	"fmt"
	"math"
)

// MaxMagnitude is the largest absolute value the guard accepts.
const MaxMagnitude = 1e100

// IsValid returns false iff v is NaN, infinite, or |v| > MaxMagnitude.
func IsValid(v float64) bool {
	return !(math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > MaxMagnitude)
}

// Require returns a *NumericFault when v fails IsValid.
func Require(name string, v float64) error {
	if IsValid(v) {
		return nil
	}
	return &NumericFault{Name: name, Value: v}
}

// RequireAll checks every component of s, naming the first bad one name[i].
func RequireAll(name string, s State) error {
	for i, v := range s {
		if !IsValid(v) {
			return &NumericFault{Name: fmt.Sprintf("%s[%d]", name, i), Value: v}
		}
	}
	return nil
}

// First returns the first non-nil error.
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
