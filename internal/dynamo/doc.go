// Package dynamo provides the core numeric primitives shared by every
// stepper and solver in numlab.
//
// The package defines:
//
//   - [State]: vector representing a system state (length 2 for every
//     shipped second-order or coupled problem)
//   - [ScalarFunc] and [System]: injected right-hand sides
//   - [IsValid] and [Require]: the numeric guard every result passes through
//   - [Diagnostics]: accumulator for non-fatal warnings
//   - [Sink]: the report sink that receives ordered sample tuples
//
// # Example
//
//	if err := dynamo.Require("k1", k1); err != nil {
//		return err // *NumericFault, errors.Is(err, ErrNumericFault)
//	}
//
// # Thread Safety
//
// Nothing in this package is safe for concurrent mutation. Runs are
// single-threaded and synchronous.
package dynamo
