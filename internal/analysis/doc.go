// Package analysis post-processes finished runs.
//
//   - [Study] and [ObservedOrder]: empirical convergence order from errors
//     measured at several step sizes
//   - [PowerSpectrum] and [DominantFrequency]: frequency content of a
//     uniformly sampled series
//
// A fourth-order method should report an order close to 4:
//
//	res, err := analysis.Study([]float64{0.2, 0.1, 0.05}, run)
//	if err == nil && math.Abs(res.Order-4) < 0.5 {
//	    // behaves as RK4
//	}
package analysis
