package analysis

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/san-kum/numlab/internal/dynamo"
)

// FFT transforms real samples of any length.
func FFT(data []float64) []complex128 {
	return fft.FFTReal(data)
}

// pad removes the mean and zero-pads to the next power of two.
func pad(data []float64) []float64 {
	n := 1
	for n < len(data) {
		n <<= 1
	}
	mean := 0.0
	for _, v := range data {
		mean += v
	}
	mean /= float64(len(data))

	out := make([]float64, n)
	for i, v := range data {
		out[i] = v - mean
	}
	return out
}

// PowerSpectrum returns |X_k| for k below Nyquist. Any length is accepted.
func PowerSpectrum(data []float64) []float64 {
	if len(data) == 0 {
		return nil
	}
	fft := FFT(pad(data))
	ps := make([]float64, len(fft)/2)

	for i := range ps {
		ps[i] = cmplx.Abs(fft[i])
	}

	return ps
}

// DominantFrequency returns the frequency, in cycles per unit of the
// independent variable, of the strongest non-constant spectral bin.
func DominantFrequency(data []float64, dt float64) (float64, error) {
	if dt <= 0 {
		return 0, dynamo.Invalidf("sample spacing must be positive, got %g", dt)
	}
	if len(data) < 4 {
		return 0, dynamo.Invalidf("need at least 4 samples, got %d", len(data))
	}
	if err := dynamo.RequireAll("sample", data); err != nil {
		return 0, err
	}

	ps := PowerSpectrum(data)
	best := 1
	for k := 2; k < len(ps); k++ {
		if ps[k] > ps[best] {
			best = k
		}
	}
	n := 2 * len(ps)
	return float64(best) / (float64(n) * dt), nil
}
