package fourier

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/numlab/internal/dynamo"
)

type Term struct {
	N int
	A float64
	B float64
}

// Coefficients is the immutable sequence Terms[0..N]; Terms[0] holds a0.
type Coefficients struct {
	l     float64
	terms []Term
}

func NewCoefficients(l float64, terms []Term) *Coefficients {
	return &Coefficients{l: l, terms: append([]Term(nil), terms...)}
}

func (c *Coefficients) L() float64 { return c.l }

// Len is the highest harmonic N.
func (c *Coefficients) Len() int { return len(c.terms) - 1 }

func (c *Coefficients) A0() float64 { return c.terms[0].A }

func (c *Coefficients) Term(n int) Term { return c.terms[n] }

// Terms returns a copy of the sequence.
func (c *Coefficients) Terms() []Term {
	return append([]Term(nil), c.terms...)
}

// Reconstruct evaluates a0/2 + Σ_{k=1..n} a_k cos(kπx/L) + b_k sin(kπx/L),
// guarding every term and partial sum.
func (c *Coefficients) Reconstruct(x float64, n int) (float64, error) {
	if n < 0 || n > c.Len() {
		return 0, dynamo.Invalidf("harmonic %d outside 0..%d", n, c.Len())
	}
	sum := c.terms[0].A / 2
	for k := 1; k <= n; k++ {
		t := c.terms[k]
		w := float64(k) * math.Pi * x / c.l
		term := t.A*math.Cos(w) + t.B*math.Sin(w)
		if err := dynamo.Require(fmt.Sprintf("term %d", k), term); err != nil {
			return 0, err
		}
		sum += term
		if err := dynamo.Require(fmt.Sprintf("partial sum %d", k), sum); err != nil {
			return 0, err
		}
	}
	return sum, nil
}

// Series holds sampled values of a function and its partial sum.
type Series struct {
	X         []float64
	Original  []float64
	Approx    []float64
	Divergent int
}

// MaxDeviation is max |f(x) - S(x)| over the sampled points.
func (s *Series) MaxDeviation() float64 {
	if len(s.X) == 0 {
		return 0
	}
	diff := make([]float64, len(s.Original))
	floats.SubTo(diff, s.Original, s.Approx)
	return floats.Norm(diff, math.Inf(1))
}

// MeanSquaredError is the mean of (f(x_i) - S_n(x_i))² over grid.
func MeanSquaredError(f dynamo.Func1, c *Coefficients, grid []float64, n int) (float64, error) {
	if len(grid) == 0 {
		return 0, dynamo.Invalidf("empty grid")
	}
	want := make([]float64, len(grid))
	got := make([]float64, len(grid))
	for i, x := range grid {
		want[i] = f(x)
		s, err := c.Reconstruct(x, n)
		if err != nil {
			return 0, err
		}
		got[i] = s
	}
	d := floats.Distance(want, got, 2)
	return d * d / float64(len(grid)), nil
}
