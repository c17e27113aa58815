package newton_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/numlab/internal/dynamo"
	"github.com/san-kum/numlab/internal/newton"
)

type tupleSink struct {
	series map[string][][]float64
}

func newTupleSink() *tupleSink {
	return &tupleSink{series: make(map[string][][]float64)}
}

func (s *tupleSink) Emit(series string, values ...float64) error {
	s.series[series] = append(s.series[series], append([]float64(nil), values...))
	return nil
}

func (s *tupleSink) Close() error { return nil }

var _ = Describe("Scalar", func() {
	cubic := func(x float64) float64 { return x*x*x - 2*x - 5 }
	cubicPrime := func(x float64) float64 { return 3*x*x - 2 }

	It("finds the real root of x³-2x-5 from x0=2", func() {
		solver, err := newton.NewScalar(cubic, cubicPrime)
		Expect(err).NotTo(HaveOccurred())

		sink := newTupleSink()
		res, err := solver.Solve(context.Background(), 2, sink)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Status).To(Equal(newton.Converged))
		Expect(res.Root[0]).To(BeNumerically("~", 2.0945515, 1e-6))
		Expect(res.Iterations).To(BeNumerically("<=", 10))
		Expect(res.Records).To(HaveLen(res.Iterations))
		Expect(sink.series[newton.SeriesIterations]).To(HaveLen(res.Iterations))
		Expect(res.Diagnostics.Len()).To(BeZero())
		Expect(math.Abs(res.Residual[0])).To(BeNumerically("<", 1e-6))
	})

	It("records each iteration before deciding the status", func() {
		solver, err := newton.NewScalar(cubic, cubicPrime)
		Expect(err).NotTo(HaveOccurred())

		res, err := solver.Solve(context.Background(), 2, nil)
		Expect(err).NotTo(HaveOccurred())

		first := res.Records[0]
		Expect(first.Iteration).To(Equal(0))
		Expect(first.State[0]).To(Equal(2.0))
		Expect(first.Residual[0]).To(Equal(-1.0))
		Expect(first.Jacobian).To(Equal(10.0))
		Expect(first.Error).To(BeNumerically("~", 0.1, 1e-12))

		last := res.Records[len(res.Records)-1]
		Expect(last.Error).To(BeNumerically("<", newton.DefaultTolerance))
	})

	It("stops with DerivativeZero on the first iteration of x² at 0", func() {
		solver, err := newton.NewScalar(
			func(x float64) float64 { return x * x },
			func(x float64) float64 { return 2 * x },
		)
		Expect(err).NotTo(HaveOccurred())

		res, err := solver.Solve(context.Background(), 0, nil)
		Expect(err).To(MatchError(dynamo.ErrDerivativeZero))
		Expect(res.Status).To(Equal(newton.DerivativeZero))
		Expect(res.Records).To(BeEmpty())
	})

	It("reports divergence without failing", func() {
		solver, err := newton.NewScalar(
			math.Cbrt,
			func(x float64) float64 { c := math.Cbrt(x); return 1 / (3 * c * c) },
		)
		Expect(err).NotTo(HaveOccurred())

		res, err := solver.Solve(context.Background(), 1, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Status).To(Equal(newton.Diverged))
		Expect(res.Iterations).To(BeNumerically(">", newton.ScalarDivergenceWarmup))
		Expect(res.Diagnostics.Count(dynamo.WarnDivergence)).To(Equal(1))
		Expect(res.Diagnostics.Count(dynamo.WarnResidual)).To(Equal(1))

		last := res.Records[len(res.Records)-1]
		Expect(res.Root[0]).To(Equal(last.State[0]))
	})

	It("gives up after MaxIter iterations", func() {
		solver, err := newton.NewScalar(cubic, cubicPrime, newton.WithMaxIter(2))
		Expect(err).NotTo(HaveOccurred())

		res, err := solver.Solve(context.Background(), 2, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Status).To(Equal(newton.MaxIterExceeded))
		Expect(res.Iterations).To(Equal(2))
	})

	It("fails on a non-finite function value", func() {
		solver, err := newton.NewScalar(
			func(x float64) float64 { return math.Log(x) },
			func(x float64) float64 { return 1 / x },
		)
		Expect(err).NotTo(HaveOccurred())

		res, err := solver.Solve(context.Background(), -1, nil)
		Expect(err).To(MatchError(dynamo.ErrNumericFault))
		Expect(res.Status).To(Equal(newton.Faulted))
	})

	It("rejects invalid options", func() {
		_, err := newton.NewScalar(cubic, cubicPrime, newton.WithTolerance(0))
		Expect(err).To(MatchError(dynamo.ErrInvalidConfig))

		_, err = newton.NewScalar(cubic, cubicPrime, newton.WithMaxIter(0))
		Expect(err).To(MatchError(dynamo.ErrInvalidConfig))

		_, err = newton.NewScalar(nil, cubicPrime)
		Expect(err).To(MatchError(dynamo.ErrInvalidConfig))
	})
})
