package newton_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/numlab/internal/dynamo"
	"github.com/san-kum/numlab/internal/newton"
)

var circleExp = newton.Equations{
	F1:    func(x, y float64) float64 { return x*x + y*y - 4 },
	F2:    func(x, y float64) float64 { return math.Exp(x) + y - 1 },
	DF1DX: func(x, y float64) float64 { return 2 * x },
	DF1DY: func(x, y float64) float64 { return 2 * y },
	DF2DX: func(x, y float64) float64 { return math.Exp(x) },
	DF2DY: func(x, y float64) float64 { return 1 },
}

var _ = Describe("System", func() {
	It("solves x²+y²=4, eˣ+y=1 from (1, 1)", func() {
		solver, err := newton.NewSystem(circleExp)
		Expect(err).NotTo(HaveOccurred())

		sink := newTupleSink()
		res, err := solver.Solve(context.Background(), 1, 1, sink)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Status).To(Equal(newton.Converged))

		x, y := res.Root[0], res.Root[1]
		Expect(math.Abs(circleExp.F1(x, y))).To(BeNumerically("<", 1e-5))
		Expect(math.Abs(circleExp.F2(x, y))).To(BeNumerically("<", 1e-5))
		Expect(res.Diagnostics.Count(dynamo.WarnResidual)).To(BeZero())

		Expect(sink.series[newton.SeriesIterations]).To(HaveLen(res.Iterations))
		Expect(sink.series[newton.SeriesTrajectory]).To(HaveLen(res.Iterations + 1))
	})

	It("stores the determinant in each record", func() {
		solver, err := newton.NewSystem(circleExp)
		Expect(err).NotTo(HaveOccurred())

		res, err := solver.Solve(context.Background(), 1, 1, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Records[0].Jacobian).To(BeNumerically("~", 2-2*math.E, 1e-12))
		Expect(res.Records[0].Residual).To(HaveLen(2))
	})

	It("stops on a singular Jacobian", func() {
		solver, err := newton.NewSystem(newton.Equations{
			F1:    func(x, y float64) float64 { return x + y },
			F2:    func(x, y float64) float64 { return 2*x + 2*y - 1 },
			DF1DX: func(x, y float64) float64 { return 1 },
			DF1DY: func(x, y float64) float64 { return 1 },
			DF2DX: func(x, y float64) float64 { return 2 },
			DF2DY: func(x, y float64) float64 { return 2 },
		})
		Expect(err).NotTo(HaveOccurred())

		res, err := solver.Solve(context.Background(), 0.3, 0.7, nil)
		Expect(err).To(MatchError(dynamo.ErrSingularJacobian))
		Expect(res.Status).To(Equal(newton.SingularJacobian))
		Expect(res.Records).To(BeEmpty())
	})

	It("honours the iteration cap", func() {
		solver, err := newton.NewSystem(circleExp, newton.WithMaxIter(1))
		Expect(err).NotTo(HaveOccurred())

		res, err := solver.Solve(context.Background(), 1, 1, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Status).To(Equal(newton.MaxIterExceeded))
		Expect(res.Iterations).To(Equal(1))
		Expect(res.Diagnostics.Count(dynamo.WarnResidual)).To(Equal(1))
	})

	It("requires every partial derivative", func() {
		eq := circleExp
		eq.DF2DY = nil
		_, err := newton.NewSystem(eq)
		Expect(err).To(MatchError(dynamo.ErrInvalidConfig))
	})
})

var _ = Describe("Step", func() {
	It("solves J·d = -F by Cramer's rule", func() {
		// J = [[2, 1], [1, 3]], F = (-3, -5) has d = (0.8, 1.4).
		dx, dy, det, err := newton.Step(-3, -5, 2, 1, 1, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(det).To(Equal(5.0))
		Expect(dx).To(BeNumerically("~", 0.8, 1e-12))
		Expect(dy).To(BeNumerically("~", 1.4, 1e-12))
	})
})
