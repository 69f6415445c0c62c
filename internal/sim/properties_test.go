package sim_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/phytosim/internal/analysis"
	"github.com/san-kum/phytosim/internal/control"
	"github.com/san-kum/phytosim/internal/dynamo"
	"github.com/san-kum/phytosim/internal/integrators"
	"github.com/san-kum/phytosim/internal/models"
	"github.com/san-kum/phytosim/internal/sim"
)

var _ = Describe("Simulator", func() {
	var (
		s      *sim.Simulator
		params models.Params
		ctx    context.Context
	)

	BeforeEach(func() {
		s = sim.New(integrators.NewRK45(), dynamo.DefaultConfig())
		params = models.DefaultParams()
		ctx = context.Background()
	})

	Describe("batch culture", func() {
		var tr *sim.Trajectory

		BeforeEach(func() {
			var err error
			tr, err = s.Run(ctx, sim.Request{
				Params:  params,
				Initial: dynamo.State{1, 1, 1},
				Policy:  control.NewBatch(),
				TFinal:  10,
				Samples: 201,
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("conserves total resource", func() {
			Expect(tr.Points[0].Mass).To(Equal(2.0))
			for _, p := range tr.Points {
				Expect(math.Abs(p.Mass-2) / 2).To(BeNumerically("<", 1e-4))
			}
			Expect(tr.Final().Mass).To(BeNumerically("~", 2, 1e-3))
		})

		It("never loses cells while the quota exceeds its minimum", func() {
			for i := 1; i < tr.Len(); i++ {
				prev := tr.Points[i-1]
				if prev.Q > params.QMin {
					Expect(tr.Points[i].X).To(BeNumerically(">=", prev.X-1e-9))
				}
			}
		})

		It("depletes the resource and starves the quota", func() {
			final := tr.Final()
			Expect(final.R).To(BeNumerically("<", tr.Points[0].R))
			Expect(final.Q).To(BeNumerically("<", tr.Points[0].Q))
			Expect(final.Dilution).To(BeZero())
		})
	})

	Describe("chemostat", func() {
		It("settles on the closed-form equilibrium with growth matching dilution", func() {
			chem, err := control.NewChemostat(0.5)
			Expect(err).NotTo(HaveOccurred())

			tr, err := s.Run(ctx, sim.Request{
				Params:  params,
				Initial: dynamo.State{1, 1, 1},
				Policy:  chem,
				TFinal:  100,
				Samples: 101,
			})
			Expect(err).NotTo(HaveOccurred())

			eq, err := analysis.ChemostatEquilibrium(params, 0.5)
			Expect(err).NotTo(HaveOccurred())

			final := tr.Final()
			Expect(final.R).To(BeNumerically("~", eq.R, 1e-4))
			Expect(final.Q).To(BeNumerically("~", eq.Q, 1e-4))
			Expect(final.X).To(BeNumerically("~", eq.X, 1e-3))
			Expect(final.Mu).To(BeNumerically("~", 0.5, 1e-4))
			Expect(final.Mass).To(BeNumerically("~", params.Rs, 1e-4))
		})

		It("washes out above the critical dilution rate", func() {
			chem, err := control.NewChemostat(1.5)
			Expect(err).NotTo(HaveOccurred())

			tr, err := s.Run(ctx, sim.Request{
				Params:  params,
				Initial: dynamo.State{1, 1, 1},
				Policy:  chem,
				TFinal:  60,
				Samples: 61,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(tr.Final().X).To(BeNumerically("<", 1e-6))
			Expect(tr.Final().R).To(BeNumerically("~", params.Rs, 1e-4))
		})
	})

	Describe("turbidostat", func() {
		It("holds density inside the band after the transient", func() {
			turb, err := control.NewTurbidostat(2, params.MuMax)
			Expect(err).NotTo(HaveOccurred())

			tr, err := s.Run(ctx, sim.Request{
				Params:  params,
				Initial: dynamo.State{1, 0.5, 0.5},
				Policy:  turb,
				TFinal:  100,
				Samples: 1001,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(tr.Regime).To(Equal(control.RegimeTurbidostat))

			for _, p := range tr.Points {
				Expect(p.Dilution).To(BeNumerically(">=", 0))
				Expect(p.Dilution).To(BeNumerically("<=", turb.Gain*params.MuMax))
				if p.T >= 50 {
					Expect(p.X).To(BeNumerically(">=", turb.Low*turb.XStar*0.99))
					Expect(p.X).To(BeNumerically("<=", turb.High*turb.XStar*1.01))
				}
			}

			band := analysis.TurbidostatBand(tr, turb, 50)
			Expect(band.Samples).To(BeNumerically(">", 0))
		})
	})

	Describe("semi-continuous batch", func() {
		var transfer control.Transfer

		BeforeEach(func() {
			var err error
			transfer, err = control.NewTransferToTarget(1, 1, params.Rs)
			Expect(err).NotTo(HaveOccurred())
		})

		It("converges geometrically to a periodic state", func() {
			tr, err := s.Run(ctx, sim.Request{
				Params:   params,
				Initial:  dynamo.State{1, 1, 1},
				Transfer: &transfer,
				TFinal:   40,
				Samples:  21,
			})
			Expect(err).NotTo(HaveOccurred())

			post := tr.PostDilution()
			Expect(post).To(HaveLen(39))
			for _, p := range post {
				Expect(p.X).To(BeNumerically("~", 1, 1e-12))
			}

			report, err := analysis.PeriodicState(tr, 1e-5)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Converged).To(BeTrue())
			Expect(report.Ratio).To(BeNumerically("<", 1))
		})

		It("keeps both samples of every dilution at the same time", func() {
			tr, err := s.Run(ctx, sim.Request{
				Params:   params,
				Initial:  dynamo.State{1, 1, 1},
				Transfer: &transfer,
				TFinal:   5,
				Samples:  5,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(tr.Boundaries).To(HaveLen(4))

			pre := tr.PreDilution()
			post := tr.PostDilution()
			for i := range post {
				Expect(post[i].T).To(Equal(pre[i].T))
				Expect(post[i].X).To(BeNumerically("<=", pre[i].X))
				Expect(post[i].R).To(BeNumerically(">=", pre[i].R))
			}
		})

		It("applies a fixed dilution fraction", func() {
			half, err := control.NewTransferFraction(2, 0.5, params.Rs)
			Expect(err).NotTo(HaveOccurred())

			tr, err := s.Run(ctx, sim.Request{
				Params:   params,
				Initial:  dynamo.State{1, 1, 1},
				Transfer: &half,
				TFinal:   6,
				Samples:  11,
			})
			Expect(err).NotTo(HaveOccurred())

			pre := tr.PreDilution()
			for i, p := range tr.PostDilution() {
				Expect(p.X).To(BeNumerically("~", 0.5*pre[i].X, 1e-12))
				Expect(p.R).To(BeNumerically("~", 0.5*pre[i].R+0.5*params.Rs, 1e-12))
				Expect(tr.Boundaries[i].Retained).To(Equal(0.5))
			}
		})

		It("refuses to dilute an empty culture to a target", func() {
			_, err := s.Run(ctx, sim.Request{
				Params:   params,
				Initial:  dynamo.State{1, 1, 0},
				Transfer: &transfer,
				TFinal:   3,
				Samples:  5,
			})
			Expect(err).To(MatchError(dynamo.ErrDegenerateDilution))

			var de *dynamo.DegenerateDilutionError
			Expect(err).To(BeAssignableToTypeOf(de))
		})
	})

	Describe("presentation values", func() {
		It("flags log10 of a zero density instead of returning -Inf", func() {
			tr, err := s.Run(ctx, sim.Request{
				Params:  params,
				Initial: dynamo.State{1, 1, 0},
				Policy:  control.NewBatch(),
				TFinal:  1,
				Samples: 4,
			})
			Expect(err).NotTo(HaveOccurred())

			values, flagged := tr.Log10X()
			Expect(flagged).To(Equal([]int{0, 1, 2, 3}))
			for _, v := range values {
				Expect(math.IsInf(v, -1)).To(BeFalse())
			}
		})
	})
})
