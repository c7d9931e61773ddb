package solver_test

import (
	"context"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/mbsolve/internal/constraints"
	"github.com/san-kum/mbsolve/internal/descriptor"
	"github.com/san-kum/mbsolve/internal/dynamo"
	"github.com/san-kum/mbsolve/internal/mass"
	"github.com/san-kum/mbsolve/internal/solver"
	"github.com/san-kum/mbsolve/internal/variables"
	"gopkg.in/yaml.v3"
)

func tight() solver.Config {
	cfg := solver.DefaultConfig()
	cfg.MaxIterations = 500
	cfg.Tolerance = 1e-12
	cfg.WarmStart = false
	return cfg
}

func newPSOR(cfg solver.Config) solver.Solver {
	s, err := solver.NewPSOR(cfg)
	Expect(err).NotTo(HaveOccurred())
	return s
}

func newAPGD(cfg solver.Config) solver.Solver {
	s, err := solver.NewAPGD(cfg)
	Expect(err).NotTo(HaveOccurred())
	return s
}

var _ = Describe("Config", func() {
	DescribeTable("rejects invalid settings",
		func(mutate func(*solver.Config)) {
			cfg := solver.DefaultConfig()
			mutate(&cfg)
			Expect(cfg.Validate()).To(MatchError(dynamo.ErrInvalidConfig))
			_, err := solver.NewPSOR(cfg)
			Expect(err).To(MatchError(dynamo.ErrInvalidConfig))
			_, err = solver.NewAPGD(cfg)
			Expect(err).To(MatchError(dynamo.ErrInvalidConfig))
		},
		Entry("zero iteration cap", func(c *solver.Config) { c.MaxIterations = 0 }),
		Entry("negative iteration cap", func(c *solver.Config) { c.MaxIterations = -3 }),
		Entry("zero omega", func(c *solver.Config) { c.Omega = 0 }),
		Entry("omega of two", func(c *solver.Config) { c.Omega = 2 }),
		Entry("negative tolerance", func(c *solver.Config) { c.Tolerance = -1e-6 }),
		Entry("NaN tolerance", func(c *solver.Config) { c.Tolerance = math.NaN() }),
		Entry("unknown order", func(c *solver.Config) { c.SweepOrder = solver.SweepOrder(7) }),
	)

	It("accepts the defaults", func() {
		Expect(solver.DefaultConfig().Validate()).To(Succeed())
	})

	It("reads sweep orders from YAML", func() {
		var cfg solver.Config
		Expect(yaml.Unmarshal([]byte("max_iterations: 20\norder: colored\nomega: 1.3\n"), &cfg)).To(Succeed())
		Expect(cfg.SweepOrder).To(Equal(solver.Colored))
		Expect(cfg.MaxIterations).To(Equal(20))

		out, err := yaml.Marshal(cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(ContainSubstring("order: colored"))

		Expect(yaml.Unmarshal([]byte("order: spiral\n"), &cfg)).To(MatchError(dynamo.ErrInvalidConfig))
	})
})

var _ = Describe("Two-body equality", func() {
	check := func(s solver.Solver) {
		d, free, r := pairSystem()
		res, err := s.Solve(context.Background(), d, free)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Converged).To(BeTrue())
		Expect(res.Velocities[0]).To(BeNumerically("~", 5.0/3.0, 1e-6))
		Expect(res.Velocities[6]).To(BeNumerically("~", 5.0/3.0, 1e-6))
		Expect(r.Multiplier()).To(BeNumerically("~", -10.0/3.0, 1e-6))
		Expect(res.Multipliers).To(HaveLen(1))
		Expect(res.Multipliers[0]).To(Equal(r.Multiplier()))

		// transferred impulse m₁·(5 − v)
		Expect(1 * (5 - res.Velocities[0])).To(BeNumerically("~", math.Abs(r.Multiplier()), 1e-6))
		Expect(res.Velocities[1:6]).To(HaveEach(BeZero()))
	}

	It("is solved by sequential PSOR", func() { check(newPSOR(tight())) })

	It("is solved by random PSOR", func() {
		cfg := tight()
		cfg.SweepOrder = solver.Random
		cfg.Seed = 11
		check(newPSOR(cfg))
	})

	It("is solved by colored PSOR", func() {
		cfg := tight()
		cfg.SweepOrder = solver.Colored
		check(newPSOR(cfg))
	})

	It("is solved by over-relaxed PSOR", func() {
		cfg := tight()
		cfg.Omega = 1.4
		check(newPSOR(cfg))
	})

	It("is solved by APGD", func() { check(newAPGD(tight())) })

	It("is solved by the direct solver", func() { check(solver.NewDirect()) })

	It("reports the KKT residual of the direct solution", func() {
		d, free, _ := pairSystem()
		res, err := solver.NewDirect().Solve(context.Background(), d, free)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Residual).To(BeNumerically("<", 1e-12))
	})
})

var _ = Describe("PSOR", func() {
	It("satisfies equality rows on a mixed-mass chain", func() {
		d, free, rows := chainSystem(1, 10, 0.5, 3, 1)
		res, err := newPSOR(tight()).Solve(context.Background(), d, free)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Converged).To(BeTrue())
		for _, r := range rows {
			Expect(math.Abs(r.Violation(res.Velocities))).To(BeNumerically("<", 1e-6))
		}
		Expect(res.Violation).To(BeNumerically("<", 1e-6))

		// momentum along x is conserved
		p := 0.0
		for i, m := range []float64{1, 10, 0.5, 3, 1} {
			p += m * res.Velocities[6*i]
		}
		Expect(p).To(BeNumerically("~", 1.0, 1e-6))
	})

	It("visits rows in insertion order", func() {
		d, free, rows := chainSystem(1, 1, 1)
		cfg := tight()
		cfg.MaxIterations = 1
		res, err := newPSOR(cfg).Solve(context.Background(), d, free)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Iterations).To(Equal(1))
		Expect(rows[0].Multiplier()).To(BeNumerically("~", -0.5, 1e-12))
		Expect(rows[1].Multiplier()).To(BeNumerically("~", -0.25, 1e-12))
		Expect(res.Velocities[0]).To(BeNumerically("~", 0.5, 1e-12))
		Expect(res.Velocities[6]).To(BeNumerically("~", 0.25, 1e-12))
		Expect(res.Velocities[12]).To(BeNumerically("~", 0.25, 1e-12))
	})

	It("reports non-convergence as data", func() {
		d, free, _ := chainSystem(1, 100, 1, 100, 1)
		cfg := tight()
		cfg.MaxIterations = 2
		cfg.RecordHistory = true
		rec := &countingRecorder{}
		s, err := solver.NewPSOR(cfg, solver.WithRecorder(rec))
		Expect(err).NotTo(HaveOccurred())

		res, err := s.Solve(context.Background(), d, free)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Converged).To(BeFalse())
		Expect(res.Iterations).To(Equal(2))
		Expect(res.Residual).To(BeNumerically(">", 0))
		Expect(res.History).To(HaveLen(2))
		Expect(res.History[1]).To(Equal(res.Residual))
		Expect(rec.calls).To(Equal(1))
		Expect(rec.lastName).To(Equal("psor"))
		Expect(rec.converged).To(BeFalse())
	})

	It("needs fewer iterations when warm started", func() {
		cold := tight()
		cold.Tolerance = 1e-10
		d, free, _ := chainSystem(1, 50, 1, 50, 1, 50)
		first, err := newPSOR(cold).Solve(context.Background(), d, free)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Converged).To(BeTrue())
		Expect(first.Iterations).To(BeNumerically(">", 2))

		warm := cold
		warm.WarmStart = true
		second, err := newPSOR(warm).Solve(context.Background(), d, free)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Converged).To(BeTrue())
		Expect(second.Iterations).To(BeNumerically("<", first.Iterations))

		again, err := newPSOR(cold).Solve(context.Background(), d, free)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Iterations).To(Equal(first.Iterations))
	})

	It("matches sequential results with colored sweeps", func() {
		d, free, _ := chainSystem(2, 1, 4, 1, 2, 1, 3)
		seq, err := newPSOR(tight()).Solve(context.Background(), d, free)
		Expect(err).NotTo(HaveOccurred())

		cfg := tight()
		cfg.SweepOrder = solver.Colored
		col, err := newPSOR(cfg).Solve(context.Background(), d, free)
		Expect(err).NotTo(HaveOccurred())
		Expect(col.Converged).To(BeTrue())
		for i := range seq.Velocities {
			Expect(col.Velocities[i]).To(BeNumerically("~", seq.Velocities[i], 1e-6))
		}
	})

	It("relaxes large color groups in parallel", func() {
		d, free := ladder(200)
		cfg := tight()
		cfg.SweepOrder = solver.Colored
		cfg.Workers = 4
		res, err := newPSOR(cfg).Solve(context.Background(), d, free)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Converged).To(BeTrue())
		for i := 0; i < len(free); i += 12 {
			Expect(res.Velocities[i]).To(BeNumerically("~", 0.5, 1e-9))
			Expect(res.Velocities[i+6]).To(BeNumerically("~", 0.5, 1e-9))
		}
	})

	It("stops colored sweeps on a cancelled context", func() {
		d, free := ladder(200)
		cfg := tight()
		cfg.SweepOrder = solver.Colored
		cfg.Workers = 4
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newPSOR(cfg).Solve(ctx, d, free)
		Expect(err).To(MatchError(context.Canceled))
	})

	It("gives the same result for the same seed", func() {
		cfg := tight()
		cfg.SweepOrder = solver.Random
		cfg.Seed = 42
		cfg.MaxIterations = 3

		d1, free1, _ := chainSystem(1, 2, 3, 4)
		r1, err := newPSOR(cfg).Solve(context.Background(), d1, free1)
		Expect(err).NotTo(HaveOccurred())
		d2, free2, _ := chainSystem(1, 2, 3, 4)
		r2, err := newPSOR(cfg).Solve(context.Background(), d2, free2)
		Expect(err).NotTo(HaveOccurred())
		Expect(r2.Multipliers).To(Equal(r1.Multipliers))
	})
})

var _ = Describe("Contact and friction", func() {
	solvers := map[string]func() solver.Solver{
		"psor": func() solver.Solver { return newPSOR(tight()) },
		"apgd": func() solver.Solver { return newAPGD(tight()) },
	}

	for name, build := range solvers {
		Context(name, func() {
			It("stops a falling box without pulling it", func() {
				d, free, n, _ := restingBox(0, -1, 0.5)
				res, err := build().Solve(context.Background(), d, free)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Converged).To(BeTrue())
				Expect(n.Multiplier()).To(BeNumerically("~", 1, 1e-6))
				Expect(res.Velocities[1]).To(BeNumerically("~", 0, 1e-6))
			})

			It("leaves a separating box alone", func() {
				d, free, n, fr := restingBox(0.3, 1, 0.5)
				res, err := build().Solve(context.Background(), d, free)
				Expect(err).NotTo(HaveOccurred())
				Expect(n.Multiplier()).To(BeZero())
				Expect(fr[0].Multiplier()).To(BeZero())
				Expect(res.Velocities[0]).To(BeNumerically("~", 0.3, 1e-12))
				Expect(res.Velocities[1]).To(BeNumerically("~", 1, 1e-12))
			})

			It("caps friction by the cone", func() {
				d, free, n, fr := restingBox(2, -1, 0.5)
				res, err := build().Solve(context.Background(), d, free)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Converged).To(BeTrue())
				Expect(math.Abs(fr[0].Multiplier())).To(BeNumerically("<=", 0.5*n.Multiplier()+1e-9))
				Expect(fr[0].Multiplier()).To(BeNumerically("~", -0.5, 1e-6))
				Expect(res.Velocities[0]).To(BeNumerically("~", 1.5, 1e-6))
			})

			It("sticks below the cone", func() {
				d, free, _, fr := restingBox(0.2, -1, 0.5)
				res, err := build().Solve(context.Background(), d, free)
				Expect(err).NotTo(HaveOccurred())
				Expect(fr[0].Multiplier()).To(BeNumerically("~", -0.2, 1e-6))
				Expect(res.Velocities[0]).To(BeNumerically("~", 0, 1e-6))
			})

			It("drops friction once its normal is disabled", func() {
				d, free, n, fr := restingBox(0, -1, 0.5)
				s := build()
				_, err := s.Solve(context.Background(), d, free)
				Expect(err).NotTo(HaveOccurred())
				Expect(n.Multiplier()).To(BeNumerically("~", 1, 1e-6))

				n.SetDisabled(true)
				Expect(d.Assemble()).To(Succeed())
				free = make([]float64, 6)
				free[0] = 2
				res, err := s.Solve(context.Background(), d, free)
				Expect(err).NotTo(HaveOccurred())
				Expect(fr[0].Multiplier()).To(BeZero())
				Expect(res.Velocities[0]).To(Equal(2.0))
			})

			It("keeps every multiplier inside its bounds", func() {
				d, free, _, _ := restingBox(3, -2, 0.3)
				res, err := build().Solve(context.Background(), d, free)
				Expect(err).NotTo(HaveOccurred())
				for _, r := range d.Constraints() {
					Expect(r.Project(r.Multiplier())).To(Equal(r.Multiplier()))
					c := r.Violation(res.Velocities)
					Expect(r.ComplementarityError(c)).To(BeNumerically("<", 1e-6))
				}
			})
		})
	}

	It("holds a box row at its torque limit", func() {
		wheel := boxBody(1)
		motor := mustRow(constraints.NewBox(-0.1, 0.1, seg(wheel, axis(3, 1))))
		motor.SetBias(-5) // drive toward +5 rad/s
		d := descriptor.New()
		d.InsertVariables(wheel)
		d.InsertConstraints(motor)
		Expect(d.Assemble()).To(Succeed())

		res, err := newPSOR(tight()).Solve(context.Background(), d, make([]float64, 6))
		Expect(err).NotTo(HaveOccurred())
		Expect(motor.Multiplier()).To(Equal(0.1))
		// inertia 1/6 gives Δω = 6·0.1
		Expect(res.Velocities[3]).To(BeNumerically("~", 0.6, 1e-9))
		Expect(res.Violation).To(BeNumerically("<", 1e-9))
	})
})

var _ = Describe("Shared mass", func() {
	It("reflects pool changes without reassembly", func() {
		pool := mass.NewPool()
		h, err := pool.Add(1, mgl64.Ident3())
		Expect(err).NotTo(HaveOccurred())
		a, err := variables.NewShared(pool, h)
		Expect(err).NotTo(HaveOccurred())
		b, err := variables.NewShared(pool, h)
		Expect(err).NotTo(HaveOccurred())

		r := mustRow(constraints.NewEquality(seg(a, axis(0, 1)), seg(b, axis(0, -1))))
		d := descriptor.New()
		d.InsertVariables(a, b)
		d.InsertConstraints(r)
		free := make([]float64, 12)
		free[0] = 5

		s := newPSOR(tight())
		_, err = s.Solve(context.Background(), d, free)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Multiplier()).To(BeNumerically("~", -2.5, 1e-9))

		Expect(pool.SetMass(h, 4)).To(Succeed())
		res, err := s.Solve(context.Background(), d, free)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Multiplier()).To(BeNumerically("~", -10, 1e-9))
		Expect(res.Velocities[0]).To(BeNumerically("~", 2.5, 1e-9))
	})
})

var _ = Describe("Mass and compliance changes", func() {
	solvers := map[string]func() solver.Solver{
		"psor": func() solver.Solver { return newPSOR(tight()) },
		"apgd": func() solver.Solver { return newAPGD(tight()) },
	}

	for name, build := range solvers {
		Context(name, func() {
			It("conserves momentum after one body's mass changes", func() {
				pool := mass.NewPool()
				h1, err := pool.Add(1, mgl64.Ident3())
				Expect(err).NotTo(HaveOccurred())
				h2, err := pool.Add(2, mgl64.Ident3())
				Expect(err).NotTo(HaveOccurred())
				a, err := variables.NewShared(pool, h1)
				Expect(err).NotTo(HaveOccurred())
				b, err := variables.NewShared(pool, h2)
				Expect(err).NotTo(HaveOccurred())

				r := mustRow(constraints.NewEquality(seg(a, axis(0, 1)), seg(b, axis(0, -1))))
				d := descriptor.New()
				d.InsertVariables(a, b)
				d.InsertConstraints(r)
				free := make([]float64, 12)
				free[0] = 5

				s := build()
				_, err = s.Solve(context.Background(), d, free)
				Expect(err).NotTo(HaveOccurred())
				Expect(r.Multiplier()).To(BeNumerically("~", -10.0/3, 1e-6))

				Expect(pool.SetMass(h1, 4)).To(Succeed())
				res, err := s.Solve(context.Background(), d, free)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Velocities[0]).To(BeNumerically("~", 10.0/3, 1e-6))
				Expect(res.Velocities[6]).To(BeNumerically("~", 10.0/3, 1e-6))
				Expect(r.Multiplier()).To(BeNumerically("~", -20.0/3, 1e-6))
			})

			It("uses a compliance set after assembly", func() {
				d, free, r := pairSystem()
				s := build()
				_, err := s.Solve(context.Background(), d, free)
				Expect(err).NotTo(HaveOccurred())

				Expect(r.SetCompliance(0.5)).To(Succeed())
				res, err := s.Solve(context.Background(), d, free)
				Expect(err).NotTo(HaveOccurred())
				// 5 + 1.5λ + 0.5λ = 0
				Expect(r.Multiplier()).To(BeNumerically("~", -2.5, 1e-6))
				Expect(res.Velocities[0]).To(BeNumerically("~", 2.5, 1e-6))
				Expect(res.Velocities[6]).To(BeNumerically("~", 1.25, 1e-6))
			})
		})
	}
})

var _ = Describe("Degenerate input", func() {
	It("returns the free velocities without rows", func() {
		d := descriptor.New()
		d.InsertVariables(pointBody(1))
		free := []float64{1, 2, 3, 4, 5, 6}
		for _, s := range []solver.Solver{newPSOR(tight()), newAPGD(tight()), solver.NewDirect()} {
			res, err := s.Solve(context.Background(), d, free)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Converged).To(BeTrue())
			Expect(res.Iterations).To(BeZero())
			Expect(res.Velocities).To(Equal(free))
		}
	})

	It("returns the trivial solution for an empty descriptor", func() {
		res, err := newPSOR(tight()).Solve(context.Background(), descriptor.New(), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Velocities).To(BeEmpty())
	})

	It("rejects a wrongly sized free vector", func() {
		d, _, _ := pairSystem()
		_, err := newPSOR(tight()).Solve(context.Background(), d, make([]float64, 5))
		Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
	})

	It("fails assembly on an invalid mass", func() {
		d := descriptor.New()
		d.InsertVariables(variables.New(nil))
		_, err := newPSOR(tight()).Solve(context.Background(), d, nil)
		Expect(err).To(MatchError(dynamo.ErrInvalidMass))
	})

	It("leaves inequality rows to the iterative solvers", func() {
		d, free, _, _ := restingBox(0, -1, 0.5)
		_, err := solver.NewDirect().Solve(context.Background(), d, free)
		Expect(err).To(MatchError(dynamo.ErrUnsupportedConstraint))
	})
})
