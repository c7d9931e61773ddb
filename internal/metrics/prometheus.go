package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives one call per finished solve.
type Recorder interface {
	ObserveSolve(solver string, iterations int, residual float64, converged bool, elapsed time.Duration)
}

// SolverCollector exports solve statistics to Prometheus. Each collector
// registers into its own registerer so several can coexist in one process.
type SolverCollector struct {
	solves     *prometheus.CounterVec
	iterations *prometheus.HistogramVec
	residual   *prometheus.GaugeVec
	duration   *prometheus.HistogramVec
}

// NewSolverCollector registers the solver metrics with reg. A nil reg
// means prometheus.DefaultRegisterer.
func NewSolverCollector(reg prometheus.Registerer) *SolverCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &SolverCollector{
		// solves counts finished solves by solver and convergence
		solves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mbsolve_solves_total",
			Help: "Total finished solves by solver and convergence",
		}, []string{"solver", "converged"}),

		iterations: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mbsolve_solve_iterations",
			Help:    "Iterations used per solve",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 to 2048
		}, []string{"solver"}),

		residual: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mbsolve_solve_residual",
			Help: "Residual of the most recent solve",
		}, []string{"solver"}),

		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mbsolve_solve_duration_seconds",
			Help:    "Solve duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16), // 10µs to ~300ms
		}, []string{"solver"}),
	}
}

func (c *SolverCollector) ObserveSolve(solver string, iterations int, residual float64, converged bool, elapsed time.Duration) {
	c.solves.WithLabelValues(solver, strconv.FormatBool(converged)).Inc()
	c.iterations.WithLabelValues(solver).Observe(float64(iterations))
	c.residual.WithLabelValues(solver).Set(residual)
	c.duration.WithLabelValues(solver).Observe(elapsed.Seconds())
}
