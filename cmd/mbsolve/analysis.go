package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/san-kum/mbsolve/internal/dynamo"
	"github.com/san-kum/mbsolve/internal/experiment"
	"github.com/san-kum/mbsolve/internal/metrics"
	"github.com/san-kum/mbsolve/internal/optim"
	"github.com/san-kum/mbsolve/internal/sim"
	"github.com/san-kum/mbsolve/internal/solver"
	"github.com/san-kum/mbsolve/internal/viz"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

const (
	benchRuns      = 4
	maxDenseMatrix = 24
)

func sortedNames(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type benchCase struct {
	solver string
	order  solver.SweepOrder
}

func benchCases(solvers []string) []benchCase {
	var cases []benchCase
	for _, name := range solvers {
		if name != "psor" {
			cases = append(cases, benchCase{solver: name})
			continue
		}
		for _, o := range []solver.SweepOrder{solver.Sequential, solver.Random, solver.Colored} {
			cases = append(cases, benchCase{solver: name, order: o})
		}
	}
	return cases
}

// benchScenario runs an ensemble of seeded runs for every solver and PSOR
// sweep order and reports throughput and solve quality.
func benchScenario(cmd *cobra.Command, args []string) error {
	base, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}
	registry := experiment.NewRegistry()

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("benchmarking %s (%d runs x %d steps)\n\n", base.Scenario, benchRuns, base.Steps)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOLVER\tORDER\tSTEPS\tTIME\tSTEPS/SEC\tMEAN ITERS\tMAX VIOL\tCONVERGED")

	for _, bc := range benchCases(registry.ListSolvers()) {
		cfg := base.Clone()
		cfg.Solver = bc.solver
		cfg.Solve.SweepOrder = bc.order
		order := "-"
		if bc.solver == "psor" {
			order = bc.order.String()
		}

		ens := sim.NewEnsemble(func(idx int) (*sim.Simulator, error) {
			runCfg := cfg.Clone()
			runCfg.Seed = cfg.Seed + uint64(idx)
			exp := experiment.New(runCfg, registry)
			if err := exp.Setup(quietLogger(), registry.DefaultMetrics()); err != nil {
				return nil, err
			}
			return exp.Simulator(), nil
		}, benchRuns, 0)

		start := time.Now()
		results, err := ens.Run(ctx)
		elapsed := time.Since(start)
		if errors.Is(err, dynamo.ErrUnsupportedConstraint) {
			fmt.Fprintf(w, "%s\t%s\tunsupported\t\t\t\t\t\n", bc.solver, order)
			continue
		}
		if err != nil {
			return err
		}

		var total, converged int
		var iters, violation float64
		for _, res := range results {
			for _, rec := range res.Steps {
				total++
				iters += float64(rec.Iterations)
				violation = max(violation, rec.Violation)
				if rec.Converged {
					converged++
				}
			}
		}
		if total == 0 {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%v\t%.0f\t%.1f\t%.2e\t%.0f%%\n",
			bc.solver, order, total, elapsed.Round(time.Microsecond),
			float64(total)/elapsed.Seconds(), iters/float64(total), violation,
			100*float64(converged)/float64(total))
	}
	return w.Flush()
}

// printMatrix builds the scenario and dumps the KKT system of its first
// step together with the row coloring used by colored sweeps.
func printMatrix(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}
	sc, err := experiment.NewRegistry().GetScene(cfg)
	if err != nil {
		return err
	}
	d := sc.Descriptor
	free, err := d.FreeVelocities(sc.Velocities, sc.Forces, cfg.Dt)
	if err != nil {
		return err
	}
	kkt, rhs, err := d.KKT(free)
	if err != nil {
		return err
	}

	r, c := kkt.Dims()
	fmt.Printf("scenario: %s\n", sc.Name)
	fmt.Printf("dof: %d  rows: %d  kkt: %dx%d  nnz: %d\n", d.Dof(), d.ConstraintCount(), r, c, kkt.Len())

	colors := d.Coloring()
	sizes := make([]int, len(colors))
	for i, group := range colors {
		sizes[i] = len(group)
	}
	fmt.Printf("colors: %d %v\n\n", len(colors), sizes)

	if r > maxDenseMatrix {
		fmt.Printf("matrix larger than %d, not printed\n", maxDenseMatrix)
		return nil
	}
	fmt.Printf("K = %v\n\n", mat.Formatted(kkt, mat.Prefix("    "), mat.Squeeze()))
	fmt.Printf("rhs = %v\n", mat.Formatted(mat.NewVecDense(len(rhs), rhs).T(), mat.Prefix("      "), mat.Squeeze()))
	return nil
}

func watchScenario(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}
	exp := experiment.New(cfg, nil)
	if err := exp.Setup(quietLogger(), nil); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	sc := exp.Scene()
	title := fmt.Sprintf("%s / %s", cfg.Scenario, exp.Solver().Name())
	return viz.RunWatch(ctx, exp.Simulator(), title, sc.Velocities, sc.Forces)
}

// printMetrics runs the scenario with a fresh Prometheus registry and writes
// the gathered solver metrics in the text exposition format.
func printMetrics(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	collector := metrics.NewSolverCollector(reg)

	exp := experiment.New(cfg, nil)
	if err := exp.Setup(slog.Default(), nil, solver.WithRecorder(collector)); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	if _, err := exp.Run(ctx); err != nil {
		return err
	}
	return writeMetrics(os.Stdout, reg)
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func parseGrid(items []string) ([]string, [][]float64, error) {
	names := make([]string, 0, len(items))
	ranges := make([][]float64, 0, len(items))
	for _, item := range items {
		name, list, ok := strings.Cut(item, "=")
		if !ok || name == "" {
			return nil, nil, fmt.Errorf("grid %q: want name=v1,v2", item)
		}
		var values []float64
		for _, field := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("grid %s: %w", name, err)
			}
			values = append(values, v)
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}
	return names, ranges, nil
}

func tuneScenario(cmd *cobra.Command, args []string) error {
	base, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}
	names, ranges, err := parseGrid(grid)
	if err != nil {
		return err
	}
	search, err := optim.NewGridSearch(names, ranges, objective)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	trials, err := search.Search(ctx, base, experiment.NewRegistry())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", strings.ToUpper(strings.Join(names, "\t")), strings.ToUpper(objective))
	for _, tr := range trials {
		cols := make([]string, len(names))
		for i, name := range names {
			cols[i] = strconv.FormatFloat(tr.Params[name], 'g', -1, 64)
		}
		score := fmt.Sprintf("%.4g", tr.Score)
		if tr.Err != nil {
			score = "failed: " + tr.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\n", strings.Join(cols, "\t"), score)
	}
	return w.Flush()
}
