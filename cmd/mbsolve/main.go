package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/mbsolve/internal/config"
	"github.com/san-kum/mbsolve/internal/experiment"
	"github.com/san-kum/mbsolve/internal/solver"
	"github.com/san-kum/mbsolve/internal/storage"
	"github.com/spf13/cobra"
)

var (
	dataDir    string
	verbose    bool
	steps      int
	dt         float64
	gravity    float64
	solverName string
	iterations int
	tolerance  float64
	omega      float64
	order      string
	warmStart  bool
	seed       uint64
	workers    int
	params     map[string]string
	configFile string
	preset     string
	outPath    string
	configOut  string
	grid       []string
	objective  string
)

// main registers the mbsolve commands and exits with status 1 if the
// selected command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:           "mbsolve",
		Short:         "multibody constraint solver lab",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".mbsolve", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [scenario]",
		Short: "run a scenario and save the step log",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	addSceneFlags(runCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot residual, iterations and energy of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata and steps to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&outPath, "out", "o", "-", "output file, - for stdout")

	presetsCmd := &cobra.Command{
		Use:   "presets [scenario]",
		Short: "list available presets for a scenario",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	benchCmd := &cobra.Command{
		Use:   "bench [scenario]",
		Short: "time every solver and sweep order on a scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  benchScenario,
	}
	addSceneFlags(benchCmd)

	matrixCmd := &cobra.Command{
		Use:   "matrix [scenario]",
		Short: "print the KKT system of the first step",
		Args:  cobra.ExactArgs(1),
		RunE:  printMatrix,
	}
	addSceneFlags(matrixCmd)

	watchCmd := &cobra.Command{
		Use:   "watch [scenario]",
		Short: "step a scenario in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  watchScenario,
	}
	addSceneFlags(watchCmd)

	metricsCmd := &cobra.Command{
		Use:   "metrics [scenario]",
		Short: "run a scenario and print solver metrics in Prometheus text format",
		Args:  cobra.ExactArgs(1),
		RunE:  printMetrics,
	}
	addSceneFlags(metricsCmd)

	configCmd := &cobra.Command{
		Use:   "config [scenario]",
		Short: "write the resolved configuration to a yaml file",
		Args:  cobra.ExactArgs(1),
		RunE:  writeConfig,
	}
	addSceneFlags(configCmd)
	configCmd.Flags().StringVarP(&configOut, "out", "o", "mbsolve.yaml", "output file")

	tuneCmd := &cobra.Command{
		Use:   "tune [scenario]",
		Short: "grid search solver settings or scenario params",
		Args:  cobra.ExactArgs(1),
		RunE:  tuneScenario,
	}
	addSceneFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&grid, "grid", []string{"omega=0.6,0.8,1.0,1.2,1.4"}, "name=v1,v2,... (repeatable)")
	tuneCmd.Flags().StringVar(&objective, "metric", "mean_iterations", "run metric to minimize")

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, exportCmd, presetsCmd, benchCmd, matrixCmd, watchCmd, metricsCmd, configCmd, tuneCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addSceneFlags(cmd *cobra.Command) {
	def := config.DefaultConfig()
	f := cmd.Flags()
	f.IntVar(&steps, "steps", def.Steps, "number of steps")
	f.Float64Var(&dt, "dt", def.Dt, "timestep")
	f.Float64Var(&gravity, "gravity", def.Gravity, "gravity magnitude")
	f.StringVar(&solverName, "solver", def.Solver, "solver: psor, apgd or direct")
	f.IntVar(&iterations, "iterations", def.Solve.MaxIterations, "max solver iterations per step")
	f.Float64Var(&tolerance, "tol", def.Solve.Tolerance, "convergence tolerance")
	f.Float64Var(&omega, "omega", def.Solve.Omega, "PSOR relaxation factor")
	f.StringVar(&order, "order", def.Solve.SweepOrder.String(), "sweep order: sequential, random or colored")
	f.BoolVar(&warmStart, "warm", def.Solve.WarmStart, "warm start from the previous multipliers")
	f.Uint64Var(&seed, "seed", def.Seed, "random seed")
	f.IntVar(&workers, "workers", def.Solve.Workers, "colored sweep workers, 0 for GOMAXPROCS")
	f.StringToStringVar(&params, "param", nil, "scenario parameter, e.g. --param boxes=8")
	f.StringVar(&configFile, "config", "", "config file path (yaml)")
	f.StringVar(&preset, "preset", "", "use preset configuration")
}

// resolveConfig layers the preset, the config file and the changed flags,
// in that order, over the defaults.
func resolveConfig(cmd *cobra.Command, scenario string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	cfg.Scenario = scenario

	if preset != "" {
		p := config.GetPreset(scenario, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(scenario))
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if loaded.Scenario != scenario {
			return nil, fmt.Errorf("config %s is for scenario %s, not %s", configFile, loaded.Scenario, scenario)
		}
		cfg = loaded
	}

	f := cmd.Flags()
	if f.Changed("steps") {
		cfg.Steps = steps
	}
	if f.Changed("dt") {
		cfg.Dt = dt
	}
	if f.Changed("gravity") {
		cfg.Gravity = gravity
	}
	if f.Changed("solver") {
		cfg.Solver = solverName
	}
	if f.Changed("iterations") {
		cfg.Solve.MaxIterations = iterations
	}
	if f.Changed("tol") {
		cfg.Solve.Tolerance = tolerance
	}
	if f.Changed("omega") {
		cfg.Solve.Omega = omega
	}
	if f.Changed("order") {
		o, err := solver.ParseSweepOrder(order)
		if err != nil {
			return nil, err
		}
		cfg.Solve.SweepOrder = o
	}
	if f.Changed("warm") {
		cfg.Solve.WarmStart = warmStart
	}
	if f.Changed("seed") {
		cfg.Seed = seed
	}
	if f.Changed("workers") {
		cfg.Solve.Workers = workers
	}
	for k, v := range params {
		val, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", k, err)
		}
		if cfg.Params == nil {
			cfg.Params = make(map[string]float64)
		}
		cfg.Params[k] = val
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	registry := experiment.NewRegistry()
	exp := experiment.New(cfg, registry)
	if err := exp.Setup(slog.Default(), registry.DefaultMetrics()); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("running %s with %s...\n", cfg.Scenario, cfg.Solver)
	start := time.Now()
	result, err := exp.Run(ctx)
	if err != nil && result == nil {
		return err
	}
	elapsed := time.Since(start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stopped early: %v\n", err)
	}

	d := exp.Scene().Descriptor
	runID, err := st.Save(storage.RunMetadata{
		Scenario:   cfg.Scenario,
		Preset:     preset,
		Solver:     exp.Solver().Name(),
		Seed:       cfg.Seed,
		Dt:         cfg.Dt,
		SweepOrder: cfg.Solve.SweepOrder.String(),
		Omega:      cfg.Solve.Omega,
		Dof:        d.Dof(),
		Rows:       d.ConstraintCount(),
	}, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d (dof %d, rows %d)\n", result.StepsTaken, d.Dof(), d.ConstraintCount())
	fmt.Printf("energy gain: %.6f\n", result.EnergyGain)
	fmt.Println("\nmetrics:")
	for _, name := range sortedNames(result.Metrics) {
		fmt.Printf("  %s: %.6g\n", name, result.Metrics[name])
	}
	for _, e := range result.Errors {
		fmt.Printf("error: %v\n", e)
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENARIO\tSOLVER\tORDER\tTIME\tSTEPS\tDT\tDOF\tROWS")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%.4fs\t%d\t%d\n",
			run.ID,
			run.Scenario,
			run.Solver,
			run.SweepOrder,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Steps,
			run.Dt,
			run.Dof,
			run.Rows,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	records, err := st.LoadSteps(runID)
	if err != nil {
		return err
	}
	if len(records) < 2 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scenario: %s (%s, %s)\n", meta.Scenario, meta.Solver, meta.SweepOrder)
	fmt.Printf("samples: %d\n\n", len(records))

	residual := make([]float64, len(records))
	iters := make([]float64, len(records))
	energy := make([]float64, len(records))
	for i, rec := range records {
		residual[i] = math.Log10(math.Max(rec.Residual, 1e-16))
		iters[i] = float64(rec.Iterations)
		energy[i] = rec.Energy
	}

	for _, series := range []struct {
		data    []float64
		caption string
	}{
		{residual, "log10 residual"},
		{iters, "iterations"},
		{energy, "kinetic energy"},
	} {
		graph := asciigraph.Plot(series.data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(series.caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if err := st.ExportJSON(args[0], outPath); err != nil {
		return err
	}
	if outPath != "" && outPath != "-" {
		fmt.Printf("exported %s to %s\n", args[0], outPath)
	}
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	scenarios := experiment.NewRegistry().ListScenes()
	if len(args) == 1 {
		scenarios = args[:1]
	}
	for _, s := range scenarios {
		presets := config.ListPresets(s)
		if len(presets) == 0 {
			fmt.Printf("no presets for scenario: %s\n", s)
			continue
		}
		fmt.Printf("presets for %s:\n", s)
		for _, p := range presets {
			fmt.Printf("  %s\n", p)
		}
	}
	return nil
}

func writeConfig(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}
	if err := config.Save(configOut, cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", configOut)
	return nil
}
