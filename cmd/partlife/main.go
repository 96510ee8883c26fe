package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/san-kum/partlife/internal/config"
	"github.com/san-kum/partlife/internal/viz"
	"github.com/spf13/cobra"
)

var (
	dataDir   string
	logFormat string
	logLevel  string

	// scenario flags, shared by every command that builds one
	preset     string
	configFile string
	backend    string
	steps      int
	particles  uint32
	numTypes   uint32
	seed       int64
	spawn      string
	rules      string
	boundary   string
	cellSize   float32
	budget     uint32

	// command specific
	series        string
	withParticles bool
	outFile       string
	svgFile       string
	benchBackends []string
	stepsPerFrame int
	cellValues    []float64
	budgetValues  []float64
	tuneWorkers   int
	ensWorkers    int
	ensRuns       int
	mcTrials      int
	mcPerturb     float64
	sweepParam    string
	sweepMin      float64
	sweepMax      float64
	sweepPoints   int
	transient     int
	record        int
	lyapunovD0    float64
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "partlife",
		Short: "particle life simulation lab",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog, err := logToFile()
			if err != nil {
				return err
			}
			defer closeLog()
			app := viz.NewApp(cmd.Context())
			defer app.Close()
			return viz.Run(app)
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".partlife", "data directory")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json|text)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a simulation and store the result",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addScenarioFlags(runCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a sample series of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&series, "series", "kinetic_energy", "series to plot")
	plotCmd.Flags().StringVar(&svgFile, "svg", "", "also write the series as svg (- for stdout)")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a stored run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().BoolVar(&withParticles, "particles", false, "include the final particle snapshot")
	exportCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&svgFile, "svg", "", "write the final particle snapshot as svg instead (- for stdout)")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "time backends on the same scenario",
		Args:  cobra.NoArgs,
		RunE:  benchBackendsCmd,
	}
	addScenarioFlags(benchCmd)
	benchCmd.Flags().StringSliceVar(&benchBackends, "backends", []string{"cpu", "gpu", "gpu-half"}, "backends to time")

	compareCmd := &cobra.Command{
		Use:   "compare",
		Short: "compare cpu brute force, cpu spatial hash and gpu on one input",
		Args:  cobra.NoArgs,
		RunE:  compareBackends,
	}
	addScenarioFlags(compareCmd)

	presetsCmd := &cobra.Command{
		Use:   "presets [name]",
		Short: "list presets, or print one as yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showPresets,
	}

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run a simulation in the terminal",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	addScenarioFlags(liveCmd)
	liveCmd.Flags().IntVar(&stepsPerFrame, "steps-per-frame", 1, "simulation steps per frame")

	binsCmd := &cobra.Command{
		Use:   "bins",
		Short: "spatial bin occupancy after a run",
		Args:  cobra.NoArgs,
		RunE:  binStats,
	}
	addScenarioFlags(binsCmd)

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search cell size and neighbour budget for speed",
		Args:  cobra.NoArgs,
		RunE:  tuneGrid,
	}
	addScenarioFlags(tuneCmd)
	tuneCmd.Flags().Float64SliceVar(&cellValues, "cells", []float64{48, 64, 96}, "cell sizes to try")
	tuneCmd.Flags().Float64SliceVar(&budgetValues, "budgets", []float64{0, 256, 1024}, "neighbour budgets to try")
	tuneCmd.Flags().IntVar(&tuneWorkers, "workers", 1, "parallel trials (timings are only comparable with 1)")

	ensembleCmd := &cobra.Command{
		Use:   "ensemble",
		Short: "run several seeds in parallel and aggregate metrics",
		Args:  cobra.NoArgs,
		RunE:  runEnsemble,
	}
	addScenarioFlags(ensembleCmd)
	ensembleCmd.Flags().IntVar(&ensRuns, "runs", 4, "number of seeds")
	ensembleCmd.Flags().IntVar(&ensWorkers, "workers", 2, "parallel runs")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "bifurcation diagram of kinetic energy over a parameter",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	addScenarioFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", "friction", "parameter to sweep")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0.05, "sweep start")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 0.6, "sweep end")
	sweepCmd.Flags().IntVar(&sweepPoints, "points", 12, "parameter values")
	sweepCmd.Flags().IntVar(&transient, "transient", 200, "settling steps per value")
	sweepCmd.Flags().IntVar(&record, "record", 100, "recorded steps per value")

	lyapunovCmd := &cobra.Command{
		Use:   "lyapunov",
		Short: "estimate the largest Lyapunov exponent",
		Args:  cobra.NoArgs,
		RunE:  runLyapunov,
	}
	addScenarioFlags(lyapunovCmd)
	lyapunovCmd.Flags().Float64Var(&lyapunovD0, "d0", 1e-3, "initial separation")

	scriptCmd := &cobra.Command{
		Use:   "script [scenario.yaml]",
		Short: "run a scripted sequence of simulations",
		Args:  cobra.ExactArgs(1),
		RunE:  runScript,
	}

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo",
		Short: "run randomly perturbed physics parameters and count stable runs",
		Args:  cobra.NoArgs,
		RunE:  runMonteCarlo,
	}
	addScenarioFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&mcTrials, "trials", 20, "number of trials")
	monteCarloCmd.Flags().Float64Var(&mcPerturb, "perturbation", 0.2, "relative parameter perturbation")

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, exportCmd, benchCmd, compareCmd, presetsCmd,
		liveCmd, binsCmd, tuneCmd, ensembleCmd, sweepCmd, lyapunovCmd, scriptCmd, monteCarloCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setupLogging() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(logFormat) {
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	case "text":
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	default:
		return fmt.Errorf("unknown log format: %s", logFormat)
	}
	return nil
}

// logToFile moves logging into the data directory while a full-screen
// view owns the terminal.
func logToFile() (func(), error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dataDir, "live.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(f, nil)))
	return func() {
		slog.SetDefault(prev)
		f.Close()
	}, nil
}

func addScenarioFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&preset, "preset", "", "start from a preset")
	f.StringVar(&configFile, "config", "", "config file path (yaml), applied over the preset")
	f.StringVar(&backend, "backend", config.DefaultBackend, "backend (cpu|gpu|gpu-half|opengl|auto)")
	f.IntVar(&steps, "steps", config.DefaultSteps, "steps to run")
	f.Uint32Var(&particles, "particles", 0, "number of particles")
	f.Uint32Var(&numTypes, "types", 0, "number of particle types")
	f.Int64Var(&seed, "seed", config.DefaultSeed, "random seed")
	f.StringVar(&spawn, "spawn", config.DefaultSpawn, "spawn pattern")
	f.StringVar(&rules, "rules", config.DefaultRules, "rule generator")
	f.StringVar(&boundary, "boundary", "", "boundary mode (repel|wrap|mirror_wrap|infinite_wrap)")
	f.Float32Var(&cellSize, "cell-size", 0, "spatial hash cell size")
	f.Uint32Var(&budget, "budget", 0, "neighbour budget per particle (0 = unlimited)")
}

// resolveConfig layers defaults, preset, config file and changed flags in
// that order.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.LoadOver(configFile, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	f := cmd.Flags()
	if f.Changed("backend") {
		cfg.Run.Backend = backend
	}
	if f.Changed("steps") {
		cfg.Run.Steps = steps
	}
	if f.Changed("particles") {
		cfg.Simulation.NumParticles = particles
	}
	if f.Changed("types") {
		cfg.Simulation.NumTypes = numTypes
		cfg.Rules.Matrix, cfg.Rules.MinRadii, cfg.Rules.MaxRadii = nil, nil, nil
	}
	if f.Changed("seed") {
		cfg.Run.Seed = seed
	}
	if f.Changed("spawn") {
		cfg.Spawn.Pattern = spawn
	}
	if f.Changed("rules") {
		cfg.Rules.Type = rules
		cfg.Rules.Matrix = nil
	}
	if f.Changed("boundary") {
		if err := cfg.Simulation.Boundary.UnmarshalText([]byte(boundary)); err != nil {
			return nil, err
		}
	}
	if f.Changed("cell-size") {
		cfg.Simulation.CellSize = cellSize
	}
	if f.Changed("budget") {
		cfg.Simulation.NeighborBudget = budget
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
