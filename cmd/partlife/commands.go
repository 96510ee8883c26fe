package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/partlife/internal/analysis"
	"github.com/san-kum/partlife/internal/automation"
	"github.com/san-kum/partlife/internal/compute"
	"github.com/san-kum/partlife/internal/config"
	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/experiment"
	"github.com/san-kum/partlife/internal/export"
	"github.com/san-kum/partlife/internal/optim"
	"github.com/san-kum/partlife/internal/sim"
	"github.com/san-kum/partlife/internal/storage"
	"github.com/san-kum/partlife/internal/viz"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	exp := experiment.New(cfg)
	if err := exp.Setup(ctx, cfg.Run.Seed); err != nil {
		return err
	}
	defer exp.Close()

	name := preset
	if name == "" {
		name = cfg.Rules.Type
	}
	fmt.Printf("running %s: %d particles, %d types on %s...\n",
		name, cfg.Simulation.NumParticles, cfg.Simulation.NumTypes, exp.GetRunner().Backend().Name())

	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	runID, err := st.Save(name, cfg, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", result.Elapsed.Round(time.Millisecond))
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d (%.3f ms/step)\n", result.StepsTaken, result.Perf.MillisPerStep())
	if result.BudgetHits > 0 {
		fmt.Printf("budget hits: %d\n", result.BudgetHits)
	}
	printMetrics(result.Metrics)
	return nil
}

func printMetrics(m map[string]float64) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, m[name])
	}
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBACKEND\tPARTICLES\tTYPES\tSTEPS\tMS/STEP\tTIME")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.3f\t%s\n",
			r.ID, r.Backend, r.Particles, r.Types, r.Steps, r.MillisPerStep,
			r.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadSamples(args[0])
	if err != nil {
		return err
	}
	if len(samples) < 2 {
		return fmt.Errorf("run %s has %d samples, need at least 2", meta.ID, len(samples))
	}

	result := &sim.Result{Samples: samples}
	data, err := result.Series(series)
	if err != nil {
		return fmt.Errorf("%w (available: %v)", err, sim.SeriesNames())
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("backend: %s, %d particles\n", meta.Backend, meta.Particles)
	fmt.Printf("samples: %d\n\n", len(samples))
	fmt.Println(asciigraph.Plot(data,
		asciigraph.Height(12),
		asciigraph.Width(70),
		asciigraph.Caption(series)))

	every := 1
	if len(samples) > 1 {
		every = samples[1].Step - samples[0].Step
	}
	if period, ok := analysis.DominantPeriod(data, every); ok {
		fmt.Printf("\ndominant period: %.1f steps\n", period)
	}
	if svgFile != "" {
		return export.WriteFile(svgFile, export.SeriesToSVG(data, 800, 300, string(viz.CurrentTheme.Secondary)), os.Stdout)
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if svgFile != "" {
		return exportSVG(st, args[0])
	}
	data, err := st.Export(args[0], withParticles)
	if err != nil {
		return err
	}
	if outFile == "" {
		return storage.ExportJSONStdout(data)
	}
	if err := storage.ExportJSON(outFile, data); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "exported %s to %s\n", args[0], outFile)
	return nil
}

// exportSVG draws the run's final particle snapshot.
func exportSVG(st *storage.Store, runID string) error {
	cfg, err := st.LoadConfig(runID)
	if err != nil {
		return err
	}
	ps, err := st.LoadParticles(runID)
	if err != nil {
		return err
	}
	palette := make([]string, len(viz.CurrentTheme.Palette))
	for i, c := range viz.CurrentTheme.Palette {
		palette[i] = string(c)
	}
	scale := 1.0
	if w := float64(cfg.Simulation.World.X); w > 1600 {
		scale = 1600 / w
	}
	return export.WriteFile(svgFile, export.ParticlesToSVG(ps, cfg.Simulation.World, palette, scale, 1.5), os.Stdout)
}

func showPresets(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		cfg := config.GetPreset(args[0])
		if cfg == nil {
			return fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tPARTICLES\tTYPES\tRULES\tSPAWN\tBOUNDARY\tBACKEND")
	for _, name := range config.ListPresets() {
		c := config.Presets[name]
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\t%s\n", name,
			c.Simulation.NumParticles, c.Simulation.NumTypes, c.Rules.Type,
			c.Spawn.Pattern, c.Simulation.Boundary, c.Run.Backend)
	}
	return w.Flush()
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	exp := experiment.New(cfg)
	if err := exp.Setup(cmd.Context(), cfg.Run.Seed); err != nil {
		return err
	}
	defer exp.Close()

	title := preset
	if title == "" {
		title = cfg.Rules.Type
	}
	closeLog, err := logToFile()
	if err != nil {
		return err
	}
	defer closeLog()

	m := viz.NewExperimentModel(cmd.Context(), exp, cfg, title)
	m.SetStepsPerFrame(stepsPerFrame)
	return viz.Run(m)
}

// timeBackend runs the scenario for the configured steps on one backend.
func timeBackend(ctx context.Context, sc *experiment.Scenario, cfg dynamo.Config, name string, run sim.Config) (*sim.Result, error) {
	b, err := sc.Backend(name, cfg, nil)
	if err != nil {
		return nil, err
	}
	r := sim.New(b, cfg, sc.Radii)
	defer r.Close()
	return r.Run(ctx, run)
}

func benchConfig(cfg *config.Config) sim.Config {
	return sim.Config{Steps: cfg.Run.Steps, Dt: cfg.Run.Dt, SampleEvery: cfg.Run.Steps}
}

func benchBackendsCmd(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	sc, err := experiment.BuildScenario(cfg, cfg.Run.Seed)
	if err != nil {
		return err
	}

	fmt.Printf("benchmarking %d particles, %d types, %d steps\n\n",
		sc.Config.NumParticles, sc.Config.NumTypes, cfg.Run.Steps)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BACKEND\tMS/STEP\tMIN\tMAX\tSTEPS/S\tBUDGET HITS")
	for _, name := range benchBackends {
		res, err := timeBackend(cmd.Context(), sc, sc.Config, name, benchConfig(cfg))
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", name, err)
			continue
		}
		p := res.Perf
		rate := 0.0
		if s := res.Elapsed.Seconds(); s > 0 {
			rate = float64(res.StepsTaken) / s
		}
		fmt.Fprintf(w, "%s\t%.3f\t%.3f\t%.3f\t%.0f\t%d\n", res.Backend,
			p.MillisPerStep(), float64(p.MinStepDuration.Microseconds())/1000, float64(p.MaxStepDuration.Microseconds())/1000,
			rate, res.BudgetHits)
		if len(p.PhaseAvg) > 0 {
			printPhases(w, p.PhaseAvg)
		}
	}
	return w.Flush()
}

func printPhases(w *tabwriter.Writer, phases map[string]time.Duration) {
	names := make([]string, 0, len(phases))
	for n := range phases {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "  %s\t%.3f\n", n, float64(phases[n].Microseconds())/1000)
	}
}

func compareBackends(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	sc, err := experiment.BuildScenario(cfg, cfg.Run.Seed)
	if err != nil {
		return err
	}

	brute := sc.Config
	brute.UseSpatialHash = false
	hashed := sc.Config
	hashed.UseSpatialHash = true

	variants := []struct {
		label, backend string
		cfg            dynamo.Config
	}{
		{"cpu brute", "cpu", brute},
		{"cpu hash", "cpu", hashed},
		{"gpu", "gpu", hashed},
	}

	run := benchConfig(cfg)
	var ref []dynamo.Particle
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tMS/STEP\tKINETIC\tSEPARATION")
	for _, v := range variants {
		res, err := timeBackend(cmd.Context(), sc, v.cfg, v.backend, run)
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", v.label, err)
			continue
		}
		sep := "-"
		if ref == nil {
			ref = res.Final
		} else if len(ref) == len(res.Final) {
			sep = fmt.Sprintf("%.4g", analysis.Separation(ref, res.Final, sc.Config))
		}
		fmt.Fprintf(w, "%s\t%.3f\t%.4g\t%s\n", v.label, res.Perf.MillisPerStep(), res.Metrics["kinetic_energy"], sep)
	}
	return w.Flush()
}

func binStats(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	exp := experiment.New(cfg)
	if err := exp.Setup(ctx, cfg.Run.Seed); err != nil {
		return err
	}
	defer exp.Close()
	if _, err := exp.Run(ctx); err != nil {
		return err
	}

	r := exp.GetRunner()
	counts, err := r.Backend().BinCounts(ctx)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		return fmt.Errorf("backend %s exposes no bin counts (spatial hash disabled?)", r.Backend().Name())
	}
	s := analysis.ComputeBinStats(counts)

	fmt.Printf("cell size: %.1f\n", r.Config().CellSize)
	fmt.Printf("bins: %d (%d occupied)\n", s.Bins, s.Occupied)
	fmt.Printf("particles: %d\n", s.Total)
	fmt.Printf("max: %d  mean: %.2f  stddev: %.2f\n", s.Max, s.Mean, s.StdDev)
	fmt.Printf("p50: %.0f  p95: %.0f  imbalance: %.2f\n\n", s.P50, s.P95, s.Imbalance)

	width := max(s.Max/40, 1)
	hist := analysis.Histogram(counts, width)
	data := make([]float64, len(hist))
	for i, h := range hist {
		data[i] = float64(h)
	}
	if len(data) > 1 {
		fmt.Println(asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(60),
			asciigraph.Caption(fmt.Sprintf("bins per occupancy bucket (width %d)", width))))
	}
	return nil
}

func tuneGrid(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	gs := optim.NewGridSearch([]string{"cell_size", "neighbor_budget"}, [][]float64{cellValues, budgetValues})
	gs.SetWorkers(tuneWorkers)
	fmt.Printf("searching %d configurations...\n\n", len(gs.Points()))

	best, score, trials, err := gs.Search(ctx, optim.ConfigBuilder(ctx, cfg, cfg.Run.Seed), optim.ObjectiveMillisPerStep)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CELL\tBUDGET\tMS/STEP")
	for _, t := range trials {
		if t.Err != nil {
			fmt.Fprintf(w, "%.0f\t%.0f\terror: %v\n", t.Params["cell_size"], t.Params["neighbor_budget"], t.Err)
			continue
		}
		fmt.Fprintf(w, "%.0f\t%.0f\t%.3f\n", t.Params["cell_size"], t.Params["neighbor_budget"], t.Score)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nbest: cell_size=%.0f neighbor_budget=%.0f (%.3f ms/step)\n",
		best["cell_size"], best["neighbor_budget"], score)
	return nil
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	ens := sim.NewEnsemble(experiment.Factory(cfg), ensRuns, cfg.Run.Seed)
	ens.SetWorkers(ensWorkers)

	exp := experiment.New(cfg)
	results, err := ens.Run(cmd.Context(), exp.RunConfig())
	if err != nil {
		return err
	}

	fmt.Printf("%d runs, seeds %d..%d\n\n", len(results), cfg.Run.Seed, cfg.Run.Seed+int64(ensRuns)-1)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tMEAN\tSTDDEV\tMIN\tMAX")
	for _, s := range sim.Aggregate(results) {
		fmt.Fprintf(w, "%s\t%.6g\t%.3g\t%.6g\t%.6g\n", s.Metric, s.Mean, s.StdDev, s.Min, s.Max)
	}
	return w.Flush()
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	sc, err := experiment.BuildScenario(cfg, cfg.Run.Seed)
	if err != nil {
		return err
	}
	setup := func(c dynamo.Config) (compute.Backend, error) {
		return sc.Backend(cfg.Run.Backend, c, nil)
	}

	fmt.Printf("sweeping %s over [%g, %g]...\n\n", sweepParam, sweepMin, sweepMax)
	points, err := analysis.BifurcationDiagram(cmd.Context(), setup, sc.Config, analysis.BifurcationOptions{
		Param:     sweepParam,
		Min:       sweepMin,
		Max:       sweepMax,
		Points:    sweepPoints,
		Dt:        cfg.Run.Dt,
		Transient: transient,
		Record:    record,
	})
	if err != nil {
		return err
	}
	fmt.Println(analysis.BifurcationToASCII(points, 70, 20))
	return nil
}

func runLyapunov(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	sc, err := experiment.BuildScenario(cfg, cfg.Run.Seed)
	if err != nil {
		return err
	}
	ref, err := sc.Backend(cfg.Run.Backend, sc.Config, nil)
	if err != nil {
		return err
	}
	defer ref.Cleanup()
	pert, err := sc.Backend(cfg.Run.Backend, sc.Config, analysis.Perturb(sc.Particles, 0, float32(lyapunovD0), sc.Config))
	if err != nil {
		return err
	}
	defer pert.Cleanup()

	lambda, err := analysis.LyapunovExponent(cmd.Context(), ref, pert, sc.Config, cfg.Run.Steps, cfg.Run.Dt, lyapunovD0)
	if err != nil {
		return err
	}
	fmt.Printf("largest lyapunov exponent: %.6f per step\n", lambda)
	if lambda > 0 {
		fmt.Println("trajectories diverge (chaotic)")
	} else {
		fmt.Println("trajectories converge (stable)")
	}
	return nil
}

func runScript(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	fmt.Printf("scenario %s: %d steps\n", scenario.Name, len(scenario.Steps))
	results, err := automation.RunScenario(cmd.Context(), scenario, st)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tRUN ID\tSTEPS\tMS/STEP\tKINETIC")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.3f\t%.4g\n", r.Name, r.RunID, r.Result.StepsTaken,
			r.Result.Perf.MillisPerStep(), r.Result.Metrics["kinetic_energy"])
	}
	if ferr := w.Flush(); err == nil {
		err = ferr
	}
	return err
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	results, err := automation.RunMonteCarlo(cmd.Context(), &automation.MonteCarloConfig{
		Base:         cfg,
		Perturbation: mcPerturb,
		NumTrials:    mcTrials,
		Seed:         cfg.Run.Seed,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRIAL\tFRICTION\tFORCE\tREPEL\tMAX VEL\tSTABLE\tKINETIC")
	for _, r := range results {
		fmt.Fprintf(w, "%d\t%.3f\t%.3f\t%.3f\t%.1f\t%v\t%.4g\n", r.TrialID,
			r.Params["friction"], r.Params["force_factor"], r.Params["repel_strength"], r.Params["max_velocity"],
			r.Stable, r.KineticEnergy)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	stable, unstable := automation.MonteCarloStats(results)
	fmt.Printf("\nstable: %d  unstable: %d\n", stable, unstable)
	return nil
}
