package main

import (
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/phytosim/internal/analysis"
	"github.com/san-kum/phytosim/internal/automation"
	"github.com/san-kum/phytosim/internal/config"
	"github.com/san-kum/phytosim/internal/control"
	"github.com/san-kum/phytosim/internal/experiment"
	"github.com/san-kum/phytosim/internal/export"
	"github.com/san-kum/phytosim/internal/models"
	"github.com/san-kum/phytosim/internal/optim"
	"github.com/san-kum/phytosim/internal/server"
	"github.com/san-kum/phytosim/internal/sim"
	"github.com/san-kum/phytosim/internal/viz"
)

var (
	configFile string
	preset     string
	integrator string
	outFile    string
	// model parameters
	muMax float64
	vMax  float64
	km    float64
	qMin  float64
	rs    float64
	// regime settings
	dilution float64
	xStar    float64
	period   float64
	df       float64
	// initial state
	r0 float64
	q0 float64
	x0 float64
	// integration
	tFinal    float64
	samples   int
	tolerance float64
	// plot
	columns []string
	phase   string
	width   int
	height  int
	// serve
	addr    string
	timeout time.Duration
	// sweep
	dMin         float64
	dMax         float64
	steps        int
	sweepTFinal  float64
	sweepSamples int
	transient    float64
	// monte carlo
	trials       int
	perturbation float64
	seed         int64
	// optimize
	grid     []string
	metric   string
	maximize bool
	// analysis
	after     float64
	lyapunov  bool
	tolPeriod float64
)

// main registers the phytosim commands and exits with status 1 when the
// selected command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:           "phytosim",
		Short:         "phytoplankton culture simulator (Droop model)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := &cobra.Command{
		Use:   "run [regime]",
		Short: "run a simulation and print its summary",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().StringVarP(&outFile, "out", "o", "", "write the trajectory to a .csv or .json file")

	plotCmd := &cobra.Command{
		Use:   "plot [regime]",
		Short: "simulate and plot in the terminal or to a PNG/SVG file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  plotSimulation,
	}
	addConfigFlags(plotCmd)
	plotCmd.Flags().StringSliceVar(&columns, "columns", nil, "columns to plot (t, R, Q, X, log10X, rho, mu, mass, dilution)")
	plotCmd.Flags().StringVarP(&outFile, "out", "o", "", "write a .png or .svg figure instead of terminal graphs")
	plotCmd.Flags().StringVar(&phase, "phase", "", "phase portrait as x:y, e.g. R:X")
	plotCmd.Flags().IntVar(&width, "width", viz.DefaultWidth, "terminal plot width")
	plotCmd.Flags().IntVar(&height, "height", viz.DefaultHeight, "terminal plot height")

	exploreCmd := &cobra.Command{
		Use:   "explore",
		Short: "interactive parameter explorer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return viz.RunExplorer(experiment.Simulate)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "serve simulations over HTTP",
		RunE:  serve,
	}
	serveCmd.Flags().StringVar(&addr, "addr", server.DefaultAddr, "listen address")
	serveCmd.Flags().DurationVar(&timeout, "timeout", server.DefaultTimeout, "per-request simulation timeout")

	optimizeCmd := &cobra.Command{
		Use:   "optimize [regime]",
		Short: "grid search over settings for the best metric or final value",
		Args:  cobra.MaximumNArgs(1),
		RunE:  optimize,
	}
	addConfigFlags(optimizeCmd)
	optimizeCmd.Flags().StringArrayVar(&grid, "grid", nil, "setting range as name=start:stop:n (repeatable)")
	optimizeCmd.Flags().StringVar(&metric, "metric", "X", "run metric or trajectory column to optimize")
	optimizeCmd.Flags().BoolVar(&maximize, "maximize", false, "maximize instead of minimize")
	_ = optimizeCmd.MarkFlagRequired("grid")

	presetsCmd := &cobra.Command{
		Use:   "presets [regime]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	integratorsCmd := &cobra.Command{
		Use:   "integrators",
		Short: "list available integrators",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range experiment.NewRegistry().ListIntegrators() {
				fmt.Println(name)
			}
		},
	}

	equilibriumCmd := &cobra.Command{
		Use:   "equilibrium",
		Short: "closed-form chemostat equilibrium and its stability",
		RunE:  equilibrium,
	}
	addParamFlags(equilibriumCmd)
	equilibriumCmd.Flags().Float64Var(&dilution, "d", config.DefaultD, "dilution rate")
	equilibriumCmd.Flags().BoolVar(&lyapunov, "lyapunov", false, "also estimate the largest Lyapunov exponent from the initial state")
	equilibriumCmd.Flags().Float64Var(&r0, "r0", 1, "initial free resource (for --lyapunov)")
	equilibriumCmd.Flags().Float64Var(&q0, "q0", 1, "initial quota (for --lyapunov)")
	equilibriumCmd.Flags().Float64Var(&x0, "x0", 1, "initial density (for --lyapunov)")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "chemostat steady state across dilution rates",
		RunE:  sweep,
	}
	addParamFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&integrator, "integrator", config.DefaultIntegrator, "integrator")
	sweepCmd.Flags().Float64Var(&dMin, "d-min", 0.05, "smallest dilution rate")
	sweepCmd.Flags().Float64Var(&dMax, "d-max", 1.0, "largest dilution rate")
	sweepCmd.Flags().IntVar(&steps, "steps", 20, "number of dilution rates")
	sweepCmd.Flags().Float64Var(&sweepTFinal, "t-final", 200, "simulated time per rate")
	sweepCmd.Flags().IntVar(&sweepSamples, "samples", 201, "samples per run")
	sweepCmd.Flags().Float64Var(&transient, "transient", 100, "ignore samples before this time")
	sweepCmd.Flags().StringVarP(&outFile, "out", "o", "", "write a .png or .svg figure")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run the simulations listed in a YAML scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [regime]",
		Short: "repeat a simulation from perturbed initial states",
		Args:  cobra.MaximumNArgs(1),
		RunE:  monteCarlo,
	}
	addConfigFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&trials, "trials", 50, "number of trials")
	monteCarloCmd.Flags().Float64Var(&perturbation, "perturbation", 0.2, "relative perturbation of each initial component")
	monteCarloCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 picks one)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [file.csv]",
		Short: "analyze an exported trajectory",
		Args:  cobra.ExactArgs(1),
		RunE:  analyze,
	}
	analyzeCmd.Flags().Float64Var(&after, "after", 0, "ignore samples before this time")
	analyzeCmd.Flags().Float64Var(&tolPeriod, "tol", 1e-6, "periodic state tolerance")

	rootCmd.AddCommand(runCmd, plotCmd, exploreCmd, serveCmd, presetsCmd, integratorsCmd,
		equilibriumCmd, sweepCmd, optimizeCmd, scenarioCmd, monteCarloCmd, analyzeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg, experiment.NewRegistry())
	if err != nil {
		return err
	}

	fmt.Printf("running %s culture...\n", cfg.Regime)
	start := time.Now()
	tr, err := exp.Run(cmd.Context())
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("samples: %d  steps: %d  rejected: %d  evaluations: %d\n",
		tr.Len(), tr.Stats.Steps, tr.Stats.Rejected, tr.Stats.Evaluations)
	if tr.Stats.Segments > 1 {
		fmt.Printf("segments: %d\n", tr.Stats.Segments)
	}

	final := tr.Final()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nT\tR\tQ\tX\tMU\tMASS\tDILUTION")
	fmt.Fprintf(w, "%.4g\t%.6g\t%.6g\t%.6g\t%.4g\t%.6g\t%.4g\n",
		final.T, final.R, final.Q, final.X, final.Mu, final.Mass, final.Dilution)
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println("\nmetrics:")
	for _, name := range sortedKeys(tr.Metrics) {
		fmt.Printf("  %s: %.6g\n", name, tr.Metrics[name])
	}

	if err := printRegimeReport(exp.Request(), tr); err != nil {
		return err
	}

	if outFile != "" {
		info := export.RunInfo{Name: preset, Integrator: cfg.Integrator, Params: exp.Request().Params, Timestamp: start.UTC()}
		if err := export.WriteFile(outFile, info, tr); err != nil {
			return err
		}
		fmt.Printf("\nwrote %s\n", outFile)
	}
	return nil
}

// printRegimeReport compares the run with what theory predicts for its
// regime.
func printRegimeReport(req sim.Request, tr *sim.Trajectory) error {
	fmt.Println()
	switch p := req.Policy.(type) {
	case control.Chemostat:
		eq, err := analysis.ChemostatEquilibrium(req.Params, p.D)
		if err != nil {
			return err
		}
		final := tr.Final()
		fmt.Printf("equilibrium (d=%.4g): R*=%.6g Q*=%.6g X*=%.6g washout=%v\n", p.D, eq.R, eq.Q, eq.X, eq.Washout)
		fmt.Printf("distance from equilibrium: %.3g\n", final.State().Sub(eq.State()).Norm())
	case control.Turbidostat:
		band := analysis.TurbidostatBand(tr, p, req.TFinal/2)
		fmt.Printf("turbidostat band [%.4g, %.4g]: %.1f%% of %d late samples inside\n",
			p.Low*p.XStar, p.High*p.XStar, 100*band.Fraction, band.Samples)
	}
	if req.Transfer != nil && len(tr.Boundaries) >= 3 {
		report, err := analysis.PeriodicState(tr, 1e-6)
		if err != nil {
			return err
		}
		fmt.Printf("periodic state after %d transfers: residual %.3g, contraction %.3g, converged=%v\n",
			report.Cycles, report.Residual, report.Ratio, report.Converged)
	}
	return nil
}

func plotSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	tr, err := experiment.Simulate(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	if phase != "" {
		xName, yName, ok := strings.Cut(phase, ":")
		if !ok {
			return fmt.Errorf("phase axes must look like x:y, got %q", phase)
		}
		portrait, err := analysis.PhasePortrait(tr, xName, yName)
		if err != nil {
			return err
		}
		fmt.Println(analysis.PhasePortraitToASCII(portrait, width, height*2))
		return nil
	}

	if outFile != "" {
		p, err := viz.TrajectoryPlot(tr, fmt.Sprintf("%s culture", cfg.Regime), columns)
		if err != nil {
			return err
		}
		if err := viz.SavePlot(p, outFile); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", outFile)
		return nil
	}

	fmt.Printf("regime: %s\nsamples: %d\n\n", cfg.Regime, tr.Len())
	out, err := viz.ASCII(tr, columns, width, height)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.New(server.Options{Addr: addr, Timeout: timeout}).ListenAndServe(ctx)
}

func optimize(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}

	names := make([]string, len(grid))
	ranges := make([][]float64, len(grid))
	points := 1
	for i, g := range grid {
		names[i], ranges[i], err = optim.ParseRange(g)
		if err != nil {
			return err
		}
		points *= len(ranges[i])
	}

	fmt.Printf("searching %d grid points...\n", points)
	res, err := optim.NewGridSearch(names, ranges).Search(cmd.Context(), cfg, experiment.NewRegistry(),
		optim.Objective{Name: metric, Maximize: maximize})
	if err != nil {
		return err
	}

	fmt.Printf("best %s: %.6g (%d evaluated, %d failed)\n", metric, res.Value, res.Evaluated, res.Failed)
	for _, name := range names {
		fmt.Printf("  %s = %.6g\n", name, res.Params[name])
	}
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	regimes := control.Regimes()
	if len(args) == 1 {
		r, err := control.ParseRegime(args[0])
		if err != nil {
			return err
		}
		regimes = []control.Regime{r}
	}
	for _, r := range regimes {
		fmt.Printf("%s:\n", r)
		for _, name := range config.ListPresets(string(r)) {
			fmt.Printf("  %s\n", name)
		}
	}
	return nil
}

func equilibrium(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	applyParamFlags(cmd, cfg)
	p, err := cfg.ModelParams()
	if err != nil {
		return err
	}

	eq, st, err := analysis.ChemostatStability(p, dilution)
	if err != nil {
		return err
	}
	crit, err := analysis.CriticalDilution(p)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "D\tR*\tQ*\tX*\tWASHOUT\tD_CRIT")
	fmt.Fprintf(w, "%.4g\t%.6g\t%.6g\t%.6g\t%v\t%.6g\n", eq.D, eq.R, eq.Q, eq.X, eq.Washout, crit)
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println("\neigenvalues:")
	for _, v := range st.Eigenvalues {
		fmt.Printf("  %.6g %+.6gi\n", real(v), imag(v))
	}
	stability := "stable"
	if !st.Stable() {
		stability = "unstable"
	}
	fmt.Printf("%s (max real part %.4g)\n", stability, st.MaxReal)

	if lyapunov {
		chem, err := control.NewChemostat(dilution)
		if err != nil {
			return err
		}
		integ, err := experiment.NewRegistry().GetIntegrator("rk4")
		if err != nil {
			return err
		}
		sys := sim.ClosedLoop(models.NewDroop(p), chem)
		lambda, err := analysis.LyapunovExponent(sys, integ, []float64{r0, q0, x0}, 0.01, 200, 1e-8)
		if err != nil {
			return err
		}
		fmt.Printf("largest Lyapunov exponent: %.4g\n", lambda)
	}
	return nil
}

func sweep(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	applyParamFlags(cmd, cfg)
	if cmd.Flags().Changed("integrator") {
		cfg.Integrator = integrator
	}
	cfg.Regime = string(control.RegimeChemostat)
	cfg.TFinal, cfg.Samples = sweepTFinal, sweepSamples
	exp, err := experiment.New(cfg, experiment.NewRegistry())
	if err != nil {
		return err
	}

	req := exp.Request()
	points, err := analysis.Sweep(cmd.Context(), sim.NewEnsemble(exp.Factory(), 0), analysis.SweepConfig{
		Params:    req.Params,
		Initial:   req.Initial,
		DMin:      dMin,
		DMax:      dMax,
		Steps:     steps,
		TFinal:    sweepTFinal,
		Samples:   sweepSamples,
		Transient: transient,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "D\tX(T)\tX*\tMIN X\tMAX X\tMAX RE(λ)\tWASHOUT")
	for _, pt := range points {
		fmt.Fprintf(w, "%.4g\t%.6g\t%.6g\t%.6g\t%.6g\t%.4g\t%v\n",
			pt.D, pt.Final.X, pt.Equilibrium.X, pt.MinX, pt.MaxX, pt.MaxReal, pt.Equilibrium.Washout)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if outFile != "" {
		p, err := viz.SweepPlot(points)
		if err != nil {
			return err
		}
		if err := viz.SavePlot(p, outFile); err != nil {
			return err
		}
		fmt.Printf("\nwrote %s\n", outFile)
		return nil
	}
	graph, err := viz.SweepASCII(points, viz.DefaultWidth, viz.DefaultHeight)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Print(graph)
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("scenario %s: %d runs\n", sc.Name, len(sc.Runs))
	results, err := automation.RunScenario(cmd.Context(), sc, experiment.NewRegistry())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tREGIME\tSAMPLES\tFINAL X\tTIME\tOUTPUT")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.6g\t%v\t%s\n",
			r.ID, r.Name, r.Trajectory.Regime, r.Trajectory.Len(), r.Trajectory.Final().X, r.Elapsed.Round(time.Microsecond), r.Path)
	}
	return w.Flush()
}

func monteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	results, err := automation.RunMonteCarlo(cmd.Context(), automation.MonteCarloConfig{
		Base:         cfg,
		Perturbation: perturbation,
		Trials:       trials,
		Seed:         seed,
	}, experiment.NewRegistry())
	if err != nil {
		return err
	}

	persisted, washed := automation.MonteCarloStats(results)
	finals := make([]float64, len(results))
	for i, r := range results {
		finals[i] = r.Final[2]
	}
	fmt.Printf("%d trials: %d persisted, %d washed out\n", len(results), persisted, washed)
	fmt.Printf("final X: %s\n", viz.Sparkline(finals, min(len(finals), viz.DefaultWidth)))
	return nil
}

func analyze(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	tr, err := export.ReadTrajectory(f)
	if err != nil {
		return err
	}
	if tr.Len() < 2 {
		return fmt.Errorf("%s: need at least 2 samples", args[0])
	}
	return printAnalysis(tr)
}

// printAnalysis reports mass balance and, depending on the run, periodic
// convergence or the dominant oscillation period.
func printAnalysis(tr *sim.Trajectory) error {
	first, last := tr.Points[0], tr.Final()
	fmt.Printf("samples: %d over [%.4g, %.4g]\n", tr.Len(), first.T, last.T)
	fmt.Printf("mass: %.6g -> %.6g\n", first.Mass, last.Mass)

	if len(tr.Boundaries) > 0 {
		fmt.Printf("transfers: %d\n", len(tr.Boundaries))
		if len(tr.Boundaries) >= 3 {
			report, err := analysis.PeriodicState(tr, tolPeriod)
			if err != nil {
				return err
			}
			fmt.Printf("periodic state: residual %.3g, contraction %.3g, converged=%v\n",
				report.Residual, report.Ratio, report.Converged)
		}
		return nil
	}

	osc, err := analysis.DominantPeriod(tr, "X", after)
	if err != nil {
		return err
	}
	if osc.Period == 0 {
		fmt.Println("no oscillation in X")
	} else {
		fmt.Printf("dominant period of X: %.4g (amplitude %.3g)\n", osc.Period, osc.Amplitude)
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
