package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	kitlog "github.com/go-kit/kit/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/numlab/internal/analysis"
	"github.com/san-kum/numlab/internal/automation"
	"github.com/san-kum/numlab/internal/config"
	"github.com/san-kum/numlab/internal/dynamo"
	"github.com/san-kum/numlab/internal/experiment"
	"github.com/san-kum/numlab/internal/optim"
	"github.com/san-kum/numlab/internal/report"
	"github.com/san-kum/numlab/internal/storage"
	"github.com/san-kum/numlab/internal/viz"
)

var (
	dataDir string
	verbose bool

	configFile  string
	step        float64
	end         float64
	method      string
	maxHalvings int
	tol         float64
	maxIter     int
	terms       int
	x0          float64
	y0          float64
	datDir      string
	noSave      bool
	timeout     time.Duration

	series  string
	outPath string

	orderSteps []float64

	grid   []string
	metric string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "numlab",
		Short:         "validated numerical methods lab",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".numlab", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log engine events to stderr")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "run a preset or problem file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runProblem,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "problem file (yaml)")
	runCmd.Flags().Float64Var(&step, "h", 0, "step size")
	runCmd.Flags().Float64Var(&end, "end", 0, "end of the integration interval")
	runCmd.Flags().StringVar(&method, "method", "rk4", "scalar stepper (rk4, euler)")
	runCmd.Flags().IntVar(&maxHalvings, "max-halvings", config.DefaultMaxHalvings, "step recovery depth")
	runCmd.Flags().Float64Var(&tol, "tol", config.DefaultTolerance, "newton tolerance")
	runCmd.Flags().IntVar(&maxIter, "max-iter", config.DefaultMaxIter, "newton iteration cap")
	runCmd.Flags().IntVar(&terms, "terms", config.DefaultTerms, "fourier terms")
	runCmd.Flags().Float64Var(&x0, "x0", 0, "initial x (newton guess or derivative point)")
	runCmd.Flags().Float64Var(&y0, "y0", 0, "initial y")
	runCmd.Flags().StringVar(&datDir, "dat", "", "also stream series to .dat files in this directory")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	runCmd.Flags().DurationVar(&timeout, "timeout", 0, "abort the run after this long")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show run summary and warnings",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run series in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&series, "series", "", "series to plot (default all)")

	pngCmd := &cobra.Command{
		Use:   "png [run_id]",
		Short: "render run series to png",
		Args:  cobra.ExactArgs(1),
		RunE:  pngRun,
	}
	pngCmd.Flags().StringVar(&series, "series", "", "series to plot (default all)")
	pngCmd.Flags().StringVarP(&outPath, "out", "o", "", "output directory (default the run directory)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	exportDatCmd := &cobra.Command{
		Use:   "export-dat [run_id]",
		Short: "export run series as .dat files",
		Args:  cobra.ExactArgs(1),
		RunE:  exportDat,
	}
	exportDatCmd.Flags().StringVarP(&outPath, "out", "o", ".", "output directory")

	deleteCmd := &cobra.Command{
		Use:   "delete [run_id]",
		Short: "delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteRun,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND")
			for _, name := range config.ListPresets() {
				fmt.Fprintf(w, "%s\t%s\n", name, config.Presets[name].Kind)
			}
			return w.Flush()
		},
	}

	orderCmd := &cobra.Command{
		Use:   "order [preset]",
		Short: "measure the convergence order of an integration preset",
		Args:  cobra.MaximumNArgs(1),
		RunE:  orderStudy,
	}
	orderCmd.Flags().StringVar(&configFile, "config", "", "problem file (yaml)")
	orderCmd.Flags().Float64SliceVar(&orderSteps, "steps", []float64{0.2, 0.1, 0.05, 0.025}, "step sizes")
	orderCmd.Flags().StringVar(&method, "method", "rk4", "scalar stepper (rk4, euler)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "frequency analysis",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().StringVar(&series, "series", "", "series to analyze (default the first)")

	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "browse stored runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := storage.New(dataDir)
			if err != nil {
				return err
			}
			defer st.Close()
			return viz.Run(st)
		},
	}

	batchCmd := &cobra.Command{
		Use:   "batch [scenario]",
		Short: "run every step of a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	batchCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the runs")

	tuneCmd := &cobra.Command{
		Use:   "tune [preset]",
		Short: "grid search over step size or problem parameters",
		Args:  cobra.MaximumNArgs(1),
		RunE:  tuneProblem,
	}
	tuneCmd.Flags().StringVar(&configFile, "config", "", "problem file (yaml)")
	tuneCmd.Flags().StringArrayVar(&grid, "grid", nil, "parameter values, e.g. h=0.2,0.1,0.05 (repeatable)")
	tuneCmd.Flags().StringVar(&metric, "metric", "max_error", "summary value to minimize")

	rootCmd.AddCommand(runCmd, listCmd, showCmd, plotCmd, pngCmd, exportJSONCmd, exportDatCmd, deleteCmd, presetsCmd, orderCmd, analyzeCmd, viewCmd, batchCmd, tuneCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() kitlog.Logger {
	if !verbose {
		return kitlog.NewNopLogger()
	}
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	return kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)
}

// loadProblem resolves the preset, then the problem file, then any flag the
// user set explicitly.
func loadProblem(cmd *cobra.Command, args []string) (*config.Config, error) {
	var cfg *config.Config
	if len(args) > 0 {
		cfg = config.GetPreset(args[0])
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if cfg == nil {
		return nil, errors.New("need a preset name or --config")
	}

	flags := cmd.Flags()
	if flags.Changed("h") {
		cfg.SetStep(step)
	}
	if flags.Changed("end") {
		cfg.SetEnd(end)
	}
	if flags.Changed("method") {
		cfg.Method = method
	}
	if flags.Changed("max-halvings") {
		cfg.ODE.MaxHalvings = maxHalvings
	}
	if flags.Changed("tol") {
		cfg.Newton.Tolerance = tol
	}
	if flags.Changed("max-iter") {
		cfg.Newton.MaxIter = maxIter
	}
	if flags.Changed("terms") {
		cfg.Fourier.Terms = terms
	}
	if flags.Changed("x0") {
		cfg.Newton.X0 = x0
		cfg.Diff.X0 = x0
	}
	if flags.Changed("y0") {
		cfg.Newton.Y0 = y0
		cfg.Diff.Y0 = y0
	}
	return cfg, nil
}

func cardFor(id string, out *experiment.Outcome) report.Card {
	c := report.Card{
		ID:       id,
		Name:     out.Name,
		Kind:     out.Kind,
		Method:   out.Method,
		Status:   out.Status,
		Steps:    out.Steps,
		Summary:  out.Summary,
		Warnings: out.Diagnostics.Counts(),
	}
	if out.Err != nil {
		c.Err = out.Err.Error()
	}
	return c
}

func runProblem(cmd *cobra.Command, args []string) error {
	cfg, err := loadProblem(cmd, args)
	if err != nil {
		return err
	}

	exp, err := experiment.New(cfg, experiment.WithLogger(newLogger()))
	if err != nil {
		return err
	}

	rec := report.NewRecorder()
	sinks := []dynamo.Sink{rec}
	if datDir != "" {
		dat, err := report.NewDatDir(datDir)
		if err != nil {
			return err
		}
		sinks = append(sinks, dat)
	}
	sink := report.Multi(sinks...)

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	fmt.Printf("running %s (%s)...\n", cfg.Name, cfg.Kind)
	start := time.Now()
	out, runErr := exp.RunAndClose(ctx, sink)
	if out == nil {
		return runErr
	}
	elapsed := time.Since(start)

	id := ""
	if !noSave {
		if id, err = saveRun(cfg, out, rec); err != nil {
			return err
		}
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Println(cardFor(shortID(id), out).Render())
	if id != "" {
		fmt.Printf("run id: %s\n", id)
	}
	return runErr
}

func saveRun(cfg *config.Config, out *experiment.Outcome, rec *report.Recorder) (string, error) {
	st, err := storage.New(dataDir)
	if err != nil {
		return "", err
	}
	defer st.Close()

	src, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	run := &storage.Run{
		Name:     out.Name,
		Kind:     out.Kind,
		Method:   out.Method,
		Status:   out.Status,
		Steps:    out.Steps,
		Config:   string(src),
		Summary:  out.Summary,
		Warnings: out.Diagnostics.Warnings,
	}
	if out.Err != nil {
		run.Err = out.Err.Error()
	}
	return st.Save(run, rec)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// openRun opens the store and resolves a run ID prefix.
func openRun(prefix string) (*storage.Store, *storage.Run, error) {
	st, err := storage.New(dataDir)
	if err != nil {
		return nil, nil, err
	}
	id, err := st.Resolve(prefix)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	run, err := st.Load(id)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return st, run, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := storage.New(dataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tMETHOD\tSTATUS\tSTEPS\tTIME")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			shortID(run.ID),
			run.Name,
			run.Kind,
			run.Method,
			run.Status,
			run.Steps,
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}

	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	st, run, err := openRun(args[0])
	if err != nil {
		return err
	}
	defer st.Close()

	card := report.Card{
		ID:       run.ID,
		Name:     run.Name,
		Kind:     run.Kind,
		Method:   run.Method,
		Status:   run.Status,
		Steps:    run.Steps,
		Summary:  run.Summary,
		Warnings: run.WarningCounts(),
		Err:      run.Err,
	}
	fmt.Println(card.Render())

	if len(run.Warnings) > 0 {
		fmt.Println("\nwarnings:")
		for _, w := range run.Warnings {
			fmt.Printf("  %s\n", w)
		}
	}
	return nil
}

// seriesNames returns the requested series, or every stored one in name
// order.
func seriesNames(run *storage.Run) ([]string, error) {
	if series != "" {
		if _, ok := run.Series[series]; !ok {
			return nil, fmt.Errorf("run %s has no series %q", shortID(run.ID), series)
		}
		return []string{series}, nil
	}
	names := make([]string, 0, len(run.Series))
	for name := range run.Series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	st, run, err := openRun(args[0])
	if err != nil {
		return err
	}
	defer st.Close()

	names, err := seriesNames(run)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s (%s)\n\n", run.Name, run.Kind)
	for _, name := range names {
		rows, err := st.LoadSeries(run.ID, name)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}
		col := 0
		if len(rows[0]) > 1 {
			col = 1
		}
		fmt.Println(report.ASCIIPlot(report.Column(rows, col), name, 80, 10))
		fmt.Println()
	}
	return nil
}

func pngRun(cmd *cobra.Command, args []string) error {
	st, run, err := openRun(args[0])
	if err != nil {
		return err
	}
	defer st.Close()

	names, err := seriesNames(run)
	if err != nil {
		return err
	}
	dir := outPath
	if dir == "" {
		dir = st.RunDir(run.ID)
	}

	for _, name := range names {
		rows, err := st.LoadSeries(run.ID, name)
		if err != nil {
			return err
		}
		if len(rows) == 0 || len(rows[0]) < 2 {
			continue
		}
		xlabel, ylabel := "x", name
		if name == "phase" || name == "trajectory" {
			xlabel, ylabel = "x", "y"
		}
		lines := []report.Line{{Label: name, Rows: rows, XCol: 0, YCol: 1}}
		if name == "original" {
			if approx, err := st.LoadSeries(run.ID, "series"); err == nil {
				lines = append(lines, report.Line{Label: "series", Rows: approx, XCol: 0, YCol: 1})
			}
		}
		path := filepath.Join(dir, run.Name+"_"+name+".png")
		if err := report.SavePNG(path, run.Name+": "+name, xlabel, ylabel, lines...); err != nil {
			return err
		}
		fmt.Println(path)
	}
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st, run, err := openRun(args[0])
	if err != nil {
		return err
	}
	defer st.Close()

	if outPath == "" {
		return st.ExportJSON(os.Stdout, run.ID)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := st.ExportJSON(f, run.ID); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", outPath)
	return nil
}

func exportDat(cmd *cobra.Command, args []string) error {
	st, run, err := openRun(args[0])
	if err != nil {
		return err
	}
	defer st.Close()

	paths, err := st.ExportDat(run.ID, outPath)
	for _, p := range paths {
		fmt.Println(p)
	}
	return err
}

func deleteRun(cmd *cobra.Command, args []string) error {
	st, run, err := openRun(args[0])
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Delete(run.ID); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", run.ID)
	return nil
}

func orderStudy(cmd *cobra.Command, args []string) error {
	base, err := loadProblem(cmd, args)
	if err != nil {
		return err
	}
	switch base.Kind {
	case config.KindODE, config.KindODE2, config.KindSystem:
	default:
		return fmt.Errorf("order study needs an integration problem, %s is %s", base.Name, base.Kind)
	}

	logger := newLogger()
	res, err := analysis.Study(orderSteps, func(h float64) (float64, error) {
		cfg := base.Clone()
		cfg.SetStep(h)
		exp, err := experiment.New(cfg, experiment.WithLogger(logger))
		if err != nil {
			return 0, err
		}
		out, err := exp.Run(context.Background(), nil)
		if err != nil {
			return 0, err
		}
		e, ok := out.Summary["max_error"]
		if !ok {
			return 0, fmt.Errorf("%s has no exact solution to compare against", cfg.Name)
		}
		return e, nil
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "H\tMAX ERROR\tLOCAL ORDER")
	for i, h := range res.Steps {
		local := "-"
		if i > 0 {
			local = fmt.Sprintf("%.3f", res.Ratios[i-1])
		}
		fmt.Fprintf(w, "%g\t%.3e\t%s\n", h, res.Errors[i], local)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nobserved order: %.3f\n", res.Order)
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	st, run, err := openRun(args[0])
	if err != nil {
		return err
	}
	defer st.Close()

	names, err := seriesNames(run)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("run %s has no series", shortID(run.ID))
	}
	name := names[0]
	rows, err := st.LoadSeries(run.ID, name)
	if err != nil {
		return err
	}
	if len(rows) < 4 || len(rows[0]) < 2 {
		return fmt.Errorf("series %s is too short to analyze", name)
	}

	xs := report.Column(rows, 0)
	dt := (xs[len(xs)-1] - xs[0]) / float64(len(xs)-1)
	values := report.Column(rows, 1)

	freq, err := analysis.DominantFrequency(values, dt)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s  series: %s  samples: %d\n", run.Name, name, len(values))
	fmt.Printf("dominant frequency: %.4f (period %.4f)\n\n", freq, 1/freq)
	ps := analysis.PowerSpectrum(values)
	if len(ps) > 100 {
		ps = ps[:100]
	}
	fmt.Println(report.ASCIIPlot(ps, "power spectrum ("+name+")", 80, 15))
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("scenario %s: %d steps\n", scenario.Name, len(scenario.Steps))
	var rec *report.Recorder
	failed := 0
	hooks := automation.Hooks{
		Sink: func(i int, cfg *config.Config) dynamo.Sink {
			rec = report.NewRecorder()
			return rec
		},
		Done: func(i int, cfg *config.Config, out *experiment.Outcome, runErr error) error {
			if runErr != nil {
				failed++
			}
			id := ""
			if !noSave {
				var err error
				if id, err = saveRun(cfg, out, rec); err != nil {
					return err
				}
			}
			fmt.Printf("\n[%d/%d]\n%s\n", i+1, len(scenario.Steps), cardFor(shortID(id), out).Render())
			return nil
		},
	}

	if _, err := automation.RunScenario(context.Background(), scenario, hooks, experiment.WithLogger(newLogger())); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d steps failed", failed, len(scenario.Steps))
	}
	return nil
}

// parseGrid turns name=v1,v2,... flags into parallel name and value lists.
func parseGrid(flags []string) ([]string, [][]float64, error) {
	names := make([]string, 0, len(flags))
	ranges := make([][]float64, 0, len(flags))
	for _, g := range flags {
		name, list, ok := strings.Cut(g, "=")
		if !ok || name == "" {
			return nil, nil, fmt.Errorf("bad grid %q, want name=v1,v2", g)
		}
		var values []float64
		for _, f := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
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

func tuneProblem(cmd *cobra.Command, args []string) error {
	base, err := loadProblem(cmd, args)
	if err != nil {
		return err
	}
	names, ranges, err := parseGrid(grid)
	if err != nil {
		return err
	}
	gs, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}

	logger := newLogger()
	res, err := gs.Search(context.Background(), func(params map[string]float64) (*experiment.Experiment, error) {
		cfg := base.Clone()
		if cfg.Params == nil {
			cfg.Params = make(map[string]float64)
		}
		for k, v := range params {
			if k == "h" {
				cfg.SetStep(v)
				continue
			}
			cfg.Params[k] = v
		}
		return experiment.New(cfg, experiment.WithLogger(logger))
	}, metric)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", strings.ToUpper(strings.Join(names, "\t")), strings.ToUpper(metric))
	for _, t := range res.Ranked() {
		cols := make([]string, len(names))
		for i, n := range names {
			cols[i] = strconv.FormatFloat(t.Params[n], 'g', -1, 64)
		}
		fmt.Fprintf(w, "%s\t%.4e\n", strings.Join(cols, "\t"), t.Value)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if res.Failed > 0 {
		fmt.Printf("\n%d grid points failed\n", res.Failed)
	}
	fmt.Printf("\nbest: %v (%s = %.4e)\n", res.Best, metric, res.BestValue)
	return nil
}
