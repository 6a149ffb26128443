package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/trajectory.report/internal/api"
	"github.com/banshee-data/trajectory.report/internal/config"
	"github.com/banshee-data/trajectory.report/internal/evaluation"
	"github.com/banshee-data/trajectory.report/internal/fusion"
	"github.com/banshee-data/trajectory.report/internal/monitoring"
	"github.com/banshee-data/trajectory.report/internal/report"
	"github.com/banshee-data/trajectory.report/internal/sensordata"
	"github.com/banshee-data/trajectory.report/internal/sim"
	"github.com/banshee-data/trajectory.report/internal/store"
	"github.com/banshee-data/trajectory.report/internal/sweep"
	"github.com/banshee-data/trajectory.report/internal/timeutil"
)

// errUsage reports a flag error that the flag set has already printed.
var errUsage = errors.New("usage")

// clock stamps CLI timings; tests replace it.
var clock timeutil.Clock = timeutil.RealClock{}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(fs.Output(), "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return errUsage
	}
	return nil
}

// inputFlags are shared by every command that reads a dataset.
type inputFlags struct {
	input, imu, gps, config *string
	debug                   *bool
}

func addInputFlags(fs *flag.FlagSet) inputFlags {
	return inputFlags{
		input:  fs.String("input", "", "Combined IMU/GPS CSV file"),
		imu:    fs.String("imu", "", "IMU CSV file (time,ax,ay); requires -gps"),
		gps:    fs.String("gps", "", "GPS CSV file (time,x,y); requires -imu"),
		config: fs.String("config", "", "Fusion config JSON file"),
		debug:  fs.Bool("debug", false, "Enable debug logging"),
	}
}

func (f inputFlags) loadConfig() (*config.FusionConfig, error) {
	monitoring.SetDebug(*f.debug)
	if *f.config == "" {
		return config.DefaultFusionConfig(), nil
	}
	return config.LoadFusionConfig(*f.config)
}

func (f inputFlags) loadDataset(stderr io.Writer) (*sensordata.Dataset, string, error) {
	var (
		ds     *sensordata.Dataset
		source string
		err    error
	)
	switch {
	case *f.input != "" && (*f.imu != "" || *f.gps != ""):
		return nil, "", errors.New("-input cannot be combined with -imu/-gps")
	case *f.input != "":
		ds, err = sensordata.LoadFile(*f.input)
		source = *f.input
	case *f.imu != "" && *f.gps != "":
		ds, err = sensordata.LoadAlignedFiles(*f.imu, *f.gps)
		source = *f.imu + "+" + *f.gps
	case *f.imu != "" || *f.gps != "":
		return nil, "", errors.New("-imu and -gps must be given together")
	default:
		return nil, "", errors.New("no input: pass -input or -imu/-gps")
	}
	if err != nil {
		return nil, "", err
	}
	if err := sensordata.CheckOrdered(ds); err != nil {
		fmt.Fprintf(stderr, "warning: %s is not time-ordered (%v); fusion will stop there\n", ds.Name, err)
	}
	monitoring.Debugf("loaded %d samples from %s", ds.Len(), source)
	return ds, source, nil
}

// paramOverrides applies -pv/-mv only when they were set explicitly.
func paramOverrides(fs *flag.FlagSet, p fusion.Params, pv, mv *float64) fusion.Params {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "pv":
			p.ProcessVariance = *pv
		case "mv":
			p.MeasurementVariance = *mv
		}
	})
	return p
}

// openOutput returns stdout for "" or "-", otherwise creates path.
func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func handleRun(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := addInputFlags(fs)
	pv := fs.Float64("pv", 0, "Process variance (overrides config)")
	mv := fs.Float64("mv", 0, "Measurement variance (overrides config)")
	output := fs.String("output", "-", "Estimated trajectory CSV (- for stdout)")
	plotPath := fs.String("plot", "", "Write a trajectory image (png, svg, pdf)")
	htmlPath := fs.String("html", "", "Write an interactive HTML chart")
	dbPath := fs.String("db", "", "Archive the dataset and run in this sqlite database")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := in.loadConfig()
	if err != nil {
		return err
	}
	ds, source, err := in.loadDataset(stderr)
	if err != nil {
		return err
	}
	p := paramOverrides(fs, cfg.Params(), pv, mv)
	if *plotPath != "" && !report.IsImagePath(*plotPath) {
		return fmt.Errorf("-plot %s: unsupported image extension", *plotPath)
	}

	start := clock.Now()
	col := fusion.NewCollector()
	runner, err := fusion.NewRunner(p, fusion.WithRecorder(col))
	if err != nil {
		return err
	}
	var steps []fusion.Step
	_, fuseErr := runner.Stream(ds.Measurements(), func(st fusion.Step) error {
		steps = append(steps, st)
		return nil
	})
	elapsed := clock.Since(start)

	var metrics *evaluation.Metrics
	innovationRMS := col.InnovationRMS()
	if fuseErr == nil {
		est := positions(steps)
		if m, err := evaluation.ForDataset(ds, est); err == nil {
			metrics = &m
		}
	} else {
		// All-or-nothing: a failed run produces no trajectory and no
		// diagnostics from the prefix it managed to fuse.
		steps = nil
		innovationRMS = 0
	}

	if *dbPath != "" {
		if err := archiveRun(*dbPath, ds, source, p, steps, metrics, innovationRMS, fuseErr, elapsed, stderr); err != nil {
			return err
		}
	}
	if fuseErr != nil {
		return fuseErr
	}

	w, closeFn, err := openOutput(*output, stdout)
	if err != nil {
		return err
	}
	if err := sensordata.WriteTrajectoryCSV(w, ds.EstimateTimestamps(), positions(steps)); err != nil {
		closeFn()
		return err
	}
	if err := closeFn(); err != nil {
		return err
	}

	series := report.FromRun(ds, positions(steps))
	title := fmt.Sprintf("%s (pv=%g, mv=%g)", ds.Name, p.ProcessVariance, p.MeasurementVariance)
	if *plotPath != "" {
		if err := report.RenderPNG(*plotPath, title, series, cfg.GetPlotWidthCM(), cfg.GetPlotHeightCM()); err != nil {
			return err
		}
	}
	if *htmlPath != "" {
		if err := writeHTML(*htmlPath, title, series, metrics); err != nil {
			return err
		}
	}

	fmt.Fprintf(stderr, "fused %d records from %s in %v (innovation rms %.4f m)\n",
		ds.Len(), ds.Name, elapsed.Round(time.Microsecond), innovationRMS)
	if metrics != nil {
		fmt.Fprintf(stderr, "rmse %.4f m, mae %.4f m, max %.4f m; gps rmse %.4f m; improvement %.1f%%\n",
			metrics.RMSE, metrics.MAE, metrics.MaxError, metrics.RawRMSE, 100*metrics.Improvement)
	}
	return nil
}

func positions(steps []fusion.Step) []fusion.Vec2 {
	out := make([]fusion.Vec2, len(steps))
	for i, st := range steps {
		out[i] = st.Position
	}
	return out
}

func writeHTML(path, title string, s report.Series, m *evaluation.Metrics) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	subtitle := ""
	if m != nil {
		subtitle = fmt.Sprintf("rmse %.3f m vs gps %.3f m", m.RMSE, m.RawRMSE)
	}
	if err := report.RenderHTML(f, title, subtitle, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func archiveRun(dbPath string, ds *sensordata.Dataset, source string, p fusion.Params, steps []fusion.Step,
	metrics *evaluation.Metrics, innovationRMS float64, fuseErr error, elapsed time.Duration, stderr io.Writer) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	datasetID, created, err := st.EnsureDataset(ctx, ds, source)
	if err != nil {
		return err
	}
	if !created {
		monitoring.Debugf("reusing archived dataset %s for %s", datasetID, ds.Name)
	}
	run := &store.Run{
		DatasetID:     datasetID,
		Params:        p,
		Metrics:       metrics,
		InnovationRMS: innovationRMS,
		Duration:      elapsed,
	}
	if fuseErr != nil {
		run.Status = store.StatusFailed
		run.Error = fuseErr.Error()
	}
	id, err := st.SaveRun(ctx, run, steps)
	if err != nil {
		return err
	}
	fmt.Fprintf(stderr, "archived run %s (dataset %s) in %s\n", id, datasetID, dbPath)
	return nil
}

func handleSweep(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := addInputFlags(fs)
	pvSpec := fs.String("pv", "", "Process variances: min:max:step or comma list (default: config range)")
	mvSpec := fs.String("mv", "", "Measurement variances: min:max:step or comma list (default: config range)")
	points := fs.Int("points", 10, "Values per axis taken from config ranges when -pv/-mv are omitted")
	workers := fs.Int("workers", 0, "Concurrent runs (default: config sweep_workers)")
	output := fs.String("output", "-", "Ranked results CSV (- for stdout)")
	top := fs.Int("top", 5, "Print the best N results to stderr")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := in.loadConfig()
	if err != nil {
		return err
	}
	ds, _, err := in.loadDataset(stderr)
	if err != nil {
		return err
	}

	pvs, err := sweepAxis(*pvSpec, cfg.GetProcessVarianceRange(), *points)
	if err != nil {
		return fmt.Errorf("-pv: %w", err)
	}
	mvs, err := sweepAxis(*mvSpec, cfg.GetMeasurementVarianceRange(), *points)
	if err != nil {
		return fmt.Errorf("-mv: %w", err)
	}
	grid, err := sweep.Grid(pvs, mvs)
	if err != nil {
		return err
	}
	n := *workers
	if n <= 0 {
		n = cfg.GetSweepWorkers()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	results, err := sweep.Run(ctx, ds, grid, n)
	if err != nil {
		return err
	}
	sweep.Rank(results)

	w, closeFn, err := openOutput(*output, stdout)
	if err != nil {
		return err
	}
	if err := sweep.WriteCSV(w, results); err != nil {
		closeFn()
		return err
	}
	if err := closeFn(); err != nil {
		return err
	}

	best, ok := sweep.Best(results)
	if !ok {
		return errors.New("every grid point failed")
	}
	metric := "innovation rms"
	if best.Metrics != nil {
		metric = "mae"
	}
	fmt.Fprintf(stderr, "swept %d points over %s, ranked by %s\n", len(results), ds.Name, metric)
	for i := 0; i < *top && i < len(results); i++ {
		r := results[i]
		if r.Err != nil {
			break
		}
		score := r.InnovationRMS
		if r.Metrics != nil {
			score = r.Metrics.MAE
		}
		fmt.Fprintf(stderr, "  %d. pv=%g mv=%g %s=%.4f\n", i+1, r.Params.ProcessVariance, r.Params.MeasurementVariance, metric, score)
	}
	return nil
}

func sweepAxis(spec string, def sweep.RangeSpec, points int) ([]float64, error) {
	if spec != "" {
		return sweep.ParseValues(spec)
	}
	vals := def.Limit(points).Values()
	if len(vals) == 0 {
		return nil, fmt.Errorf("configured range %s is empty", def)
	}
	return vals, nil
}

func handleSimulate(args []string, stdout, stderr io.Writer) error {
	def := sim.DefaultScenario()
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	samples := fs.Int("samples", def.Samples, "Number of records")
	dt := fs.Float64("dt", def.Dt, "Sample interval (s)")
	x0 := fs.Float64("x0", def.Start.X, "Initial x (m)")
	y0 := fs.Float64("y0", def.Start.Y, "Initial y (m)")
	vx := fs.Float64("vx", def.Velocity.X, "Initial x velocity (m/s)")
	vy := fs.Float64("vy", def.Velocity.Y, "Initial y velocity (m/s)")
	ax := fs.Float64("ax", def.Acceleration.X, "Constant x acceleration (m/s²)")
	ay := fs.Float64("ay", def.Acceleration.Y, "Constant y acceleration (m/s²)")
	gpsNoise := fs.Float64("gps-noise", def.GPSNoiseStd, "GPS noise standard deviation (m)")
	imuNoise := fs.Float64("imu-noise", def.IMUNoiseStd, "IMU noise standard deviation (m/s²)")
	seed := fs.Uint64("seed", def.Seed, "Random seed")
	output := fs.String("output", "-", "Dataset CSV (- for stdout)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	sc := sim.Scenario{
		Name:         def.Name,
		Samples:      *samples,
		Dt:           *dt,
		Start:        fusion.Vec2{X: *x0, Y: *y0},
		Velocity:     fusion.Vec2{X: *vx, Y: *vy},
		Acceleration: fusion.Vec2{X: *ax, Y: *ay},
		GPSNoiseStd:  *gpsNoise,
		IMUNoiseStd:  *imuNoise,
		Seed:         *seed,
	}
	if *output != "-" {
		sc.Name = filepath.Base(*output)
	}
	ds, err := sim.Generate(sc)
	if err != nil {
		return err
	}

	w, closeFn, err := openOutput(*output, stdout)
	if err != nil {
		return err
	}
	if err := sensordata.WriteCSV(w, ds); err != nil {
		closeFn()
		return err
	}
	return closeFn()
}

func handleServe(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := addInputFlags(fs)
	listen := fs.String("listen", "", "Listen address (default: config listen)")
	dbPath := fs.String("db", "", "Archive database; enables saved runs and /debug/")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := in.loadConfig()
	if err != nil {
		return err
	}
	ds, source, err := in.loadDataset(stderr)
	if err != nil {
		return err
	}

	var opts []api.Option
	if *dbPath != "" {
		st, err := store.Open(*dbPath)
		if err != nil {
			return err
		}
		defer st.Close()
		id, created, err := st.EnsureDataset(context.Background(), ds, source)
		if err != nil {
			return err
		}
		opts = append(opts, api.WithStore(st, id))
		if created {
			fmt.Fprintf(stdout, "archived dataset %s in %s\n", id, *dbPath)
		} else {
			fmt.Fprintf(stdout, "using archived dataset %s in %s\n", id, *dbPath)
		}
	}

	addr := *listen
	if addr == "" {
		addr = cfg.GetListen()
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return api.NewServer(ds, cfg, opts...).ListenAndServe(ctx, addr)
}

func handleRuns(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", config.DefaultFusionConfig().GetDatabasePath(), "Archive database")
	datasetID := fs.String("dataset", "", "Only list runs of this dataset id")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if _, err := os.Stat(*dbPath); err != nil {
		return err
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(context.Background(), *datasetID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tDATASET\tPV\tMV\tSTATUS\tESTIMATES\tRMSE\tCREATED")
	for _, r := range runs {
		rmse := "-"
		if r.Metrics != nil {
			rmse = fmt.Sprintf("%.4f", r.Metrics.RMSE)
		}
		fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%s\t%d\t%s\t%s\n",
			r.ID, r.DatasetID, r.Params.ProcessVariance, r.Params.MeasurementVariance,
			r.Status, r.EstimateCount, rmse, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
