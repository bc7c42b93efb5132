package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/gaopt/internal/config"
	"github.com/copyleftdev/gaopt/internal/logging"
	"github.com/copyleftdev/gaopt/internal/optimization"
	"github.com/copyleftdev/gaopt/internal/optimization/genetic"
	"github.com/copyleftdev/gaopt/internal/optimization/objective"
)

const (
	defaultDim  = 2
	defaultBits = 31
	contourSize = 100
)

type runOptions struct {
	logLevel    string
	seed        int64
	popSize     int
	generations int
	workers     int
	nanPoints   int
	nanRange    float64
}

func newRootCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "gaopt [dim] [bits]",
		Short: "Minimize the NaN-masked Rosenbrock function with a binary GA",
		Long: `gaopt runs a binary-encoded genetic algorithm on the Rosenbrock
function with randomly placed undefined regions. With two arguments it uses
them as the dimension and bits per variable; otherwise it runs with dim=2 and
bits=31. Set PLOT_CONTOUR to also print the objective on a 100x100 grid for
2-D problems.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to LOG_LEVEL")
	f.Int64Var(&opts.seed, "seed", 0, "Random seed; 0 uses GA_SEED or the clock")
	f.IntVar(&opts.popSize, "pop", 0, "Population size; 0 derives 4*dim*bits")
	f.IntVar(&opts.generations, "generations", 0, "Generations to evaluate; 0 uses GA_MAX_GENERATIONS")
	f.IntVar(&opts.workers, "workers", 0, "Concurrent evaluations; 0 uses OPT_WORKER_COUNT")
	f.IntVar(&opts.nanPoints, "nan-points", -1, "Undefined regions per dimension; -1 uses PROBLEM_NAN_POINTS")
	f.Float64Var(&opts.nanRange, "nan-range", -1, "Radius of each undefined region; -1 uses PROBLEM_NAN_RANGE")
	return cmd
}

// parseShape reads [dim] [bits]. Any other argument count falls back to
// the defaults.
func parseShape(args []string) (dim, bits int, defaulted bool, err error) {
	if len(args) != 2 {
		return defaultDim, defaultBits, len(args) != 0, nil
	}
	dim, err = strconv.Atoi(args[0])
	if err != nil || dim < 1 {
		return 0, 0, false, optimization.NewConfigError("cli", "parse args", "dim must be a positive integer, got %q", args[0])
	}
	bits, err = strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, false, optimization.NewConfigError("cli", "parse args", "bits must be an integer, got %q", args[1])
	}
	return dim, bits, false, nil
}

func run(cmd *cobra.Command, args []string, opts *runOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.Logging.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	base, err := logging.NewLogger(&logging.Config{Level: level, Format: cfg.Logging.Format, Output: cfg.Logging.Output})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := logging.NewZapLogger(base.WithField("service", "gaopt"))
	defer func() { _ = logger.Sync() }()

	dim, bits, defaulted, err := parseShape(args)
	if err != nil {
		return err
	}
	if defaulted {
		logger.Warn("Expected two arguments [dim] [bits], using defaults",
			zap.Strings("args", args), zap.Int("dim", dim), zap.Int("bits", bits))
	}

	gc, bc := buildRun(cfg, opts, dim, bits)
	obj, err := objective.NewBenchmark(bc)
	if err != nil {
		return err
	}

	x, fx, elapsed, err := genetic.Solve(cmd.Context(), gc, obj, genetic.WithLogger(logger.Named("ga")))
	if err != nil {
		return err
	}

	out := bufio.NewWriter(cmd.OutOrStdout())
	defer out.Flush()

	if gc.Coordinator {
		fmt.Fprintf(out, "%s %s %s\n", formatVector(x), formatFloat(fx), formatFloat(elapsed.Seconds()))
	}

	if cfg.ContourEnabled() {
		if dim != 2 {
			logger.Warn("Contour output needs a 2-D problem, skipping", zap.Int("dim", dim))
			return nil
		}
		return writeContour(out, objective.NewAdapter(obj), bc.Bounds)
	}
	return nil
}

// buildRun layers command-line flags over the environment configuration.
func buildRun(cfg *config.Config, opts *runOptions, dim, bits int) (genetic.Config, objective.BenchmarkConfig) {
	bounds := optimization.Uniform(dim, cfg.Problem.Lower, cfg.Problem.Upper)

	gc := genetic.DefaultConfig(bounds, bits)
	gc.PopSize = pick(opts.popSize, cfg.GA.PopSize)
	gc.MaxGenerations = pick(opts.generations, cfg.GA.MaxGenerations)
	gc.CrossoverRate = cfg.GA.CrossoverRate
	gc.MutationRate = cfg.GA.MutationRate
	gc.EliteCount = cfg.GA.EliteCount
	gc.Penalty = cfg.GA.Penalty
	gc.Workers = pick(opts.workers, cfg.Optimization.WorkerCount)
	gc.EvalTimeout = cfg.Optimization.EvalTimeout
	gc.Seed = cfg.GA.Seed
	if opts.seed != 0 {
		gc.Seed = opts.seed
	}
	if gc.Seed == 0 {
		gc.Seed = time.Now().UnixNano()
	}

	bc := objective.BenchmarkConfig{
		Name:      objective.BenchmarkRosenbrock,
		Bounds:    bounds,
		NaNPoints: cfg.Problem.NaNPoints,
		NaNRange:  cfg.Problem.NaNRange,
		Delay:     cfg.Problem.Delay,
		Seed:      gc.Seed,
	}
	if opts.nanPoints >= 0 {
		bc.NaNPoints = opts.nanPoints
	}
	if opts.nanRange >= 0 {
		bc.NaNRange = opts.nanRange
	}
	return gc, bc
}

func pick(flag, env int) int {
	if flag != 0 {
		return flag
	}
	return env
}

// writeContour prints the x axis, the y axis and then one grid row per y.
func writeContour(w io.Writer, a *objective.Adapter, bounds optimization.Bounds) error {
	xs, ys, grid, err := objective.SampleGrid(a, bounds, contourSize)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, formatVector(xs))
	fmt.Fprintln(w, formatVector(ys))
	for i := range ys {
		if _, err := fmt.Fprintln(w, formatVector(grid.RawRowView(i))); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = formatFloat(x)
	}
	return strings.Join(parts, " ")
}
