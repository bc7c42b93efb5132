package objective

import (
	"math/rand"
	"strings"
	"time"

	"github.com/copyleftdev/gaopt/internal/optimization"
)

// Benchmark names accepted by NewBenchmark.
const (
	BenchmarkRosenbrock = "rosenbrock"
	BenchmarkSphere     = "sphere"
)

// BenchmarkConfig describes a built-in test problem.
type BenchmarkConfig struct {
	// Name is BenchmarkRosenbrock (the default) or BenchmarkSphere.
	Name   string
	Bounds optimization.Bounds
	// NaNPoints is the number of undefined regions per dimension placed
	// in the Rosenbrock domain.
	NaNPoints int
	// NaNRange is the radius of each undefined region.
	NaNRange float64
	Delay    time.Duration
	// Seed drives obstacle placement only.
	Seed int64
}

// NewBenchmark builds the named problem. The Rosenbrock variant gets
// NaNPoints*dim undefined regions, none of which covers the optimum.
func NewBenchmark(cfg BenchmarkConfig) (Objective, error) {
	if err := cfg.Bounds.Validate(); err != nil {
		return nil, err
	}
	if cfg.NaNPoints < 0 {
		return nil, optimization.NewConfigError("objective", "new benchmark", "nan points must not be negative, got %d", cfg.NaNPoints)
	}
	if cfg.NaNRange < 0 {
		return nil, optimization.NewConfigError("objective", "new benchmark", "nan range must not be negative, got %v", cfg.NaNRange)
	}

	switch strings.ToLower(cfg.Name) {
	case "", BenchmarkRosenbrock:
		dim := cfg.Bounds.Dim()
		rng := rand.New(rand.NewSource(cfg.Seed))
		return &Rosenbrock{
			Obstacles: PlaceObstacles(rng, cfg.NaNPoints*dim, cfg.Bounds, Ones(dim), cfg.NaNRange),
			Range:     cfg.NaNRange,
			Delay:     cfg.Delay,
		}, nil
	case BenchmarkSphere:
		if cfg.Delay > 0 {
			return Func(func(x []float64) (float64, error) {
				time.Sleep(cfg.Delay)
				return Sphere{}.Evaluate(x)
			}), nil
		}
		return Sphere{}, nil
	default:
		return nil, optimization.NewConfigError("objective", "new benchmark", "unknown objective %q", cfg.Name)
	}
}
