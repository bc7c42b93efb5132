package optimization

import (
	"context"
	"math"
	"time"
)

// Optimizer defines the interface for optimization algorithms
type Optimizer interface {
	// Optimize runs the optimization process until its budget is spent or
	// ctx is done.
	Optimize(ctx context.Context) (*OptimizationResult, error)

	// GetBestSolution returns the best solution found so far
	GetBestSolution() *Solution

	// GetHistory returns the per-generation history
	GetHistory() []GenerationRecord

	// Stop gracefully stops the optimization process
	Stop()
}

// Bounds holds the [lower, upper] interval of each design dimension.
type Bounds [][2]float64

// Dim returns the number of design dimensions.
func (b Bounds) Dim() int { return len(b) }

// Validate checks that every interval is finite and non-empty.
func (b Bounds) Validate() error {
	if len(b) == 0 {
		return NewConfigError("bounds", "validate", "at least one dimension is required")
	}
	for i, iv := range b {
		lo, hi := iv[0], iv[1]
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
			return NewConfigError("bounds", "validate", "dimension %d has non-finite bounds [%v, %v]", i, lo, hi)
		}
		if lo >= hi {
			return NewConfigError("bounds", "validate", "dimension %d: lower %v must be below upper %v", i, lo, hi)
		}
	}
	return nil
}

// Uniform returns dim copies of the interval [lower, upper].
func Uniform(dim int, lower, upper float64) Bounds {
	b := make(Bounds, dim)
	for i := range b {
		b[i] = [2]float64{lower, upper}
	}
	return b
}

// Solution represents a solution in the optimization space
type Solution struct {
	Parameters []float64
	Value      float64
	// Infeasible is set when Value is the penalty assigned to an
	// undefined point rather than a real objective value.
	Infeasible bool
}

// GenerationRecord summarizes one evaluated generation.
type GenerationRecord struct {
	Generation      int
	BestValue       float64
	BestParameters  []float64
	MeanValue       float64
	InfeasibleCount int
}

// OptimizationResult contains the result of an optimization run
type OptimizationResult struct {
	BestSolution *Solution
	History      []GenerationRecord
	Generations  int
	Evaluations  int
	Elapsed      time.Duration
	// Converged is true when the run spent its full generation budget.
	Converged bool
}
