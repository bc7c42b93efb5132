package objective

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/gaopt/internal/optimization"
)

// SampleGrid evaluates a two-dimensional objective on an n×n grid spanning
// bounds. Element (i, j) holds f(xs[j], ys[i]); infeasible points hold the
// raw sentinel so a renderer can mask them.
func SampleGrid(a *Adapter, bounds optimization.Bounds, n int) (xs, ys []float64, grid *mat.Dense, err error) {
	if bounds.Dim() != 2 {
		return nil, nil, nil, optimization.NewConfigError("objective", "sample grid",
			"contour sampling needs exactly 2 dimensions, got %d", bounds.Dim())
	}
	if n < 2 {
		return nil, nil, nil, optimization.NewConfigError("objective", "sample grid",
			"grid needs at least 2 points per axis, got %d", n)
	}

	xs = floats.Span(make([]float64, n), bounds[0][0], bounds[0][1])
	ys = floats.Span(make([]float64, n), bounds[1][0], bounds[1][1])
	grid = mat.NewDense(n, n, nil)
	for i, y := range ys {
		for j, x := range xs {
			grid.Set(i, j, a.Evaluate([]float64{x, y}).Fitness(DefaultSentinel))
		}
	}
	return xs, ys, grid, nil
}
