package objective

import (
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/gaopt/internal/optimization"
)

// Rosenbrock is the n-dimensional Rosenbrock function with optional
// undefined regions. Points within Range of any obstacle evaluate to
// DefaultSentinel instead of a value.
type Rosenbrock struct {
	Obstacles [][]float64
	Range     float64
	// Delay is slept before each evaluation to model an expensive model.
	Delay time.Duration
}

// Evaluate implements Objective.
func (r *Rosenbrock) Evaluate(x []float64) (float64, error) {
	if r.Delay > 0 {
		time.Sleep(r.Delay)
	}
	for _, p := range r.Obstacles {
		if floats.Distance(x, p, 2) <= r.Range {
			return DefaultSentinel, nil
		}
	}
	return RosenbrockValue(x), nil
}

// RosenbrockValue is sum(100*(x[i+1]-x[i]^2)^2 + (1-x[i])^2). Its minimum is
// 0 at the all-ones vector.
func RosenbrockValue(x []float64) float64 {
	var sum float64
	for i := 0; i+1 < len(x); i++ {
		a := x[i+1] - x[i]*x[i]
		b := 1 - x[i]
		sum += 100*a*a + b*b
	}
	return sum
}

// Sphere is sum(x[i]^2) shifted so its minimum is at Center.
type Sphere struct {
	Center []float64
}

// Evaluate implements Objective.
func (s Sphere) Evaluate(x []float64) (float64, error) {
	if s.Center == nil {
		return floats.Dot(x, x), nil
	}
	d := floats.Distance(x, s.Center, 2)
	return d * d, nil
}

// PlaceObstacles draws n points uniformly inside bounds, rejecting any that
// fall within radius of avoid so the known optimum stays defined.
func PlaceObstacles(rng *rand.Rand, n int, bounds optimization.Bounds, avoid []float64, radius float64) [][]float64 {
	points := make([][]float64, 0, n)
	for len(points) < n {
		p := make([]float64, len(bounds))
		for i, iv := range bounds {
			p[i] = iv[0] + rng.Float64()*(iv[1]-iv[0])
		}
		if avoid != nil && floats.Distance(p, avoid, 2) <= radius {
			continue
		}
		points = append(points, p)
	}
	return points
}

// Ones returns the all-ones vector, the Rosenbrock optimum.
func Ones(dim int) []float64 {
	x := make([]float64, dim)
	for i := range x {
		x[i] = 1
	}
	return x
}
