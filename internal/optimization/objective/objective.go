// Package objective wraps external objective functions so that undefined
// results reach the optimizer as an explicit infeasible outcome.
package objective

import (
	"errors"
	"fmt"
	"math"

	apperrors "github.com/copyleftdev/gaopt/internal/errors"
	"github.com/copyleftdev/gaopt/internal/optimization"
)

// DefaultSentinel is the value objectives return to flag an undefined point.
const DefaultSentinel = 1e27

// ErrUndefined marks a point where the objective returned a non-finite or
// sentinel value, as opposed to failing outright.
var ErrUndefined = errors.New("objective undefined")

// Objective is a scalar function of a design vector.
type Objective interface {
	Evaluate(x []float64) (float64, error)
}

// Func adapts an ordinary function to the Objective interface.
type Func func(x []float64) (float64, error)

// Evaluate calls f(x).
func (f Func) Evaluate(x []float64) (float64, error) { return f(x) }

// Outcome is the result of one evaluation: either a finite value or an
// infeasible marker. Err records why a point was infeasible.
type Outcome struct {
	Value    float64
	Feasible bool
	Err      error
}

// Value returns a feasible outcome.
func Value(f float64) Outcome { return Outcome{Value: f, Feasible: true} }

// Infeasible returns an infeasible outcome caused by err.
func Infeasible(err error) Outcome { return Outcome{Err: err} }

// Fitness returns the outcome as a number, substituting penalty for
// infeasible outcomes.
func (o Outcome) Fitness(penalty float64) float64 {
	if !o.Feasible {
		return penalty
	}
	return o.Value
}

// Adapter normalizes an Objective's failure signals into Infeasible
// outcomes. It does not cache.
type Adapter struct {
	obj      Objective
	sentinel float64
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithSentinel sets the threshold at or above which a result is treated as
// infeasible. Large negative values stay feasible. A value <= 0 disables the sentinel check.
func WithSentinel(v float64) AdapterOption {
	return func(a *Adapter) { a.sentinel = v }
}

// NewAdapter wraps obj.
func NewAdapter(obj Objective, opts ...AdapterOption) *Adapter {
	a := &Adapter{obj: obj, sentinel: DefaultSentinel}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Evaluate calls the wrapped objective at x. Returned errors, panics,
// non-finite values and sentinel values all yield an Infeasible outcome
// whose Err wraps optimization.ErrEvaluationFailure.
func (a *Adapter) Evaluate(x []float64) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			panicErr := apperrors.Errorf("objective panicked: %v", r).
				WithComponent("objective").
				WithOperation("evaluate")
			out = Infeasible(fmt.Errorf("%w: %w", optimization.ErrEvaluationFailure, panicErr))
		}
	}()

	f, err := a.obj.Evaluate(x)
	if err != nil {
		return Infeasible(fmt.Errorf("%w: %w", optimization.ErrEvaluationFailure, err))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Infeasible(fmt.Errorf("%w: %w: non-finite value %v", optimization.ErrEvaluationFailure, ErrUndefined, f))
	}
	if a.sentinel > 0 && f >= a.sentinel {
		return Infeasible(fmt.Errorf("%w: %w: sentinel value %g", optimization.ErrEvaluationFailure, ErrUndefined, f))
	}
	return Value(f)
}
