// Package pool evaluates batches of candidate vectors on a bounded set of
// workers and returns outcomes in input order.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/copyleftdev/gaopt/internal/errors"
	"github.com/copyleftdev/gaopt/internal/metrics"
	"github.com/copyleftdev/gaopt/internal/optimization"
	"github.com/copyleftdev/gaopt/internal/optimization/objective"
)

// Evaluator scores a single vector. *objective.Adapter implements it.
type Evaluator interface {
	Evaluate(x []float64) objective.Outcome
}

// Pool dispatches evaluations to at most Workers goroutines. With one
// worker it evaluates sequentially on the calling goroutine.
type Pool struct {
	workers int
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Pool.
type Option func(*Pool)

// WithTimeout bounds each evaluation. An evaluation that runs longer is
// reported infeasible and its goroutine is abandoned. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) { p.timeout = d }
}

// WithLogger sets the logger used for failed evaluations.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records every evaluation in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// New returns a pool with the given worker count.
func New(workers int, opts ...Option) (*Pool, error) {
	if workers < 1 {
		return nil, optimization.NewConfigError("pool", "new", "worker count must be at least 1, got %d", workers)
	}
	p := &Pool{workers: workers, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	if p.timeout < 0 {
		return nil, optimization.NewConfigError("pool", "new", "evaluation timeout must not be negative, got %s", p.timeout)
	}
	return p, nil
}

// Workers returns the concurrency limit.
func (p *Pool) Workers() int { return p.workers }

// EvaluateBatch scores every vector and returns outcomes aligned by index
// with xs. It blocks until each candidate has an outcome. Failures never
// abort the batch; they come back as infeasible outcomes. Candidates not
// yet started when ctx is done are reported infeasible with ctx's error.
func (p *Pool) EvaluateBatch(ctx context.Context, ev Evaluator, xs [][]float64) []objective.Outcome {
	results := make([]objective.Outcome, len(xs))
	if len(xs) == 0 {
		return results
	}

	if p.workers == 1 {
		for i, x := range xs {
			results[i] = p.evaluate(ctx, ev, i, x)
		}
		return results
	}

	n := p.workers
	if n > len(xs) {
		n = len(xs)
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < n; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = p.evaluate(ctx, ev, i, xs[i])
			}
		}()
	}
	for i := range xs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func (p *Pool) evaluate(ctx context.Context, ev Evaluator, index int, x []float64) objective.Outcome {
	if err := ctx.Err(); err != nil {
		p.metrics.ObserveEvaluation(metrics.OutcomeCancelled, 0)
		return objective.Infeasible(err)
	}

	start := time.Now()
	out := p.run(ctx, ev, x)
	elapsed := time.Since(start)

	p.record(index, x, out, elapsed)
	return out
}

func (p *Pool) run(ctx context.Context, ev Evaluator, x []float64) objective.Outcome {
	if p.timeout <= 0 {
		return ev.Evaluate(x)
	}

	done := make(chan objective.Outcome, 1)
	go func() { done <- ev.Evaluate(x) }()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out
	case <-timer.C:
		return objective.Infeasible(optimization.WrapErrorf(optimization.ErrWorkerTimeout,
			"evaluation exceeded %s", p.timeout).WithComponent("pool"))
	case <-ctx.Done():
		return objective.Infeasible(ctx.Err())
	}
}

func (p *Pool) record(index int, x []float64, out objective.Outcome, elapsed time.Duration) {
	if out.Feasible {
		p.metrics.ObserveEvaluation(metrics.OutcomeFeasible, elapsed)
		return
	}

	fields := []zap.Field{
		zap.Int("index", index),
		zap.Float64s("x", x),
		zap.Duration("elapsed", elapsed),
		zap.Error(out.Err),
	}

	switch {
	case errors.Is(out.Err, objective.ErrUndefined):
		p.metrics.ObserveEvaluation(metrics.OutcomeInfeasible, elapsed)
		p.logger.Debug("Objective undefined at candidate", fields...)
	case errors.Is(out.Err, optimization.ErrWorkerTimeout):
		p.metrics.ObserveEvaluation(metrics.OutcomeTimeout, elapsed)
		p.logger.Warn("Evaluation timed out", append(fields, zap.Duration("timeout", p.timeout))...)
	case errors.Is(out.Err, context.Canceled), errors.Is(out.Err, context.DeadlineExceeded):
		p.metrics.ObserveEvaluation(metrics.OutcomeCancelled, elapsed)
		p.logger.Debug("Evaluation cancelled", fields...)
	default:
		p.metrics.ObserveEvaluation(metrics.OutcomeFailure, elapsed)
		var stackErr *apperrors.Error
		if errors.As(out.Err, &stackErr) {
			fields = append(fields, zap.Strings("stack", stackErr.StackTrace()))
		}
		p.logger.Warn("Evaluation failed", fields...)
	}
}
