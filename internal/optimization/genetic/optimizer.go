// Package genetic implements a binary-encoded genetic algorithm that
// minimizes a black-box objective over a bounded continuous space.
package genetic

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/gaopt/internal/metrics"
	"github.com/copyleftdev/gaopt/internal/optimization"
	"github.com/copyleftdev/gaopt/internal/optimization/encoding"
	"github.com/copyleftdev/gaopt/internal/optimization/objective"
	"github.com/copyleftdev/gaopt/internal/optimization/pool"
)

// State is the driver's position in the generational loop.
type State int

const (
	StateInitializing State = iota
	StateEvaluating
	StateSelecting
	StateReproducing
	StateConverging
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateEvaluating:
		return "evaluating"
	case StateSelecting:
		return "selecting"
	case StateReproducing:
		return "reproducing"
	case StateConverging:
		return "converging"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Optimizer runs the GA. It is single-use: Optimize may be called once.
type Optimizer struct {
	cfg     Config
	enc     *encoding.Encoder
	adapter *objective.Adapter
	pool    *pool.Pool
	rng     *rand.Rand
	logger  *zap.Logger
	metrics *metrics.Metrics
	onGen   func(optimization.GenerationRecord)

	mu          sync.RWMutex
	state       State
	started     bool
	best        *optimization.Solution
	history     []optimization.GenerationRecord
	evaluations int
	cancel      context.CancelFunc
}

var _ optimization.Optimizer = (*Optimizer)(nil)

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger for the driver and its evaluator pool.
func WithLogger(l *zap.Logger) Option {
	return func(o *Optimizer) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records evaluations and generations in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Optimizer) { o.metrics = m }
}

// WithProgress registers fn to receive each generation record as soon as
// the generation completes. fn runs on the optimizing goroutine.
func WithProgress(fn func(optimization.GenerationRecord)) Option {
	return func(o *Optimizer) { o.onGen = fn }
}

// NewOptimizer validates cfg and prepares a run. Configuration problems
// are reported here, before any evaluation.
func NewOptimizer(cfg Config, obj objective.Objective, opts ...Option) (*Optimizer, error) {
	cfg = cfg.withDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, optimization.NewConfigError("genetic", "new optimizer", "objective is required")
	}

	enc, err := encoding.NewEncoder(cfg.Bounds, cfg.Bits)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	o := &Optimizer{
		cfg:     cfg,
		enc:     enc,
		adapter: objective.NewAdapter(obj, objective.WithSentinel(cfg.Sentinel)),
		rng:     rand.New(rand.NewSource(seed)),
		logger:  zap.NewNop(),
		history: make([]optimization.GenerationRecord, 0, cfg.MaxGenerations),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.pool, err = pool.New(cfg.Workers,
		pool.WithTimeout(cfg.EvalTimeout),
		pool.WithLogger(o.logger.Named("pool")),
		pool.WithMetrics(o.metrics),
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Config returns the effective configuration, derived defaults included.
func (o *Optimizer) Config() Config { return o.cfg }

// State returns the current loop state.
func (o *Optimizer) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Optimizer) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Optimize runs generations until MaxGenerations have been evaluated or
// ctx is done. On cancellation it returns the result accumulated so far
// together with the context's error; a partially evaluated generation is
// discarded.
func (o *Optimizer) Optimize(ctx context.Context) (*optimization.OptimizationResult, error) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil, optimization.NewError("optimizer has already run").
			WithComponent("genetic").WithOperation("optimize")
	}
	o.started = true
	ctx, o.cancel = context.WithCancel(ctx)
	o.mu.Unlock()
	defer o.cancel()
	defer o.metrics.RunStarted()()

	start := time.Now()
	o.logger.Debug("Starting GA run",
		zap.Int("dim", o.cfg.Dim),
		zap.Int("bits", o.cfg.Bits),
		zap.Int("pop_size", o.cfg.PopSize),
		zap.Int("max_generations", o.cfg.MaxGenerations),
		zap.Float64("crossover_rate", o.cfg.CrossoverRate),
		zap.Float64("mutation_rate", o.cfg.MutationRate),
		zap.Int("workers", o.cfg.Workers),
	)

	o.setState(StateInitializing)
	pop := Initialize(o.cfg.PopSize, o.enc.Length(), o.rng)

	if err := o.evaluate(ctx, pop); err != nil {
		return o.finish(start, err)
	}
	o.record(0, pop)

	for gen := 1; gen < o.cfg.MaxGenerations; gen++ {
		if err := ctx.Err(); err != nil {
			return o.finish(start, err)
		}

		o.setState(StateSelecting)
		pairs, err := SelectParents(pop, o.rng)
		if err != nil {
			return o.finish(start, err)
		}

		o.setState(StateReproducing)
		next := &Population{Individuals: make([]*Individual, 0, pop.Size())}
		for _, pair := range pairs {
			a, b := Crossover(pair[0], pair[1], o.cfg.CrossoverRate, o.rng)
			Mutate(a, o.cfg.MutationRate, o.rng)
			Mutate(b, o.cfg.MutationRate, o.rng)
			next.Individuals = append(next.Individuals, a, b)
		}

		if err := o.evaluate(ctx, next); err != nil {
			return o.finish(start, err)
		}
		if err := CarryElite(pop, next, o.cfg.EliteCount); err != nil {
			return o.finish(start, err)
		}
		pop = next

		o.setState(StateConverging)
		o.record(gen, pop)
	}

	return o.finish(start, nil)
}

// evaluate decodes and scores every individual of pop. It returns ctx's
// error, leaving pop untouched, if ctx ends while the batch is running.
func (o *Optimizer) evaluate(ctx context.Context, pop *Population) error {
	o.setState(StateEvaluating)

	xs := make([][]float64, pop.Size())
	for i, ind := range pop.Individuals {
		xs[i] = o.enc.Decode(ind.Genome)
	}

	outcomes := o.pool.EvaluateBatch(ctx, o.adapter, xs)
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, ind := range pop.Individuals {
		ind.X = xs[i]
		ind.assign(outcomes[i], o.cfg.Penalty)
	}

	o.mu.Lock()
	o.evaluations += len(xs)
	o.mu.Unlock()
	return nil
}

func (o *Optimizer) record(gen int, pop *Population) {
	best := pop.Best()

	feasible := make([]float64, 0, pop.Size())
	infeasible := 0
	for _, ind := range pop.Individuals {
		if ind.Infeasible {
			infeasible++
			continue
		}
		feasible = append(feasible, ind.Fitness)
	}
	mean := o.cfg.Penalty
	if len(feasible) > 0 {
		mean = stat.Mean(feasible, nil)
	}

	rec := optimization.GenerationRecord{
		Generation:      gen,
		BestValue:       best.Fitness,
		BestParameters:  append([]float64(nil), best.X...),
		MeanValue:       mean,
		InfeasibleCount: infeasible,
	}

	o.mu.Lock()
	if o.best == nil || best.Fitness < o.best.Value {
		o.best = &optimization.Solution{
			Parameters: append([]float64(nil), best.X...),
			Value:      best.Fitness,
			Infeasible: best.Infeasible,
		}
	}
	o.history = append(o.history, rec)
	o.mu.Unlock()

	o.metrics.ObserveGeneration(rec.BestValue)

	log := o.logger.Debug
	if o.cfg.Coordinator {
		log = o.logger.Info
	}
	log("Generation complete",
		zap.Int("generation", gen),
		zap.Float64("best", rec.BestValue),
		zap.Float64s("x", rec.BestParameters),
		zap.Float64("mean", rec.MeanValue),
		zap.Int("infeasible", infeasible),
	)

	if o.onGen != nil {
		o.onGen(rec)
	}
}

func (o *Optimizer) finish(start time.Time, err error) (*optimization.OptimizationResult, error) {
	elapsed := time.Since(start)
	o.setState(StateTerminated)

	o.mu.RLock()
	res := &optimization.OptimizationResult{
		BestSolution: copySolution(o.best),
		History:      append([]optimization.GenerationRecord(nil), o.history...),
		Generations:  len(o.history),
		Evaluations:  o.evaluations,
		Elapsed:      elapsed,
		Converged:    err == nil,
	}
	o.mu.RUnlock()

	if err != nil {
		o.logger.Warn("GA run stopped early",
			zap.Error(err),
			zap.Int("generations", res.Generations),
			zap.Duration("elapsed", elapsed),
		)
		return res, err
	}

	fields := []zap.Field{zap.Int("generations", res.Generations), zap.Duration("elapsed", elapsed)}
	if res.BestSolution != nil {
		fields = append(fields,
			zap.Float64("best", res.BestSolution.Value),
			zap.Float64s("x", res.BestSolution.Parameters))
	}
	o.logger.Debug("GA run finished", fields...)
	return res, nil
}

// GetBestSolution returns the best solution found so far, or nil before
// the first generation completes.
func (o *Optimizer) GetBestSolution() *optimization.Solution {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return copySolution(o.best)
}

// GetHistory returns the generation records so far.
func (o *Optimizer) GetHistory() []optimization.GenerationRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]optimization.GenerationRecord(nil), o.history...)
}

// Stop cancels a running optimization. The run ends at the next
// generation boundary.
func (o *Optimizer) Stop() {
	o.mu.RLock()
	cancel := o.cancel
	o.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

func copySolution(s *optimization.Solution) *optimization.Solution {
	if s == nil {
		return nil
	}
	c := *s
	c.Parameters = append([]float64(nil), s.Parameters...)
	return &c
}

// Solve runs a GA with cfg on obj and returns the best vector, its fitness
// and the wall-clock duration of the run.
func Solve(ctx context.Context, cfg Config, obj objective.Objective, opts ...Option) ([]float64, float64, time.Duration, error) {
	o, err := NewOptimizer(cfg, obj, opts...)
	if err != nil {
		return nil, 0, 0, err
	}
	res, err := o.Optimize(ctx)
	if err != nil {
		return nil, 0, 0, err
	}
	return res.BestSolution.Parameters, res.BestSolution.Value, res.Elapsed, nil
}
