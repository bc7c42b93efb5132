package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/copyleftdev/gaopt/internal/config"
	"github.com/copyleftdev/gaopt/internal/logging"
	"github.com/copyleftdev/gaopt/internal/metrics"
	"github.com/copyleftdev/gaopt/internal/optimization"
	"github.com/copyleftdev/gaopt/internal/optimization/genetic"
	"github.com/copyleftdev/gaopt/internal/optimization/objective"
)

// Logger defines the logging interface used by the server
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// DefaultBits is the encoding width used when a request does not set one.
const DefaultBits = 31

var (
	ErrNotFound       = errors.New("optimization not found")
	ErrTooManyJobs    = errors.New("too many active optimizations")
	ErrAlreadyStopped = errors.New("optimization is not running")
	errMissingParams  = errors.New("missing required parameters")
)

// OptimizeRequest starts a GA run on one of the built-in benchmarks. Zero
// fields fall back to the server's GA and problem configuration.
type OptimizeRequest struct {
	Objective      string      `json:"objective,omitempty"`
	Dim            int         `json:"dim,omitempty"`
	Bits           int         `json:"bits,omitempty"`
	Bounds         [][]float64 `json:"bounds,omitempty"`
	PopSize        int         `json:"pop_size,omitempty"`
	MaxGenerations int         `json:"max_generations,omitempty"`
	CrossoverRate  *float64    `json:"crossover_rate,omitempty"`
	MutationRate   float64     `json:"mutation_rate,omitempty"`
	EliteCount     *int        `json:"elite_count,omitempty"`
	Seed           int64       `json:"seed,omitempty"`
	Workers        int         `json:"workers,omitempty"`
	NaNPoints      *int        `json:"nan_points,omitempty"`
	NaNRange       *float64    `json:"nan_range,omitempty"`
}

// OptimizationState represents the state of an optimization job. It is
// guarded by the server's optimizationsMu.
type OptimizationState struct {
	ID           string
	Status       string
	Seed         int64
	StartTime    time.Time
	EndTime      *time.Time
	Progress     float64
	Generation   int
	BestSolution *optimization.Solution
	Err          error
	Optimizer    *genetic.Optimizer
	CancelFunc   context.CancelFunc
	LastUpdated  time.Time
}

func (st *OptimizationState) active() bool {
	return st.Status == StatusPending || st.Status == StatusRunning
}

// SolutionView is the wire form of a solution.
type SolutionView struct {
	Parameters []float64 `json:"parameters"`
	Value      float64   `json:"value"`
	Infeasible bool      `json:"infeasible,omitempty"`
}

// GenerationView is the wire form of a generation record.
type GenerationView struct {
	Generation      int       `json:"generation"`
	BestValue       float64   `json:"best_value"`
	BestParameters  []float64 `json:"best_parameters"`
	MeanValue       float64   `json:"mean_value"`
	InfeasibleCount int       `json:"infeasible_count"`
}

// StatusResponse describes a job.
type StatusResponse struct {
	ID           string           `json:"optimization_id"`
	Status       string           `json:"status"`
	Progress     float64          `json:"progress"`
	Generation   int              `json:"generation"`
	Seed         int64            `json:"seed"`
	StartTime    string           `json:"start_time"`
	LastUpdate   string           `json:"last_update"`
	EndTime      string           `json:"end_time,omitempty"`
	Error        string           `json:"error,omitempty"`
	BestSolution *SolutionView    `json:"best_solution,omitempty"`
	History      []GenerationView `json:"history,omitempty"`
}

// StartResponse is returned when a job is accepted.
type StartResponse struct {
	ID     string `json:"optimization_id"`
	Status string `json:"status"`
}

// Server implements the HTTP and JSON-RPC front end of the optimizer. It
// runs each accepted request as a background GA job.
type Server struct {
	cfg     *config.Config
	logger  Logger
	metrics *metrics.Metrics
	seq     uint64

	optimizations   map[string]*OptimizationState
	optimizationsMu sync.RWMutex
	wg              sync.WaitGroup
}

// NewServer creates a new server instance. m may be nil.
func NewServer(cfg *config.Config, logger Logger, m *metrics.Metrics) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		metrics:       m,
		optimizations: make(map[string]*OptimizationState),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimize", s.handleOptimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleCancel)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// Start validates req and launches the run in the background.
func (s *Server) Start(req OptimizeRequest) (*StartResponse, error) {
	gc, obj, err := s.buildRun(req)
	if err != nil {
		return nil, err
	}

	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()

	active := 0
	for _, st := range s.optimizations {
		if st.active() {
			active++
		}
	}
	if s.cfg.Optimization.MaxJobs > 0 && active >= s.cfg.Optimization.MaxJobs {
		return nil, ErrTooManyJobs
	}

	id := fmt.Sprintf("opt_%d_%d", time.Now().UnixNano(), atomic.AddUint64(&s.seq, 1))
	now := time.Now()
	state := &OptimizationState{
		ID:          id,
		Status:      StatusPending,
		Seed:        gc.Seed,
		StartTime:   now,
		LastUpdated: now,
	}

	jobLogger := s.logger.WithFields(map[string]interface{}{"optimization_id": id})
	opt, err := genetic.NewOptimizer(gc, obj,
		genetic.WithLogger(logging.NewZapLogger(jobLogger)),
		genetic.WithMetrics(s.metrics),
		genetic.WithProgress(func(rec optimization.GenerationRecord) { s.onGeneration(state, gc.MaxGenerations, rec) }),
	)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	state.Optimizer = opt
	state.CancelFunc = cancel
	s.optimizations[id] = state

	s.wg.Add(1)
	go s.runOptimization(ctx, state)

	s.logger.Info("Optimization accepted", map[string]interface{}{
		"optimization_id": id,
		"dim":             gc.Dim,
		"bits":            gc.Bits,
		"seed":            gc.Seed,
	})
	return &StartResponse{ID: id, Status: StatusPending}, nil
}

// buildRun merges req over the configured defaults.
func (s *Server) buildRun(req OptimizeRequest) (genetic.Config, objective.Objective, error) {
	bounds, err := s.requestBounds(req)
	if err != nil {
		return genetic.Config{}, nil, err
	}

	bits := req.Bits
	if bits == 0 {
		bits = DefaultBits
	}
	gc := genetic.DefaultConfig(bounds, bits)
	gc.PopSize = s.cfg.GA.PopSize
	gc.MaxGenerations = s.cfg.GA.MaxGenerations
	gc.CrossoverRate = s.cfg.GA.CrossoverRate
	gc.MutationRate = s.cfg.GA.MutationRate
	gc.EliteCount = s.cfg.GA.EliteCount
	gc.Penalty = s.cfg.GA.Penalty
	gc.Seed = s.cfg.GA.Seed
	gc.Workers = s.cfg.Optimization.WorkerCount
	gc.EvalTimeout = s.cfg.Optimization.EvalTimeout
	gc.Coordinator = false

	if req.PopSize != 0 {
		gc.PopSize = req.PopSize
	}
	if req.MaxGenerations != 0 {
		gc.MaxGenerations = req.MaxGenerations
	}
	if req.CrossoverRate != nil {
		gc.CrossoverRate = *req.CrossoverRate
	}
	if req.MutationRate != 0 {
		gc.MutationRate = req.MutationRate
	}
	if req.EliteCount != nil {
		gc.EliteCount = *req.EliteCount
	}
	if req.Seed != 0 {
		gc.Seed = req.Seed
	}
	if req.Workers != 0 {
		gc.Workers = req.Workers
	}
	if gc.Seed == 0 {
		gc.Seed = time.Now().UnixNano()
	}

	bc := objective.BenchmarkConfig{
		Name:      req.Objective,
		Bounds:    bounds,
		NaNPoints: s.cfg.Problem.NaNPoints,
		NaNRange:  s.cfg.Problem.NaNRange,
		Delay:     s.cfg.Problem.Delay,
		Seed:      gc.Seed,
	}
	if req.NaNPoints != nil {
		bc.NaNPoints = *req.NaNPoints
	}
	if req.NaNRange != nil {
		bc.NaNRange = *req.NaNRange
	}
	obj, err := objective.NewBenchmark(bc)
	if err != nil {
		return genetic.Config{}, nil, err
	}
	return gc, obj, nil
}

func (s *Server) requestBounds(req OptimizeRequest) (optimization.Bounds, error) {
	if len(req.Bounds) == 0 {
		dim := req.Dim
		if dim == 0 {
			dim = 2
		}
		if dim < 0 {
			return nil, optimization.NewConfigError("server", "start", "dim must be positive, got %d", dim)
		}
		return optimization.Uniform(dim, s.cfg.Problem.Lower, s.cfg.Problem.Upper), nil
	}

	if req.Dim != 0 && req.Dim != len(req.Bounds) {
		return nil, optimization.NewConfigError("server", "start", "dim %d does not match %d bounds", req.Dim, len(req.Bounds))
	}
	bounds := make(optimization.Bounds, len(req.Bounds))
	for i, b := range req.Bounds {
		if len(b) != 2 {
			return nil, optimization.NewConfigError("server", "start", "invalid bounds format, expected [[min1, max1], [min2, max2], ...]")
		}
		bounds[i] = [2]float64{b[0], b[1]}
	}
	return bounds, nil
}

func (s *Server) onGeneration(state *OptimizationState, maxGen int, rec optimization.GenerationRecord) {
	best := state.Optimizer.GetBestSolution()

	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()
	state.Generation = rec.Generation
	state.Progress = float64(rec.Generation+1) / float64(maxGen)
	state.BestSolution = best
	state.LastUpdated = time.Now()
}

// runOptimization executes the optimization process in a goroutine
func (s *Server) runOptimization(ctx context.Context, state *OptimizationState) {
	defer s.wg.Done()

	s.optimizationsMu.Lock()
	if state.Status == StatusPending {
		state.Status = StatusRunning
	}
	s.optimizationsMu.Unlock()

	result, err := state.Optimizer.Optimize(ctx)

	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()

	if result != nil {
		state.BestSolution = result.BestSolution
	}
	switch {
	case state.Status == StatusCancelled:
	case err == nil:
		state.Status = StatusCompleted
		state.Progress = 1
	case errors.Is(err, context.Canceled):
		state.Status = StatusCancelled
	default:
		state.Status = StatusFailed
		state.Err = err
		s.logger.Error("Optimization failed", map[string]interface{}{
			"optimization_id": state.ID,
			"error":           err.Error(),
		})
	}

	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now

	fields := map[string]interface{}{
		"optimization_id": state.ID,
		"status":          state.Status,
		"elapsed":         now.Sub(state.StartTime).String(),
	}
	if state.BestSolution != nil {
		fields["best"] = state.BestSolution.Value
		fields["x"] = state.BestSolution.Parameters
	}
	s.logger.Info("Optimization finished", fields)
}

// Status reports on the job with the given id.
func (s *Server) Status(id string) (*StatusResponse, error) {
	s.optimizationsMu.RLock()
	defer s.optimizationsMu.RUnlock()

	state, exists := s.optimizations[id]
	if !exists {
		return nil, ErrNotFound
	}

	resp := &StatusResponse{
		ID:         state.ID,
		Status:     state.Status,
		Progress:   state.Progress,
		Generation: state.Generation,
		Seed:       state.Seed,
		StartTime:  state.StartTime.Format(time.RFC3339),
		LastUpdate: state.LastUpdated.Format(time.RFC3339),
	}
	if state.EndTime != nil {
		resp.EndTime = state.EndTime.Format(time.RFC3339)
	}
	if state.Err != nil {
		resp.Error = state.Err.Error()
	}
	if state.BestSolution != nil {
		resp.BestSolution = &SolutionView{
			Parameters: state.BestSolution.Parameters,
			Value:      state.BestSolution.Value,
			Infeasible: state.BestSolution.Infeasible,
		}
	}
	for _, rec := range state.Optimizer.GetHistory() {
		resp.History = append(resp.History, GenerationView{
			Generation:      rec.Generation,
			BestValue:       rec.BestValue,
			BestParameters:  rec.BestParameters,
			MeanValue:       rec.MeanValue,
			InfeasibleCount: rec.InfeasibleCount,
		})
	}
	return resp, nil
}

// Cancel stops a pending or running job. The run ends at its next
// generation boundary.
func (s *Server) Cancel(id string) error {
	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()

	state, exists := s.optimizations[id]
	if !exists {
		return ErrNotFound
	}
	if !state.active() {
		return fmt.Errorf("%w: status %s", ErrAlreadyStopped, state.Status)
	}

	state.Optimizer.Stop()
	if state.CancelFunc != nil {
		state.CancelFunc()
	}

	state.Status = StatusCancelled
	state.LastUpdated = time.Now()

	s.logger.Info("Optimization cancelled", map[string]interface{}{
		"optimization_id": id,
	})
	return nil
}

// Close cancels all running jobs and waits for them to stop.
func (s *Server) Close() error {
	s.optimizationsMu.Lock()
	for _, opt := range s.optimizations {
		if opt.CancelFunc != nil {
			opt.CancelFunc()
		}
	}
	s.optimizationsMu.Unlock()

	s.wg.Wait()
	return nil
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type idParams struct {
	ID string `json:"optimization_id"`
}

// decodeParams accepts either a params object or a one-element array
// holding it.
func decodeParams(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return errMissingParams
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			return errMissingParams
		}
		raw = list[0]
	}
	return json.Unmarshal(raw, v)
}

func decodeID(raw json.RawMessage) (string, error) {
	var p idParams
	if err := decodeParams(raw, &p); err != nil {
		return "", err
	}
	if p.ID == "" {
		return "", errors.New("optimization_id is required")
	}
	return p.ID, nil
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, -32700, "Parse error", nil)
		return
	}
	if request.JSONRPC != "2.0" {
		s.respondWithError(w, -32600, "Invalid Request", request.ID)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "optimization.start":
		var req OptimizeRequest
		if err = decodeParams(request.Params, &req); err != nil {
			s.respondWithError(w, -32602, "Invalid params: "+err.Error(), request.ID)
			return
		}
		result, err = s.Start(req)
	case "optimization.status":
		var id string
		if id, err = decodeID(request.Params); err != nil {
			s.respondWithError(w, -32602, "Invalid params: "+err.Error(), request.ID)
			return
		}
		result, err = s.Status(id)
	case "optimization.cancel":
		var id string
		if id, err = decodeID(request.Params); err != nil {
			s.respondWithError(w, -32602, "Invalid params: "+err.Error(), request.ID)
			return
		}
		if err = s.Cancel(id); err == nil {
			result = map[string]string{"status": "cancellation requested"}
		}
	default:
		s.respondWithError(w, -32601, "Method not found", request.ID)
		return
	}

	if err != nil {
		code := -32000
		if optimization.IsConfigurationError(err) {
			code = -32602
		}
		s.respondWithError(w, code, err.Error(), request.ID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("RPC request failed", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]interface{}{"error": err.Error()})
}

// handleOptimize handles POST /api/v1/optimize.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	result, err := s.Start(req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, result)
	case optimization.IsConfigurationError(err):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, ErrTooManyJobs):
		writeError(w, http.StatusTooManyRequests, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

// handleStatus handles GET /api/v1/status/{id}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.Status(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCancel handles DELETE /api/v1/optimization/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	err := s.Cancel(chi.URLParam(r, "id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancellation requested"})
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusConflict, err)
	}
}
