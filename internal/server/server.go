// Package server exposes optimisation runs over HTTP: a JSON-RPC 2.0
// endpoint and a small REST API over the same job table.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/copyleftdev/blackbox/internal/config"
	apierrors "github.com/copyleftdev/blackbox/internal/errors"
	"github.com/copyleftdev/blackbox/internal/logging"
	"github.com/copyleftdev/blackbox/internal/optimization"
	"github.com/copyleftdev/blackbox/internal/optimization/objectives"
	"github.com/copyleftdev/blackbox/internal/runner"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Server implements the HTTP and JSON-RPC server for the optimization service.
// It manages optimization jobs and provides endpoints to start, monitor, and cancel them.
type Server struct {
	cfg    *config.Config
	logger Logger
	runner *runner.Runner

	// Optimization state management
	optimizations   map[string]*OptimizationState
	optimizationsMu sync.RWMutex // Protects the optimizations map and running
	running         int

	seq atomic.Uint64
	wg  sync.WaitGroup
}

// LimitsFromConfig maps the optimisation settings onto runner limits.
func LimitsFromConfig(cfg *config.Config) runner.Limits {
	return runner.Limits{
		MaxEvaluations: cfg.Optimization.MaxEvaluations,
		MaxDim:         cfg.Optimization.MaxDim,
		DefaultSeed:    cfg.Optimization.DefaultSeed,
	}
}

// NewServer creates a new server instance. Runs are executed by r.
func NewServer(cfg *config.Config, logger Logger, r *runner.Runner) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		runner:        r,
		optimizations: make(map[string]*OptimizationState),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimize", s.handleOptimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleCancel)
		r.Get("/optimizations", s.handleList)
		r.Get("/catalog", s.handleCatalog)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type idParams struct {
	OptimizationID string `json:"optimization_id"`
}

// decodeParams accepts params as an object or a one-element array holding
// the object.
func decodeParams(raw json.RawMessage, dst interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return apierrors.New(apierrors.CodeInvalidParams, "missing required parameters")
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil || len(list) != 1 {
			return apierrors.New(apierrors.CodeInvalidParams, "params must be an object or a one-element array")
		}
		raw = list[0]
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apierrors.Wrap(apierrors.New(apierrors.CodeInvalidParams, err.Error()), "invalid params")
	}
	return nil
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, apierrors.CodeParseError, "Parse error", nil)
		return
	}

	// Validate JSON-RPC 2.0 request
	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, apierrors.CodeInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "optimization.start":
		var req runner.Request
		if err = decodeParams(request.Params, &req); err == nil {
			result, err = s.start(req)
		}
	case "optimization.status":
		var p idParams
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.status(p.OptimizationID)
		}
	case "optimization.cancel":
		var p idParams
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.cancel(p.OptimizationID)
		}
	case "optimization.list":
		result = s.list()
	case "optimization.catalog":
		result = catalog()
	default:
		s.respondWithError(w, apierrors.CodeMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		s.respondWithError(w, apierrors.CodeOf(err), err.Error(), request.ID)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code apierrors.Code, message string, id interface{}) {
	s.logger.Warn("Request error", map[string]interface{}{
		"code":    int(code),
		"message": message,
	})

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

// start validates req, reserves a run slot and launches the run.
func (s *Server) start(req runner.Request) (map[string]interface{}, error) {
	resolved, err := s.runner.Prepare(req)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	id := fmt.Sprintf("opt_%d_%d", now.UnixNano(), s.seq.Add(1))

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout := s.cfg.Optimization.JobTimeout; timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	state := &OptimizationState{
		ID:          id,
		Status:      StatusPending,
		Request:     resolved,
		StartTime:   now,
		BestLoss:    math.Inf(1),
		CancelFunc:  cancel,
		LastUpdated: now,
	}

	s.optimizationsMu.Lock()
	s.pruneLocked(now)
	if n := s.running; n >= s.cfg.Optimization.MaxJobs {
		s.optimizationsMu.Unlock()
		cancel()
		return nil, apierrors.Errorf(apierrors.CodeBusy, "%d optimisations already running", n)
	}
	s.running++
	s.optimizations[id] = state
	s.optimizationsMu.Unlock()

	s.logger.Info("Optimization started", map[string]interface{}{
		"optimization_id": id,
		"algorithm":       string(resolved.Algorithm),
		"objective":       resolved.Objective,
	})

	s.wg.Add(1)
	go s.runOptimization(ctx, state)

	return map[string]interface{}{
		"optimization_id": id,
		"status":          StatusPending,
	}, nil
}

// runOptimization executes the optimization process in a goroutine
// runGuarded turns a panic inside a run into a failed job.
func (s *Server) runGuarded(ctx context.Context, req runner.Request, progress runner.Progress) (summary *runner.Summary, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = apierrors.Errorf(apierrors.CodeInternal, "optimisation panicked: %v", p)
		}
	}()
	return s.runner.Run(ctx, req, progress)
}

func (s *Server) runOptimization(ctx context.Context, state *OptimizationState) {
	defer s.wg.Done()
	defer state.CancelFunc()

	s.optimizationsMu.Lock()
	if state.Status == StatusPending {
		state.Status = StatusRunning
		state.LastUpdated = time.Now()
	}
	req := state.Request
	s.optimizationsMu.Unlock()

	summary, err := s.runGuarded(ctx, req, func(n int, best float64) {
		s.optimizationsMu.Lock()
		state.Evaluations = n
		state.BestLoss = best
		state.LastUpdated = time.Now()
		s.optimizationsMu.Unlock()
	})

	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()
	s.running--

	now := time.Now()
	state.LastUpdated = now
	if state.EndTime == nil {
		state.EndTime = &now
	}

	switch {
	case state.Status == StatusCancelled:
	case err != nil && apierrors.CodeOf(err) == apierrors.CodeCancelled:
		state.Status = StatusCancelled
		state.Err = err
	case err != nil:
		s.logger.Error("Optimization failed", map[string]interface{}{
			"optimization_id": state.ID,
			"error":           err.Error(),
		})
		state.Status = StatusFailed
		state.Err = err
	default:
		state.Status = StatusCompleted
		state.Summary = summary
		state.Evaluations = summary.Evaluations
		state.BestLoss = float64(summary.Loss)
	}
}

func (s *Server) status(id string) (JobStatus, error) {
	if id == "" {
		return JobStatus{}, apierrors.New(apierrors.CodeInvalidParams, "optimization_id is required")
	}
	s.optimizationsMu.RLock()
	defer s.optimizationsMu.RUnlock()

	state, ok := s.optimizations[id]
	if !ok {
		return JobStatus{}, apierrors.Errorf(apierrors.CodeNotFound, "optimization %q not found", id)
	}
	return state.view(true), nil
}

func (s *Server) cancel(id string) (map[string]interface{}, error) {
	if id == "" {
		return nil, apierrors.New(apierrors.CodeInvalidParams, "optimization_id is required")
	}
	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()

	state, ok := s.optimizations[id]
	if !ok {
		return nil, apierrors.Errorf(apierrors.CodeNotFound, "optimization %q not found", id)
	}
	if terminal(state.Status) {
		return nil, apierrors.Errorf(apierrors.CodeConflict, "cannot cancel optimization with status: %s", state.Status)
	}

	state.CancelFunc()
	now := time.Now()
	state.Status = StatusCancelled
	state.EndTime = &now
	state.LastUpdated = now

	s.logger.Info("Optimization cancelled", map[string]interface{}{
		"optimization_id": id,
	})
	return map[string]interface{}{
		"optimization_id": id,
		"status":          StatusCancelled,
	}, nil
}

// ObjectiveInfo describes a catalogued objective.
type ObjectiveInfo struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Dim         int          `json:"default_dim"`
	Bounds      [][2]float64 `json:"bounds"`
	Gradient    bool         `json:"gradient"`
	Minimum     []float64    `json:"known_minimum,omitempty"`
}

// Catalog lists what a request may name.
type Catalog struct {
	Algorithms []optimization.Algorithm `json:"algorithms"`
	Objectives []ObjectiveInfo          `json:"objectives"`
}

func catalog() Catalog {
	c := Catalog{Algorithms: optimization.Algorithms()}
	for _, name := range objectives.Names() {
		obj, err := objectives.Lookup(name, 0)
		if err != nil {
			continue
		}
		c.Objectives = append(c.Objectives, ObjectiveInfo{
			Name:        name,
			Description: obj.Description,
			Dim:         len(obj.Bounds),
			Bounds:      obj.Bounds,
			Gradient:    obj.Gradient != nil,
			Minimum:     obj.Minimum,
		})
	}
	return c
}

// Close cancels every running optimisation and waits for them to stop.
func (s *Server) Close() error {
	s.optimizationsMu.Lock()
	for _, opt := range s.optimizations {
		if !terminal(opt.Status) && opt.CancelFunc != nil {
			opt.CancelFunc()
		}
	}
	s.optimizationsMu.Unlock()

	s.wg.Wait()
	return nil
}

// handleOptimize handles POST /api/v1/optimize. The body is a request.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	req, err := runner.DecodeRequest(r.Body, "json")
	if err != nil {
		apierrors.WriteJSON(w, apierrors.Wrap(apierrors.New(apierrors.CodeInvalidParams, err.Error()), "Invalid request body"))
		return
	}

	result, err := s.start(req)
	if err != nil {
		apierrors.WriteJSON(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, result)
}

// handleStatus handles GET /api/v1/status/{id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.status(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteJSON(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleCancel handles DELETE /api/v1/optimization/{id}
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	result, err := s.cancel(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteJSON(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.list())
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, catalog())
}
