package server

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/copyleftdev/blackbox/internal/optimization"
	"github.com/copyleftdev/blackbox/internal/runner"
)

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

func terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// OptimizationState tracks one submitted request. Fields are guarded by
// Server.optimizationsMu.
type OptimizationState struct {
	ID          string
	Status      string
	Request     runner.Request
	StartTime   time.Time
	EndTime     *time.Time
	Evaluations int
	BestLoss    float64
	Summary     *runner.Summary
	Err         error
	CancelFunc  context.CancelFunc
	LastUpdated time.Time
}

// JobStatus is the wire view of an OptimizationState.
type JobStatus struct {
	ID          string                 `json:"optimization_id"`
	Status      string                 `json:"status"`
	Algorithm   optimization.Algorithm `json:"algorithm"`
	Objective   string                 `json:"objective"`
	Progress    float64                `json:"progress"`
	Evaluations int                    `json:"evaluations"`
	BestLoss    runner.Value           `json:"best_loss"`
	StartTime   time.Time              `json:"start_time"`
	EndTime     *time.Time             `json:"end_time,omitempty"`
	LastUpdate  time.Time              `json:"last_update"`
	Error       string                 `json:"error,omitempty"`
	Result      *runner.Summary        `json:"result,omitempty"`
}

// view snapshots the state; the caller holds the lock. Summaries are only
// attached when full is set.
func (st *OptimizationState) view(full bool) JobStatus {
	js := JobStatus{
		ID:          st.ID,
		Status:      st.Status,
		Algorithm:   st.Request.Algorithm,
		Objective:   st.Request.Objective,
		Evaluations: st.Evaluations,
		BestLoss:    runner.Value(st.BestLoss),
		StartTime:   st.StartTime,
		EndTime:     st.EndTime,
		LastUpdate:  st.LastUpdated,
	}
	if budget := st.Request.Budget(); budget > 0 {
		js.Progress = math.Min(1, float64(st.Evaluations)/float64(budget))
	}
	if st.Status == StatusCompleted {
		js.Progress = 1
	}
	if st.Err != nil {
		js.Error = st.Err.Error()
	}
	if full {
		js.Result = st.Summary
	}
	return js
}

// pruneLocked drops finished jobs older than the retention window.
func (s *Server) pruneLocked(now time.Time) {
	keep := s.cfg.Optimization.Retention
	if keep <= 0 {
		return
	}
	for id, st := range s.optimizations {
		if st.EndTime != nil && now.Sub(*st.EndTime) > keep {
			delete(s.optimizations, id)
		}
	}
}

// list returns every job, oldest first.
func (s *Server) list() []JobStatus {
	s.optimizationsMu.RLock()
	defer s.optimizationsMu.RUnlock()

	out := make([]JobStatus, 0, len(s.optimizations))
	for _, st := range s.optimizations {
		out = append(out, st.view(false))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}
