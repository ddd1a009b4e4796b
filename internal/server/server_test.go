package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/blackbox/internal/config"
	apierrors "github.com/copyleftdev/blackbox/internal/errors"
	"github.com/copyleftdev/blackbox/internal/logging"
	"github.com/copyleftdev/blackbox/internal/runner"
)

// testConfig creates a test configuration with default values
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Environment: "test",
	}

	cfg.HTTP.Port = 8080
	cfg.HTTP.ReadTimeout = 30 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second
	cfg.HTTP.IdleTimeout = 120 * time.Second
	cfg.HTTP.ShutdownTimeout = 30 * time.Second

	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "text"
	cfg.Logging.Output = "discard"

	cfg.Optimization.MaxJobs = 3
	cfg.Optimization.MaxEvaluations = 1_000_000
	cfg.Optimization.MaxDim = 10
	cfg.Optimization.JobTimeout = time.Minute
	cfg.Optimization.Retention = time.Hour

	return cfg
}

// testLogger creates a test logger
func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.NewLogger(&logging.Config{
		Level:  "debug",
		Format: "text",
		Output: "discard",
	})
	require.NoError(t, err)
	return logger
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, http.Handler) {
	t.Helper()
	srv := NewServer(cfg, testLogger(t), runner.New(runner.WithLimits(LimitsFromConfig(cfg))))
	t.Cleanup(func() { _ = srv.Close() })
	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	return srv, r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, rd))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out), rr.Body.String())
	return out
}

func rpc(t *testing.T, h http.Handler, method string, params interface{}) map[string]interface{} {
	t.Helper()
	req := map[string]interface{}{"jsonrpc": "2.0", "id": 7, "method": method}
	if params != nil {
		req["params"] = params
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	rr := do(t, h, http.MethodPost, "/rpc", string(body))
	require.Equal(t, http.StatusOK, rr.Code)
	return decode(t, rr)
}

// longRequest runs for seconds unless cancelled.
const longRequest = `{"algorithm":"random","objective":"drone-pid","iterations":500000,"seed":1}`

func TestRegisterRoutes(t *testing.T) {
	_, r := newTestServer(t, testConfig(t))

	tests := []struct {
		method      string
		path        string
		shouldExist bool
	}{
		{"POST", "/api/v1/optimize", true},
		{"GET", "/api/v1/status/123", true},
		{"DELETE", "/api/v1/optimization/123", true},
		{"GET", "/api/v1/optimizations", true},
		{"GET", "/api/v1/catalog", true},
		{"POST", "/rpc", true},
		{"GET", "/healthz", false},
		{"GET", "/nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := do(t, r, tt.method, tt.path, "")
			// handlers answer unknown ids with a JSON body; only the router
			// answers with plain text
			routed := rr.Code != http.StatusNotFound || strings.Contains(rr.Header().Get("Content-Type"), "json")
			assert.Equal(t, tt.shouldExist, routed)
		})
	}
}

func TestOptimizeLifecycle(t *testing.T) {
	_, r := newTestServer(t, testConfig(t))

	rr := do(t, r, http.MethodPost, "/api/v1/optimize",
		`{"algorithm":"grid","objective":"sphere","bounds":[[-1,1],[-1,1]],"divisions":5}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	id, _ := decode(t, rr)["optimization_id"].(string)
	require.NotEmpty(t, id)

	var status map[string]interface{}
	require.Eventually(t, func() bool {
		rr := do(t, r, http.MethodGet, "/api/v1/status/"+id, "")
		if rr.Code != http.StatusOK {
			return false
		}
		status = decode(t, rr)
		return status["status"] == StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1.0, status["progress"])
	assert.Equal(t, 25.0, status["evaluations"])
	assert.Equal(t, 0.0, status["best_loss"])
	result, ok := status["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{0.0, 0.0}, result["theta"])

	rr = do(t, r, http.MethodGet, "/api/v1/optimizations", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0]["optimization_id"])
	assert.Nil(t, list[0]["result"])

	// finished jobs cannot be cancelled
	rr = do(t, r, http.MethodDelete, "/api/v1/optimization/"+id, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestOptimizeRejectsBadRequests(t *testing.T) {
	_, r := newTestServer(t, testConfig(t))

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"algorithm":`},
		{"unknown field", `{"algorithm":"grid","objective":"sphere","colour":"red"}`},
		{"unknown algorithm", `{"algorithm":"bogus","objective":"sphere"}`},
		{"unknown objective", `{"algorithm":"grid","objective":"bogus"}`},
		{"too many dimensions", `{"algorithm":"random","objective":"sphere","dim":50}`},
		{"overflowing genetic budget", `{"algorithm":"genetic","objective":"sphere","population":4294967296,"iterations":4294967296}`},
		{"overflowing bayes budget", `{"algorithm":"bayes","objective":"sphere","initial":9223372036854775807,"iterations":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, r, http.MethodPost, "/api/v1/optimize", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.Equal(t, float64(apierrors.CodeInvalidParams), decode(t, rr)["code"])
		})
	}
}

func TestStatusNotFound(t *testing.T) {
	_, r := newTestServer(t, testConfig(t))
	rr := do(t, r, http.MethodGet, "/api/v1/status/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, float64(apierrors.CodeNotFound), decode(t, rr)["code"])
}

func TestCancel(t *testing.T) {
	srv, r := newTestServer(t, testConfig(t))

	rr := do(t, r, http.MethodPost, "/api/v1/optimize", longRequest)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	id := decode(t, rr)["optimization_id"].(string)

	rr = do(t, r, http.MethodDelete, "/api/v1/optimization/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, StatusCancelled, decode(t, rr)["status"])

	require.NoError(t, srv.Close())
	st, err := srv.status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, st.Status)
	assert.NotNil(t, st.EndTime)
	assert.Nil(t, st.Result)

	rr = do(t, r, http.MethodDelete, "/api/v1/optimization/"+id, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestMaxJobs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Optimization.MaxJobs = 1
	srv, r := newTestServer(t, cfg)

	rr := do(t, r, http.MethodPost, "/api/v1/optimize", longRequest)
	require.Equal(t, http.StatusAccepted, rr.Code)

	rr = do(t, r, http.MethodPost, "/api/v1/optimize", longRequest)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, float64(apierrors.CodeBusy), decode(t, rr)["code"])

	require.NoError(t, srv.Close())
	assert.Len(t, srv.list(), 1)
}

func TestJobTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.Optimization.JobTimeout = 20 * time.Millisecond
	srv, r := newTestServer(t, cfg)

	rr := do(t, r, http.MethodPost, "/api/v1/optimize", longRequest)
	require.Equal(t, http.StatusAccepted, rr.Code)
	id := decode(t, rr)["optimization_id"].(string)

	require.Eventually(t, func() bool {
		st, err := srv.status(id)
		return err == nil && st.Status == StatusCancelled
	}, 5*time.Second, 10*time.Millisecond)

	st, err := srv.status(id)
	require.NoError(t, err)
	assert.Contains(t, st.Error, "deadline exceeded")
}

func TestPrune(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(t))
	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now()
	srv.optimizations["old"] = &OptimizationState{ID: "old", Status: StatusCompleted, EndTime: &old}
	srv.optimizations["new"] = &OptimizationState{ID: "new", Status: StatusCompleted, EndTime: &recent}
	srv.optimizations["live"] = &OptimizationState{ID: "live", Status: StatusRunning}

	srv.pruneLocked(time.Now())
	assert.NotContains(t, srv.optimizations, "old")
	assert.Contains(t, srv.optimizations, "new")
	assert.Contains(t, srv.optimizations, "live")
}

func TestCatalog(t *testing.T) {
	_, r := newTestServer(t, testConfig(t))
	rr := do(t, r, http.MethodGet, "/api/v1/catalog", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var c Catalog
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&c))
	assert.Len(t, c.Algorithms, 7)
	names := make([]string, len(c.Objectives))
	for i, o := range c.Objectives {
		names[i] = o.Name
		if o.Name == "drone-pid" {
			assert.Equal(t, 3, o.Dim)
			assert.False(t, o.Gradient)
		}
	}
	assert.Contains(t, names, "rosenbrock")
	assert.Contains(t, names, "drone-pid")
	assert.Contains(t, names, "attractor")
}

func TestJSONRPC(t *testing.T) {
	_, r := newTestServer(t, testConfig(t))

	t.Run("parse error", func(t *testing.T) {
		rr := do(t, r, http.MethodPost, "/rpc", `{"jsonrpc":`)
		errObj := decode(t, rr)["error"].(map[string]interface{})
		assert.Equal(t, float64(apierrors.CodeParseError), errObj["code"])
	})

	t.Run("invalid request", func(t *testing.T) {
		resp := rpc(t, r, "", nil)
		errObj := resp["error"].(map[string]interface{})
		assert.Equal(t, float64(apierrors.CodeInvalidRequest), errObj["code"])
	})

	t.Run("method not found", func(t *testing.T) {
		resp := rpc(t, r, "optimization.explode", nil)
		errObj := resp["error"].(map[string]interface{})
		assert.Equal(t, float64(apierrors.CodeMethodNotFound), errObj["code"])
		assert.Equal(t, 7.0, resp["id"])
	})

	t.Run("missing params", func(t *testing.T) {
		resp := rpc(t, r, "optimization.start", nil)
		errObj := resp["error"].(map[string]interface{})
		assert.Equal(t, float64(apierrors.CodeInvalidParams), errObj["code"])
	})

	t.Run("status not found", func(t *testing.T) {
		resp := rpc(t, r, "optimization.status", map[string]string{"optimization_id": "nope"})
		errObj := resp["error"].(map[string]interface{})
		assert.Equal(t, float64(apierrors.CodeNotFound), errObj["code"])
	})

	t.Run("start and status", func(t *testing.T) {
		resp := rpc(t, r, "optimization.start", []interface{}{map[string]interface{}{
			"algorithm": "gradient",
			"objective": "sphere",
			"theta0":    []float64{1, 1},
			"delta":     0.25,
			"tolerance": 1e-9,
		}})
		require.Nil(t, resp["error"])
		id := resp["result"].(map[string]interface{})["optimization_id"].(string)

		require.Eventually(t, func() bool {
			resp := rpc(t, r, "optimization.status", map[string]string{"optimization_id": id})
			res, ok := resp["result"].(map[string]interface{})
			return ok && res["status"] == StatusCompleted
		}, 5*time.Second, 10*time.Millisecond)

		resp = rpc(t, r, "optimization.list", nil)
		assert.NotEmpty(t, resp["result"])
	})

	t.Run("catalog", func(t *testing.T) {
		resp := rpc(t, r, "optimization.catalog", nil)
		res := resp["result"].(map[string]interface{})
		assert.Len(t, res["algorithms"], 7)
	})
}

func TestRespondWithError(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(t))

	tests := []struct {
		name       string
		code       apierrors.Code
		message    string
		id         interface{}
		expectedID interface{}
	}{
		{name: "valid error response", code: apierrors.CodeInvalidParams, message: "invalid input", id: "123", expectedID: "123"},
		{name: "nil id", code: apierrors.CodeInternal, message: "server error", id: nil, expectedID: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.respondWithError(rr, tt.code, tt.message, tt.id)

			// JSON-RPC errors travel in a 200 response
			assert.Equal(t, http.StatusOK, rr.Code)
			response := decode(t, rr)
			errObj, ok := response["error"].(map[string]interface{})
			require.True(t, ok, "response should contain error object")
			assert.Equal(t, float64(tt.code), errObj["code"])
			assert.Equal(t, tt.message, errObj["message"])
			assert.Equal(t, tt.expectedID, response["id"])
			assert.Equal(t, "2.0", response["jsonrpc"])
		})
	}
}

func TestClose(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t), runner.New())
	assert.NoError(t, srv.Close())
}
