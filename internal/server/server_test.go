package server

import (
	"bytes"
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

	"github.com/copyleftdev/gaopt/internal/config"
	"github.com/copyleftdev/gaopt/internal/logging"
)

// testConfig creates a test configuration with small GA defaults
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{Environment: "test"}

	cfg.GA.MaxGenerations = 10
	cfg.GA.CrossoverRate = 0.5
	cfg.GA.EliteCount = 1
	cfg.GA.Penalty = 1e27

	cfg.Optimization.WorkerCount = 2
	cfg.Optimization.MaxJobs = 4

	cfg.Problem.Lower = -2
	cfg.Problem.Upper = 2
	cfg.Problem.NaNPoints = 5
	cfg.Problem.NaNRange = 5e-2
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, http.Handler) {
	t.Helper()
	srv := NewServer(cfg, logging.New(logging.DebugLevel, io.Discard), nil)
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

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(v))
}

func waitForEnd(t *testing.T, srv *Server, id string) *StatusResponse {
	t.Helper()
	var st *StatusResponse
	require.Eventually(t, func() bool {
		var err error
		st, err = srv.Status(id)
		require.NoError(t, err)
		return st.EndTime != ""
	}, 10*time.Second, 5*time.Millisecond)
	return st
}

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
		{"POST", "/rpc", true},
		{"GET", "/healthz", false}, // Not registered by server package
		{"GET", "/nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			// Registered handlers answer with a JSON body; chi's 404 does not.
			isJSON := rr.Header().Get("Content-Type") == "application/json"
			assert.Equal(t, tt.shouldExist, isJSON, "status %d", rr.Code)
		})
	}
}

func TestOptimizeRunsToCompletion(t *testing.T) {
	srv, r := newTestServer(t, testConfig(t))

	rr := do(t, r, http.MethodPost, "/api/v1/optimize",
		`{"objective":"sphere","dim":2,"bits":12,"pop_size":20,"max_generations":8,"seed":7}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var start StartResponse
	decode(t, rr, &start)
	assert.Equal(t, StatusPending, start.Status)
	require.NotEmpty(t, start.ID)

	waitForEnd(t, srv, start.ID)

	rr = do(t, r, http.MethodGet, "/api/v1/status/"+start.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var st StatusResponse
	decode(t, rr, &st)

	assert.Equal(t, StatusCompleted, st.Status)
	assert.Equal(t, 1.0, st.Progress)
	assert.Equal(t, 7, st.Generation)
	assert.Equal(t, int64(7), st.Seed)
	assert.Len(t, st.History, 8)
	require.NotNil(t, st.BestSolution)
	assert.Len(t, st.BestSolution.Parameters, 2)
	assert.Equal(t, st.History[7].BestValue, st.BestSolution.Value)
	assert.Empty(t, st.Error)
}

func TestOptimizeRejectsBadRequests(t *testing.T) {
	_, r := newTestServer(t, testConfig(t))

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed", `{"dim":`, http.StatusBadRequest},
		{"bits", `{"bits":40}`, http.StatusBadRequest},
		{"odd population", `{"pop_size":21}`, http.StatusBadRequest},
		{"objective", `{"objective":"ackley"}`, http.StatusBadRequest},
		{"bounds shape", `{"bounds":[[0,1,2]]}`, http.StatusBadRequest},
		{"bounds order", `{"bounds":[[1,0]]}`, http.StatusBadRequest},
		{"dim mismatch", `{"dim":3,"bounds":[[0,1]]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, r, http.MethodPost, "/api/v1/optimize", tt.body)
			assert.Equal(t, tt.code, rr.Code, rr.Body.String())
		})
	}
}

func TestCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Problem.Delay = time.Millisecond
	srv, r := newTestServer(t, cfg)

	start, err := srv.Start(OptimizeRequest{Bits: 8, PopSize: 10, MaxGenerations: 100000, Seed: 3})
	require.NoError(t, err)

	rr := do(t, r, http.MethodDelete, "/api/v1/optimization/"+start.ID, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	st := waitForEnd(t, srv, start.ID)
	assert.Equal(t, StatusCancelled, st.Status)
	assert.Less(t, st.Progress, 1.0)

	rr = do(t, r, http.MethodDelete, "/api/v1/optimization/"+start.ID, "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, r, http.MethodDelete, "/api/v1/optimization/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, r, http.MethodGet, "/api/v1/status/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMaxJobs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Optimization.MaxJobs = 1
	cfg.Problem.Delay = time.Millisecond
	srv, r := newTestServer(t, cfg)

	first, err := srv.Start(OptimizeRequest{Bits: 8, PopSize: 10, MaxGenerations: 100000})
	require.NoError(t, err)

	rr := do(t, r, http.MethodPost, "/api/v1/optimize", `{"bits":8}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	require.NoError(t, srv.Cancel(first.ID))
	waitForEnd(t, srv, first.ID)

	_, err = srv.Start(OptimizeRequest{Bits: 8, PopSize: 10, MaxGenerations: 2})
	assert.NoError(t, err)
}

func rpc(t *testing.T, h http.Handler, body string) map[string]interface{} {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/rpc", body)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]interface{}
	decode(t, rr, &resp)
	return resp
}

func rpcErrorCode(t *testing.T, resp map[string]interface{}) float64 {
	t.Helper()
	errObj, ok := resp["error"].(map[string]interface{})
	require.True(t, ok, "response should contain error object: %v", resp)
	return errObj["code"].(float64)
}

func TestJSONRPC(t *testing.T) {
	srv, r := newTestServer(t, testConfig(t))

	resp := rpc(t, r, `{"jsonrpc":"2.0","id":1,"method":"optimization.start","params":{"objective":"sphere","bits":10,"pop_size":12,"max_generations":3,"seed":5}}`)
	require.Nil(t, resp["error"])
	assert.Equal(t, 1.0, resp["id"])
	result := resp["result"].(map[string]interface{})
	id := result["optimization_id"].(string)
	waitForEnd(t, srv, id)

	resp = rpc(t, r, `{"jsonrpc":"2.0","id":"a","method":"optimization.status","params":[{"optimization_id":"`+id+`"}]}`)
	require.Nil(t, resp["error"])
	result = resp["result"].(map[string]interface{})
	assert.Equal(t, StatusCompleted, result["status"])
	assert.Len(t, result["history"], 3)

	resp = rpc(t, r, `{"jsonrpc":"2.0","id":2,"method":"optimization.cancel","params":{"optimization_id":"`+id+`"}}`)
	assert.Equal(t, -32000.0, rpcErrorCode(t, resp))

	tests := []struct {
		name string
		body string
		code float64
	}{
		{"parse error", `{"jsonrpc":`, -32700},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"optimization.status"}`, -32600},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"optimization.pause"}`, -32601},
		{"missing params", `{"jsonrpc":"2.0","id":1,"method":"optimization.status"}`, -32602},
		{"empty id", `{"jsonrpc":"2.0","id":1,"method":"optimization.cancel","params":[{}]}`, -32602},
		{"bad config", `{"jsonrpc":"2.0","id":1,"method":"optimization.start","params":{"bits":99}}`, -32602},
		{"not found", `{"jsonrpc":"2.0","id":1,"method":"optimization.status","params":{"optimization_id":"nope"}}`, -32000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, rpcErrorCode(t, rpc(t, r, tt.body)))
		})
	}
}

func TestRespondWithError(t *testing.T) {
	var buf bytes.Buffer
	srv := NewServer(testConfig(t), logging.New(logging.DebugLevel, &buf), nil)

	tests := []struct {
		name       string
		code       int
		message    string
		id         interface{}
		expectedID interface{}
	}{
		{"string id", -32000, "invalid input", "123", "123"},
		{"nil id", -32603, "server error", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.respondWithError(rr, tt.code, tt.message, tt.id)

			assert.Equal(t, http.StatusOK, rr.Code)

			var response map[string]interface{}
			decode(t, rr, &response)
			errObj, ok := response["error"].(map[string]interface{})
			require.True(t, ok, "response should contain error object")
			assert.Equal(t, float64(tt.code), errObj["code"])
			assert.Equal(t, tt.message, errObj["message"])
			assert.Equal(t, tt.expectedID, response["id"])
		})
	}
	assert.Contains(t, buf.String(), "RPC request failed")
}

func TestClose(t *testing.T) {
	cfg := testConfig(t)
	cfg.Problem.Delay = time.Millisecond
	srv := NewServer(cfg, logging.New(logging.DebugLevel, io.Discard), nil)

	start, err := srv.Start(OptimizeRequest{Bits: 8, PopSize: 10, MaxGenerations: 100000})
	require.NoError(t, err)

	require.NoError(t, srv.Close())
	st, err := srv.Status(start.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, st.Status)
	assert.NotEmpty(t, st.EndTime)
}
