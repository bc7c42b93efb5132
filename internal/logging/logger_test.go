package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var e map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e), sc.Text())
		entries = append(entries, e)
	}
	return entries
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(WarnLevel, &buf)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown", map[string]interface{}{"generation": 3})
	l.Error("also shown")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "shown", entries[0]["message"])
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, float64(3), entries[0]["generation"])
	assert.Contains(t, entries[0]["caller"], "logging/logger_test.go")
	assert.Equal(t, "ERROR", entries[1]["level"])
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(DebugLevel, &buf)
	child := parent.WithField("run", "a").WithError(errors.New("bad"))

	child.Info("child")
	parent.Info("parent")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0]["run"])
	assert.Equal(t, "bad", entries[0]["error"])
	assert.NotContains(t, entries[1], "run")
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(InfoLevel, &buf).WithFormat(TextFormat).Info("generation done", map[string]interface{}{"best": 0.5})

	line := buf.String()
	assert.Contains(t, line, "INFO generation done")
	assert.Contains(t, line, "best=0.5")
}

func TestNewLoggerConfig(t *testing.T) {
	l, err := NewLogger(&Config{Level: "debug", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, DebugLevel, l.level)
	assert.Equal(t, TextFormat, l.format)

	l, err = NewLogger(nil)
	require.NoError(t, err)
	assert.Equal(t, InfoLevel, l.level)
	assert.Equal(t, JSONFormat, l.format)

	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
}

func TestZapLoggerForwardsFields(t *testing.T) {
	var buf bytes.Buffer
	zl := NewZapLogger(New(InfoLevel, &buf)).With(zap.String("component", "pool"))

	zl.Debug("dropped")
	zl.Warn("evaluation infeasible",
		zap.Int("index", 4),
		zap.Float64("fitness", 1.25),
		zap.Float64s("x", []float64{0.5, -1}),
		zap.Duration("timeout", 2*time.Second),
		zap.Bool("timed_out", true),
	)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "WARN", e["level"])
	assert.Equal(t, "pool", e["component"])
	assert.Equal(t, float64(4), e["index"])
	assert.Equal(t, 1.25, e["fitness"])
	assert.Equal(t, []interface{}{0.5, -1.0}, e["x"])
	assert.Equal(t, true, e["timed_out"])
	assert.True(t, strings.HasPrefix(e["caller"].(string), "logging/logger_test.go:"), e["caller"])
}

func TestMiddlewareLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	h := Middleware(New(InfoLevel, &buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotNil(t, FromContext(r.Context()).Logger)
		http.Error(w, "nope", http.StatusNotFound)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/status/missing", nil))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, float64(http.StatusNotFound), entries[0]["status"])
	assert.Equal(t, "/api/v1/status/missing", entries[0]["path"])
}
