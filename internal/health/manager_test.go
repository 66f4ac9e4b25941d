package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type staticChecker struct {
	name     string
	status   CheckStatus
	critical bool
}

func (s *staticChecker) Name() string           { return s.name }
func (s *staticChecker) IsCritical() bool       { return s.critical }
func (s *staticChecker) Timeout() time.Duration { return time.Second }
func (s *staticChecker) Check(_ context.Context) CheckResult {
	return CheckResult{Component: s.name, Status: s.status, Critical: s.critical, Timestamp: time.Now()}
}

func TestManagerOverallRollup(t *testing.T) {
	m := NewManager(time.Minute, zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(&staticChecker{name: "llm", status: StatusHealthy, critical: true}))
	require.NoError(t, m.RegisterChecker(&staticChecker{name: "redis", status: StatusHealthy}))

	m.sweep(context.Background())
	overall := m.Overall()
	assert.Equal(t, StatusHealthy, overall.Status)
	assert.True(t, overall.Ready)
}

func TestManagerNonCriticalFailureDegrades(t *testing.T) {
	m := NewManager(time.Minute, zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(&staticChecker{name: "llm", status: StatusHealthy, critical: true}))
	require.NoError(t, m.RegisterChecker(&staticChecker{name: "redis", status: StatusUnhealthy}))

	m.sweep(context.Background())
	overall := m.Overall()
	assert.Equal(t, StatusDegraded, overall.Status)
	assert.True(t, overall.Ready)
}

func TestManagerCriticalFailureUnhealthy(t *testing.T) {
	m := NewManager(time.Minute, zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(&staticChecker{name: "temporal", status: StatusUnhealthy, critical: true}))

	m.sweep(context.Background())
	overall := m.Overall()
	assert.Equal(t, StatusUnhealthy, overall.Status)
	assert.False(t, overall.Ready)
	assert.False(t, m.IsReady())
}

func TestManagerDuplicateCheckerRejected(t *testing.T) {
	m := NewManager(time.Minute, zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(&staticChecker{name: "llm"}))
	assert.Error(t, m.RegisterChecker(&staticChecker{name: "llm"}))
}

func TestHTTPServiceChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPServiceChecker("llm", srv.URL+"/health", true)
	result := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)

	srv.Close()
	result = c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestProbeEndpoints(t *testing.T) {
	m := NewManager(time.Minute, zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(&staticChecker{name: "temporal", status: StatusUnhealthy, critical: true}))
	m.sweep(context.Background())

	mux := http.NewServeMux()
	m.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unhealthy"`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/liveness", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readiness", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
