package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
)

// HTTPServiceChecker probes a sidecar service's health endpoint. Used
// for the text-generation and search services.
type HTTPServiceChecker struct {
	name     string
	url      string
	critical bool
	client   *http.Client
}

func NewHTTPServiceChecker(name, url string, critical bool) *HTTPServiceChecker {
	return &HTTPServiceChecker{
		name:     name,
		url:      url,
		critical: critical,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (h *HTTPServiceChecker) Name() string           { return h.name }
func (h *HTTPServiceChecker) IsCritical() bool       { return h.critical }
func (h *HTTPServiceChecker) Timeout() time.Duration { return 5 * time.Second }

func (h *HTTPServiceChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: h.name, Critical: h.critical, Timestamp: start}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}
	resp, err := h.client.Do(req)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = fmt.Sprintf("%s unreachable", h.name)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("%s returned status %d", h.name, resp.StatusCode)
		return result
	}
	if result.Duration > 2*time.Second {
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("%s responding slowly", h.name)
		return result
	}
	result.Status = StatusHealthy
	result.Message = fmt.Sprintf("%s healthy", h.name)
	return result
}

// RedisChecker pings the event-mirror Redis. Non-critical: streaming
// still works from the in-memory manager without the mirror.
type RedisChecker struct {
	client redis.UniversalClient
}

func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client}
}

func (r *RedisChecker) Name() string           { return "redis" }
func (r *RedisChecker) IsCritical() bool       { return false }
func (r *RedisChecker) Timeout() time.Duration { return 3 * time.Second }

func (r *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "redis", Timestamp: start}

	err := r.client.Ping(ctx).Err()
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "redis ping failed"
		return result
	}
	if result.Duration > 100*time.Millisecond {
		result.Status = StatusDegraded
		result.Message = "redis responding but with high latency"
		return result
	}
	result.Status = StatusHealthy
	result.Message = "redis healthy"
	return result
}

// TemporalChecker verifies the workflow backend is reachable.
type TemporalChecker struct {
	client client.Client
}

func NewTemporalChecker(c client.Client) *TemporalChecker {
	return &TemporalChecker{client: c}
}

func (t *TemporalChecker) Name() string           { return "temporal" }
func (t *TemporalChecker) IsCritical() bool       { return true }
func (t *TemporalChecker) Timeout() time.Duration { return 5 * time.Second }

func (t *TemporalChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: "temporal", Critical: true, Timestamp: start}

	_, err := t.client.CheckHealth(ctx, &client.CheckHealthRequest{})
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "temporal health check failed"
		return result
	}
	result.Status = StatusHealthy
	result.Message = "temporal healthy"
	return result
}
