package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered checks on a background interval and serves
// cached results so probe endpoints stay cheap.
type Manager struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	results  map[string]CheckResult
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewManager(interval time.Duration, logger *zap.Logger) *Manager {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Manager{
		checkers: make(map[string]Checker),
		results:  make(map[string]CheckResult),
		interval: interval,
		logger:   logger,
	}
}

// RegisterChecker adds a checker; names must be unique.
func (m *Manager) RegisterChecker(c Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.checkers[c.Name()]; exists {
		return fmt.Errorf("health checker %q already registered", c.Name())
	}
	m.checkers[c.Name()] = c
	return nil
}

// Start begins background checking. The first sweep runs immediately
// so probes have data before the first tick.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		m.sweep(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep(ctx)
			}
		}
	}()
}

// Stop halts background checking.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

func (m *Manager) sweep(ctx context.Context) {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	for _, c := range checkers {
		cctx, cancel := context.WithTimeout(ctx, c.Timeout())
		result := c.Check(cctx)
		cancel()
		if result.Status != StatusHealthy {
			m.logger.Warn("Health check not healthy",
				zap.String("component", c.Name()),
				zap.String("status", result.Status.String()),
				zap.String("error", result.Error),
			)
		}
		m.mu.Lock()
		m.results[c.Name()] = result
		m.mu.Unlock()
	}
}

// Overall rolls up the cached results: any critical failure is
// unhealthy, any failure at all is degraded.
func (m *Manager) Overall() OverallHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := StatusHealthy
	message := "all components healthy"
	for _, r := range m.results {
		if r.Status == StatusHealthy {
			continue
		}
		if r.Critical && r.Status == StatusUnhealthy {
			status = StatusUnhealthy
			message = fmt.Sprintf("critical component %s unhealthy", r.Component)
			break
		}
		status = StatusDegraded
		message = fmt.Sprintf("component %s %s", r.Component, r.Status)
	}
	return OverallHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Ready:     status != StatusUnhealthy,
	}
}

// Detailed returns the per-component breakdown.
func (m *Manager) Detailed() DetailedHealth {
	overall := m.Overall()
	m.mu.RLock()
	components := make(map[string]CheckResult, len(m.results))
	for k, v := range m.results {
		components[k] = v
	}
	m.mu.RUnlock()
	return DetailedHealth{
		Overall:    overall,
		Components: components,
		Timestamp:  time.Now(),
	}
}

// IsReady reports readiness for serving traffic.
func (m *Manager) IsReady() bool { return m.Overall().Ready }
