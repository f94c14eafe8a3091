package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusUp      HealthStatus = "UP"
	HealthStatusDown    HealthStatus = "DOWN"
	HealthStatusWarning HealthStatus = "WARNING"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status    HealthStatus           `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthReport represents the overall health report
type HealthReport struct {
	Status     HealthStatus                `json:"status"`
	Timestamp  time.Time                   `json:"timestamp"`
	Duration   time.Duration               `json:"duration"`
	Components map[string]*ComponentHealth `json:"components"`
}

// ReadinessReport represents the readiness report
type ReadinessReport struct {
	Ready      bool                        `json:"ready"`
	Timestamp  time.Time                   `json:"timestamp"`
	Duration   time.Duration               `json:"duration"`
	Components map[string]*ComponentHealth `json:"components"`
}

// Pinger is a dependency the gateway needs to serve requests: the node, the
// journal database or the cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthChecker runs liveness and readiness checks over registered dependencies.
// A failing dependency degrades health to WARNING and makes the gateway not ready.
type HealthChecker struct {
	logger *zap.Logger

	deps map[string]Pinger
	mu   sync.RWMutex

	lastHealthCheck *HealthReport
	lastReadyCheck  *ReadinessReport
	cacheDuration   time.Duration
}

// NewHealthChecker creates a health checker. Reports are reused for cacheDuration.
func NewHealthChecker(logger *zap.Logger, cacheDuration time.Duration) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthChecker{
		logger:        logger,
		deps:          make(map[string]Pinger),
		cacheDuration: cacheDuration,
	}
}

// Register adds a named dependency
func (hc *HealthChecker) Register(name string, dep Pinger) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.deps[name] = dep
	hc.lastHealthCheck = nil
	hc.lastReadyCheck = nil
}

// HealthHandler returns an HTTP handler for health checks. It answers 200 while the
// process is serving; dependency failures show up in the report body.
func (hc *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := hc.CheckHealth(r.Context())

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		if err := json.NewEncoder(w).Encode(report); err != nil {
			hc.logger.Warn("Failed to write health report", zap.Error(err))
		}
	}
}

// ReadinessHandler returns an HTTP handler for readiness checks
func (hc *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := hc.CheckReadiness(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if report.Ready {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		if err := json.NewEncoder(w).Encode(report); err != nil {
			hc.logger.Warn("Failed to write readiness report", zap.Error(err))
		}
	}
}

// CheckHealth pings every dependency and reports process runtime stats
func (hc *HealthChecker) CheckHealth(ctx context.Context) *HealthReport {
	hc.mu.RLock()
	if hc.lastHealthCheck != nil && time.Since(hc.lastHealthCheck.Timestamp) < hc.cacheDuration {
		defer hc.mu.RUnlock()
		return hc.lastHealthCheck
	}
	hc.mu.RUnlock()

	start := time.Now()
	components := hc.pingAll(ctx, 10*time.Second)
	components["runtime"] = checkRuntime()

	overallStatus := HealthStatusUp
	for name, health := range components {
		if health.Status != HealthStatusUp {
			// Dependency failures only degrade liveness.
			overallStatus = HealthStatusWarning
			hc.logger.Warn("Health check degraded",
				zap.String("component", name),
				zap.String("error", health.Error))
		}
	}

	report := &HealthReport{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Duration:   time.Since(start),
		Components: components,
	}

	hc.mu.Lock()
	hc.lastHealthCheck = report
	hc.mu.Unlock()

	return report
}

// CheckReadiness is ready only when every dependency answers
func (hc *HealthChecker) CheckReadiness(ctx context.Context) *ReadinessReport {
	hc.mu.RLock()
	if hc.lastReadyCheck != nil && time.Since(hc.lastReadyCheck.Timestamp) < hc.cacheDuration {
		defer hc.mu.RUnlock()
		return hc.lastReadyCheck
	}
	hc.mu.RUnlock()

	start := time.Now()
	components := hc.pingAll(ctx, 5*time.Second)

	ready := true
	for _, health := range components {
		if health.Status != HealthStatusUp {
			ready = false
		}
	}

	report := &ReadinessReport{
		Ready:      ready,
		Timestamp:  time.Now(),
		Duration:   time.Since(start),
		Components: components,
	}

	hc.mu.Lock()
	hc.lastReadyCheck = report
	hc.mu.Unlock()

	return report
}

// pingAll executes every dependency check concurrently
func (hc *HealthChecker) pingAll(ctx context.Context, timeout time.Duration) map[string]*ComponentHealth {
	hc.mu.RLock()
	deps := make(map[string]Pinger, len(hc.deps))
	for name, dep := range hc.deps {
		deps[name] = dep
	}
	hc.mu.RUnlock()

	components := make(map[string]*ComponentHealth, len(deps)+1)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, dep := range deps {
		wg.Add(1)
		go func(name string, dep Pinger) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			health := ping(checkCtx, dep)

			mu.Lock()
			components[name] = health
			mu.Unlock()
		}(name, dep)
	}
	wg.Wait()

	return components
}

func ping(ctx context.Context, dep Pinger) *ComponentHealth {
	start := time.Now()
	health := &ComponentHealth{
		Status:    HealthStatusUp,
		Timestamp: start,
	}
	if err := dep.Ping(ctx); err != nil {
		health.Status = HealthStatusDown
		health.Error = err.Error()
	}
	health.Duration = time.Since(start)
	return health
}

func checkRuntime() *ComponentHealth {
	start := time.Now()
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &ComponentHealth{
		Status:    HealthStatusUp,
		Timestamp: start,
		Duration:  time.Since(start),
		Details: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"heap_alloc": m.HeapAlloc,
			"heap_inuse": m.HeapInuse,
			"num_gc":     m.NumGC,
			"go_version": runtime.Version(),
		},
	}
}
