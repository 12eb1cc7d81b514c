package observability

import (
	"context"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy HealthStatus = "healthy"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check function.
type HealthCheck func(ctx context.Context) error

// ComponentHealth represents the health status of a single component.
type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Error   string       `json:"error,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// HealthResponse represents the overall health check response.
type HealthResponse struct {
	Status      HealthStatus               `json:"status"`
	Timestamp   time.Time                  `json:"timestamp"`
	Version     string                     `json:"version,omitempty"`
	Environment string                     `json:"environment,omitempty"`
	Components  map[string]ComponentHealth `json:"components"`
}

// HealthChecker runs registered component checks concurrently and reports
// aggregate service health.
type HealthChecker struct {
	mu          sync.RWMutex
	checks      map[string]HealthCheck
	version     string
	environment string
	timeout     time.Duration
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker(version, environment string) *HealthChecker {
	return &HealthChecker{
		checks:      make(map[string]HealthCheck),
		version:     version,
		environment: environment,
		timeout:     5 * time.Second,
	}
}

// RegisterCheck registers a health check for a component.
func (hc *HealthChecker) RegisterCheck(name string, check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
}

// SetTimeout sets the timeout applied to one round of checks.
func (hc *HealthChecker) SetTimeout(timeout time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.timeout = timeout
}

// CheckHealth performs all registered checks and returns the overall status.
// The service is unhealthy if any single component is unhealthy.
func (hc *HealthChecker) CheckHealth(ctx context.Context) *HealthResponse {
	hc.mu.RLock()
	checks := make(map[string]HealthCheck, len(hc.checks))
	for name, check := range hc.checks {
		checks[name] = check
	}
	timeout := hc.timeout
	hc.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	components := hc.executeChecks(ctx, checks)

	overallStatus := StatusHealthy
	for _, component := range components {
		if component.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
			break
		}
	}

	return &HealthResponse{
		Status:      overallStatus,
		Timestamp:   time.Now().UTC(),
		Version:     hc.version,
		Environment: hc.environment,
		Components:  components,
	}
}

// executeChecks runs a set of checks concurrently and collects the results.
func (hc *HealthChecker) executeChecks(ctx context.Context, checks map[string]HealthCheck) map[string]ComponentHealth {
	components := make(map[string]ComponentHealth)
	if len(checks) == 0 {
		return components
	}

	type result struct {
		name   string
		health ComponentHealth
	}

	var wg sync.WaitGroup
	resultChan := make(chan result, len(checks))

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthCheck) {
			defer wg.Done()

			start := time.Now()
			err := check(ctx)
			latency := time.Since(start)

			health := ComponentHealth{
				Status:  StatusHealthy,
				Latency: latency.String(),
			}

			if err != nil {
				health.Status = StatusUnhealthy
				if ctx.Err() != nil {
					health.Error = "check timed out"
				} else {
					health.Error = err.Error()
				}
			}

			resultChan <- result{name: name, health: health}
		}(name, check)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for r := range resultChan {
		components[r.name] = r.health
	}

	return components
}
