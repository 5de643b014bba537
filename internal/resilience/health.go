package resilience

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
)

// rank orders statuses from best to worst.
func (s HealthStatus) rank() int {
	switch s {
	case HealthStatusHealthy:
		return 0
	case HealthStatusDegraded:
		return 1
	default:
		return 2
	}
}

// ComponentHealth is the result of one check.
type ComponentHealth struct {
	Name    string                 `json:"name"`
	Status  HealthStatus           `json:"status"`
	Message string                 `json:"message,omitempty"`
	Latency time.Duration          `json:"latency_ns,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthCheck inspects one component.
type HealthCheck func(ctx context.Context) ComponentHealth

// SystemHealth aggregates every registered check. Status is the worst
// component status.
type SystemHealth struct {
	Status     HealthStatus      `json:"status"`
	Uptime     string            `json:"uptime"`
	CheckedAt  time.Time         `json:"checked_at"`
	Components []ComponentHealth `json:"components"`
}

// HealthRegistry runs registered checks on demand.
type HealthRegistry struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheck
	started time.Time
	timeout time.Duration
}

// NewHealthRegistry creates a registry whose checks share timeout.
func NewHealthRegistry(timeout time.Duration) *HealthRegistry {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthRegistry{
		checks:  make(map[string]HealthCheck),
		started: time.Now(),
		timeout: timeout,
	}
}

// Register adds or replaces the check for name.
func (r *HealthRegistry) Register(name string, check HealthCheck) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = check
}

// Check runs every check sequentially.
func (r *HealthRegistry) Check(ctx context.Context) SystemHealth {
	r.mu.RLock()
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheck, len(r.checks))
	for k, v := range r.checks {
		checks[k] = v
	}
	r.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	health := SystemHealth{
		Status:     HealthStatusHealthy,
		Uptime:     time.Since(r.started).Round(time.Second).String(),
		CheckedAt:  time.Now(),
		Components: make([]ComponentHealth, 0, len(names)),
	}
	for _, name := range names {
		c := checks[name](ctx)
		c.Name = name
		if c.Status == "" {
			c.Status = HealthStatusHealthy
		}
		if c.Status.rank() > health.Status.rank() {
			health.Status = c.Status
		}
		health.Components = append(health.Components, c)
	}
	return health
}

// ServeHTTP writes the aggregate health as JSON. Degraded still answers 200.
func (r *HealthRegistry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	health := r.Check(req.Context())

	w.Header().Set("Content-Type", "application/json")
	if health.Status == HealthStatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(health)
}

// PingCheck reports a dependency reachable through ping. Slow answers are
// degraded.
func PingCheck(ping func(ctx context.Context) error, slow time.Duration) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		start := time.Now()
		err := ping(ctx)
		h := ComponentHealth{Latency: time.Since(start)}

		switch {
		case err != nil:
			h.Status = HealthStatusUnhealthy
			h.Message = fmt.Sprintf("ping failed: %v", err)
		case slow > 0 && h.Latency > slow:
			h.Status = HealthStatusDegraded
			h.Message = fmt.Sprintf("slow: %v", h.Latency)
		default:
			h.Status = HealthStatusHealthy
		}
		return h
	}
}

// StaticCheck reports details that are always healthy, such as counters.
func StaticCheck(details func() map[string]interface{}) HealthCheck {
	return func(context.Context) ComponentHealth {
		return ComponentHealth{Status: HealthStatusHealthy, Details: details()}
	}
}
