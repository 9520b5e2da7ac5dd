package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type ClusterHealthChecker interface {
	HealthCheck(ctx context.Context) (string, error)
}

// ClusterCheck reports an Elasticsearch-style cluster as unhealthy only when
// its status is red.
func ClusterCheck(c ClusterHealthChecker) HealthChecker {
	return HealthCheckFunc(func(ctx context.Context) error {
		status, err := c.HealthCheck(ctx)
		if err != nil {
			return err
		}
		if status == "red" {
			return fmt.Errorf("cluster status %s", status)
		}
		return nil
	})
}

type registeredCheck struct {
	checker  HealthChecker
	required bool
}

// HealthHandler serves liveness and readiness. Readiness fails only when a
// required component is down; optional failures report "degraded".
type HealthHandler struct {
	checks map[string]registeredCheck
	logger *zap.Logger
}

func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		checks: make(map[string]registeredCheck),
		logger: logger,
	}
}

func (h *HealthHandler) Register(name string, checker HealthChecker, required bool) {
	h.checks[name] = registeredCheck{checker: checker, required: required}
}

type componentHealth struct {
	Status   string `json:"status"`
	Required bool   `json:"required"`
	Latency  string `json:"latency,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results := make(map[string]componentHealth, len(h.checks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, rc := range h.checks {
		wg.Add(1)
		go func(n string, rc registeredCheck) {
			defer wg.Done()
			start := time.Now()
			err := rc.checker.HealthCheck(ctx)
			ch := componentHealth{
				Status:   "healthy",
				Required: rc.required,
				Latency:  time.Since(start).String(),
			}
			if err != nil {
				ch.Status = "unhealthy"
				ch.Error = err.Error()
			}
			mu.Lock()
			results[n] = ch
			mu.Unlock()
		}(name, rc)
	}
	wg.Wait()

	status := http.StatusOK
	overall := "healthy"
	for name, ch := range results {
		if ch.Status == "healthy" {
			continue
		}
		h.logger.Warn("component unhealthy", zap.String("component", name), zap.String("error", ch.Error))
		if ch.Required {
			status = http.StatusServiceUnavailable
			overall = "unavailable"
		} else if overall == "healthy" {
			overall = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     overall,
		"components": results,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
