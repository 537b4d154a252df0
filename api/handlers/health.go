package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthCheck is one dependency's liveness probe.
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckResult is one HealthCheck's outcome.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency"`
}

// HealthStatus is the response body of /healthz and /ready.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// HealthHandler aggregates registered HealthChecks into /healthz and /ready
// responses.
type HealthHandler struct {
	logger *zap.Logger
	checks []HealthCheck
	mu     sync.RWMutex
}

// NewHealthHandler builds an empty HealthHandler.
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{logger: logger}
}

// RegisterCheck adds a dependency check to be run on every /ready call.
func (h *HealthHandler) RegisterCheck(c HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, c)
}

// HandleHealthz reports process liveness unconditionally; it never touches
// a dependency, so it stays up even when every downstream check is failing.
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, HealthStatus{Status: "ok", Timestamp: time.Now()})
}

// HandleReady runs every registered check with a 5s timeout each and reports
// 503 if any fails.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := append([]HealthCheck{}, h.checks...)
	h.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	allHealthy := true
	for _, c := range checks {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		start := time.Now()
		err := c.Check(ctx)
		cancel()
		latency := time.Since(start)

		res := CheckResult{Status: "ok", Latency: latency.String()}
		if err != nil {
			allHealthy = false
			res.Status = "error"
			res.Message = err.Error()
			h.logger.Warn("health check failed", zap.String("check", c.Name()), zap.Error(err))
		}
		results[c.Name()] = res
	}

	status := HealthStatus{Timestamp: time.Now(), Checks: results}
	if allHealthy {
		status.Status = "ok"
		WriteJSON(w, http.StatusOK, status)
		return
	}
	status.Status = "degraded"
	WriteJSON(w, http.StatusServiceUnavailable, status)
}

// HandleVersion reports build metadata.
func HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// PingFunc adapts a zero-arg ping (e.g. *redis.Client.Ping) into a HealthCheck.
type PingFunc func(ctx context.Context) error

// NamedPingCheck wraps a PingFunc as a named HealthCheck, for dependencies
// whose SDK exposes nothing richer than "ping".
type NamedPingCheck struct {
	CheckName string
	Ping      PingFunc
}

func (c *NamedPingCheck) Name() string { return c.CheckName }

func (c *NamedPingCheck) Check(ctx context.Context) error { return c.Ping(ctx) }
