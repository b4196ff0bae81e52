package registry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/bazar/internal/federation"
)

// EndpointHealth tracks the probe status of a single registered endpoint.
// Thread-safe: protected by HealthMonitor's mutex when accessed.
type EndpointHealth struct {
	LastCheck        time.Time `json:"lastCheck"`
	LastHealthy      time.Time `json:"lastHealthy"`
	TenantID         string    `json:"tenantId"`
	Status           string    `json:"status"` // "healthy", "unhealthy", "unknown"
	ConsecutiveFails int       `json:"consecutiveFails"`
}

// HealthMonitor periodically probes every registered endpoint's /health.
// The result is advisory: the aggregator still dispatches to unhealthy
// endpoints and lets the per-call timeout absorb the failure, but
// operators see the status on the endpoint listing.
//
// Thread safety: all methods are safe for concurrent access.
type HealthMonitor struct {
	endpoints   map[string]*EndpointHealth
	httpClient  *http.Client
	checkFunc   func(url string) error
	onUnhealthy func(tenantID string)
	ctx         context.Context
	cancel      context.CancelFunc
	interval    time.Duration
	mu          sync.RWMutex
	wg          sync.WaitGroup
	maxFailures int
	log         *zap.Logger
}

// NewHealthMonitor creates a monitor that probes each endpoint every
// interval. Endpoints are marked unhealthy after 3 consecutive failures.
func NewHealthMonitor(interval time.Duration, log *zap.Logger) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &HealthMonitor{
		interval:    interval,
		maxFailures: 3,
		endpoints:   make(map[string]*EndpointHealth),
		httpClient:  &http.Client{Timeout: 2 * time.Second},
		ctx:         ctx,
		cancel:      cancel,
		log:         log,
	}
}

// SetOnUnhealthy sets the callback invoked once when an endpoint
// transitions to unhealthy.
func (h *HealthMonitor) SetOnUnhealthy(callback func(tenantID string)) {
	h.onUnhealthy = callback
}

// SetCheckFunction overrides the default HTTP probe. Used in tests.
func (h *HealthMonitor) SetCheckFunction(checkFunc func(url string) error) {
	h.checkFunc = checkFunc
}

// Start runs the probe loop in the current goroutine until the context
// is canceled or Stop is called. The provider callback supplies the
// current endpoint set on every tick so newly registered endpoints are
// picked up without restarts.
//
// Example:
//
//	go monitor.Start(ctx, directory.List)
func (h *HealthMonitor) Start(ctx context.Context, provider func() []federation.EndpointDescriptor) {
	h.wg.Add(1)
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}
	if h.checkFunc == nil {
		h.checkFunc = h.defaultHealthCheck
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.log.Info("endpoint health monitor started", zap.Duration("interval", h.interval))

	h.checkAll(provider())
	for {
		select {
		case <-ticker.C:
			h.checkAll(provider())
		case <-ctx.Done():
			h.log.Info("endpoint health monitor stopping")
			return
		case <-h.ctx.Done():
			h.log.Info("endpoint health monitor stopping")
			return
		}
	}
}

// Stop cancels the probe loop and waits for it to finish.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
}

func (h *HealthMonitor) checkAll(endpoints []federation.EndpointDescriptor) {
	current := make(map[string]bool, len(endpoints))
	for _, e := range endpoints {
		current[e.TenantID] = true
		h.check(e)
	}

	// Drop tracking for descriptors an operator removed.
	h.mu.Lock()
	for tenantID := range h.endpoints {
		if !current[tenantID] {
			delete(h.endpoints, tenantID)
		}
	}
	h.mu.Unlock()
}

func (h *HealthMonitor) check(e federation.EndpointDescriptor) {
	h.mu.Lock()
	health, exists := h.endpoints[e.TenantID]
	if !exists {
		health = &EndpointHealth{
			TenantID:    e.TenantID,
			Status:      "unknown",
			LastCheck:   time.Now(),
			LastHealthy: time.Now(),
		}
		h.endpoints[e.TenantID] = health
	}
	h.mu.Unlock()

	err := h.checkFunc(e.EndpointURL)

	h.mu.Lock()
	defer h.mu.Unlock()

	health.LastCheck = time.Now()
	if err != nil {
		health.ConsecutiveFails++
		h.log.Warn("endpoint health check failed",
			zap.String("tenant", e.TenantID),
			zap.Int("fails", health.ConsecutiveFails),
			zap.Error(err))

		if health.ConsecutiveFails >= h.maxFailures {
			previous := health.Status
			health.Status = "unhealthy"
			if previous != "unhealthy" && h.onUnhealthy != nil {
				// Invoke without holding the lock.
				go h.onUnhealthy(e.TenantID)
			}
		}
		return
	}

	if health.Status == "unhealthy" {
		h.log.Info("endpoint recovered", zap.String("tenant", e.TenantID))
	}
	health.Status = "healthy"
	health.ConsecutiveFails = 0
	health.LastHealthy = time.Now()
}

func (h *HealthMonitor) defaultHealthCheck(endpointURL string) error {
	url := endpointURL
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	if !strings.HasSuffix(url, "/health") {
		url = strings.TrimRight(url, "/") + "/health"
	}

	resp, err := h.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return nil
}

// Status returns the probe status for one tenant: "healthy", "unhealthy",
// or "unknown" when the endpoint has not been probed yet.
func (h *HealthMonitor) Status(tenantID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	health, exists := h.endpoints[tenantID]
	if !exists {
		return "unknown"
	}
	return health.Status
}

// Snapshot returns a copy of every tracked endpoint's health.
func (h *HealthMonitor) Snapshot() map[string]EndpointHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]EndpointHealth, len(h.endpoints))
	for id, health := range h.endpoints {
		out[id] = *health
	}
	return out
}
