package worker

import (
	"sync"
	"time"
)

const (
	StatusHealthy = "healthy"
	StatusFailed  = "failed"
)

// Health is the reported state of one worker. Error details are not exposed.
type Health struct {
	Status    string    `json:"status"`
	LastCheck time.Time `json:"last_check"`
}

// HealthTracker tracks worker health. Safe for concurrent use.
type HealthTracker struct {
	mu      sync.RWMutex
	workers map[string]Health
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{workers: make(map[string]Health)}
}

func (h *HealthTracker) MarkHealthy(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.workers[name] = Health{Status: StatusHealthy, LastCheck: time.Now()}
}

func (h *HealthTracker) MarkFailed(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.workers[name] = Health{Status: StatusFailed, LastCheck: time.Now()}
}

// IsHealthy reports whether every tracked worker is healthy.
func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, w := range h.workers {
		if w.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// Status returns the overall status plus per-worker detail.
func (h *HealthTracker) Status() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()

	workers := make(map[string]Health, len(h.workers))
	overall := StatusHealthy
	for name, w := range h.workers {
		workers[name] = w
		if w.Status != StatusHealthy {
			overall = StatusFailed
		}
	}
	return map[string]any{"status": overall, "workers": workers}
}
