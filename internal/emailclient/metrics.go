package emailclient

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks process-wide delivery counters. FailureCount is the
// consecutive-failure streak, reset by any success; the rest are cumulative.
type Metrics struct {
	totalAttempts atomic.Int64
	successCount  atomic.Int64
	failureCount  atomic.Int64
	timeoutCount  atomic.Int64

	mu          sync.Mutex
	lastError   string
	lastSuccess time.Time
}

// Snapshot is a point-in-time copy for observability and tests.
type Snapshot struct {
	TotalAttempts int64
	SuccessCount  int64
	FailureCount  int64
	TimeoutCount  int64
	LastError     string
	LastSuccess   time.Time
}

func (m *Metrics) recordAttempt() {
	m.totalAttempts.Add(1)
}

func (m *Metrics) recordSuccess(now time.Time) {
	m.successCount.Add(1)
	m.failureCount.Store(0)
	m.mu.Lock()
	m.lastSuccess = now
	m.mu.Unlock()
}

func (m *Metrics) recordFailure(err error) {
	m.failureCount.Add(1)
	if isTimeout(err) {
		m.timeoutCount.Add(1)
	}
	m.mu.Lock()
	m.lastError = err.Error()
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	lastError, lastSuccess := m.lastError, m.lastSuccess
	m.mu.Unlock()

	return Snapshot{
		TotalAttempts: m.totalAttempts.Load(),
		SuccessCount:  m.successCount.Load(),
		FailureCount:  m.failureCount.Load(),
		TimeoutCount:  m.timeoutCount.Load(),
		LastError:     lastError,
		LastSuccess:   lastSuccess,
	}
}
