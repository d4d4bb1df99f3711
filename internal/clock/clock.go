package clock

import (
	"sync"
	"time"
)

// Clock supplies the current unix time in seconds.
type Clock interface {
	Now() uint64
}

// System reads the wall clock.
type System struct{}

// Now returns the current unix time.
func (System) Now() uint64 {
	return uint64(max(time.Now().Unix(), 0))
}

// Mock is a settable clock for tests. The zero value reads 0.
// It is safe for concurrent use.
type Mock struct {
	mu  sync.RWMutex
	now uint64
}

// NewMock creates a mock clock set to now.
func NewMock(now uint64) *Mock {
	return &Mock{now: now}
}

// Now returns the mocked time.
func (m *Mock) Now() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.now
}

// Set moves the clock to now.
func (m *Mock) Set(now uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = now
}

// Advance moves the clock forward by d seconds.
func (m *Mock) Advance(d uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now += d
}
