package middleware

import (
	"sync"
	"time"
)

type clientInfo struct {
	last  time.Time
	count int64
}

const pruneThreshold = 10000

// memoryWindow is the fixed-window counter used when Redis is absent or
// failing. Counts are per process.
type memoryWindow struct {
	mu      sync.Mutex
	clients map[string]*clientInfo
}

func newMemoryWindow() *memoryWindow {
	return &memoryWindow{clients: make(map[string]*clientInfo)}
}

// incr counts one hit for key and returns the total in the current window.
func (m *memoryWindow) incr(key string, window time.Duration, now time.Time) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.clients) > pruneThreshold {
		for k, ci := range m.clients {
			if now.Sub(ci.last) > window {
				delete(m.clients, k)
			}
		}
	}

	ci, ok := m.clients[key]
	if !ok || now.Sub(ci.last) > window {
		m.clients[key] = &clientInfo{last: now, count: 1}
		return 1
	}
	ci.count++
	return ci.count
}
