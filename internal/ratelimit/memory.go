package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps windows in process memory. It is suitable for a single
// instance and for tests.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memWindow
}

type memWindow struct {
	start time.Time
	hits  int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*memWindow)}
}

// Hit implements Store.
func (m *MemoryStore) Hit(_ context.Context, client string, class RouteClass, window time.Duration, now time.Time) (int64, time.Time, error) {
	key := windowKey(client, class)

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.start.Add(window)) {
		w = &memWindow{start: now}
		m.windows[key] = w
	}
	w.hits++
	return w.hits, w.start, nil
}

func windowKey(client string, class RouteClass) string {
	return "rl:" + string(class) + ":" + client
}
