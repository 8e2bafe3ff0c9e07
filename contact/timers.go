package contact

import (
	"sync"
	"time"
)

// Timers accumulates wall time per named phase
type Timers struct {
	mu      sync.Mutex
	elapsed map[string]time.Duration
	started map[string]time.Time
}

func newTimers() *Timers {
	return &Timers{
		elapsed: make(map[string]time.Duration),
		started: make(map[string]time.Time),
	}
}

func (t *Timers) Start(name string) {
	t.mu.Lock()
	t.started[name] = time.Now()
	t.mu.Unlock()
}

// Stop adds the time since the matching Start; unmatched stops are ignored
func (t *Timers) Stop(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.started[name]; ok {
		t.elapsed[name] += time.Since(s)
		delete(t.started, name)
	}
}

// Snapshot returns a copy of the accumulated times
func (t *Timers) Snapshot() map[string]time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]time.Duration, len(t.elapsed))
	for k, v := range t.elapsed {
		out[k] = v
	}
	return out
}
