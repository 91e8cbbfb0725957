package http

import (
	"sync"
	"time"
)

// dialLimiter caps outbound dials per identity in fixed one-minute windows.
type dialLimiter struct {
	limit int

	mu      sync.Mutex
	counter map[string]int
	reset   *time.Ticker
}

func newDialLimiter(limit int) *dialLimiter {
	if limit <= 0 {
		return &dialLimiter{limit: 0}
	}
	return &dialLimiter{
		limit:   limit,
		counter: make(map[string]int),
		reset:   time.NewTicker(time.Minute),
	}
}

func (r *dialLimiter) allow(identity string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter[identity]++
	return r.counter[identity] <= r.limit
}

func (r *dialLimiter) clear() {
	r.mu.Lock()
	r.counter = make(map[string]int)
	r.mu.Unlock()
}

func (r *dialLimiter) startReset(stop <-chan struct{}) {
	if r == nil || r.reset == nil {
		return
	}
	go func() {
		for {
			select {
			case <-r.reset.C:
				r.clear()
			case <-stop:
				r.reset.Stop()
				return
			}
		}
	}()
}
