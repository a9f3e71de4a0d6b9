package server

import (
	"sync"
	"time"

	"github.com/boop-box/boopbox-go/pkg/wire"
)

// Throttle rate limits CheckUID per tag: after an answered check, further
// checks of the same tag within the window are throttled.
type Throttle struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[wire.UID]time.Time
}

// NewThrottle returns a Throttle. A zero window never throttles.
func NewThrottle(window time.Duration) *Throttle {
	return &Throttle{
		window: window,
		now:    time.Now,
		last:   make(map[wire.UID]time.Time),
	}
}

// Allow reports whether uid may be checked now and, if so, starts a new window.
func (t *Throttle) Allow(uid wire.UID) bool {
	if t.window <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.last[uid]; ok && now.Sub(last) < t.window {
		return false
	}
	t.last[uid] = now

	// Forget expired entries so the map stays small.
	for k, v := range t.last {
		if now.Sub(v) >= t.window {
			delete(t.last, k)
		}
	}
	return true
}
