// internal/relay/throttle.go
//
// Per-client sliding-window throttle.
//
// Each client key (the visitor IP) maps to the timestamps of its recent
// attempts.  The map is an LRU, so a spray of distinct addresses evicts the
// oldest keys instead of growing without bound.  Evictions are counted in
// relay_throttle_evictions_total.

package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/ruthram360/site/internal/cache"
	"github.com/ruthram360/site/internal/metrics"
)

// ErrThrottled is returned by Hit once a key exceeds its budget.
var ErrThrottled = errors.New("relay: throttled")

// DefaultThrottleKeys bounds how many client keys are tracked.
const DefaultThrottleKeys = 4096

// Throttle allows at most limit hits per key within window.  A nil
// *Throttle allows everything.
type Throttle struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits *cache.LRU // key → []time.Time, oldest first
}

// NewThrottle returns nil when limit < 1, which disables throttling.
func NewThrottle(limit int, window time.Duration, keys int) *Throttle {
	if limit < 1 || window <= 0 {
		return nil
	}
	if keys < 1 {
		keys = DefaultThrottleKeys
	}
	hits := cache.New(keys)
	hits.OnEvict = func(_, _ any) { metrics.RelayThrottleEvictionsTotal.Inc() }
	return &Throttle{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   hits,
	}
}

// Hit records one attempt for key.  It returns ErrThrottled, without
// recording, when the key already used its budget for the current window.
func (t *Throttle) Hit(key string) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-t.window)

	var prev []time.Time
	if v, ok := t.hits.Get(key); ok {
		prev = v.([]time.Time)
	}
	recent := make([]time.Time, 0, len(prev)+1)
	for _, ts := range prev {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= t.limit {
		t.hits.Add(key, recent)
		return ErrThrottled
	}
	t.hits.Add(key, append(recent, now))
	metrics.RelayThrottleTrackedClients.Set(float64(t.hits.Len()))
	return nil
}
