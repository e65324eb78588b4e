package hardware

import (
	"sync"
	"time"
)

type deltaSample struct {
	value uint64
	at    time.Time
}

// deltaEngine turns monotonically increasing counters into per-second rates.
type deltaEngine struct {
	mu      sync.Mutex
	samples map[string]deltaSample
}

func newDeltaEngine() *deltaEngine {
	return &deltaEngine{samples: make(map[string]deltaSample)}
}

// ObserveCounter stores current counter and returns delta + elapsed seconds from previous sample.
func (e *deltaEngine) ObserveCounter(key string, now time.Time, cur uint64) (delta uint64, seconds float64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev, exists := e.samples[key]
	e.samples[key] = deltaSample{value: cur, at: now}
	if !exists {
		return 0, 0, false
	}

	seconds = now.Sub(prev.at).Seconds()
	if seconds <= 0 {
		return 0, 0, false
	}
	if cur < prev.value {
		// counter reset/overflow/restart
		return 0, seconds, false
	}
	return cur - prev.value, seconds, true
}

// Rate is the per-second increase of the counter, or 0 on the first sample.
func (e *deltaEngine) Rate(key string, now time.Time, cur uint64) float64 {
	delta, seconds, ok := e.ObserveCounter(key, now, cur)
	if !ok || seconds <= 0 {
		return 0
	}
	return float64(delta) / seconds
}

// Forget drops keys that were not observed since cutoff.
func (e *deltaEngine) Forget(cutoff time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, s := range e.samples {
		if s.at.Before(cutoff) {
			delete(e.samples, k)
		}
	}
}
