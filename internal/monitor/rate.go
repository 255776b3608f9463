package monitor

import (
	"sync"
	"time"
)

// RateDetector keeps per-second counts over a sliding window and flags a
// second whose count exceeds threshold times the average of the others.
// Drains feed it reported drops to notice readers falling behind.
type RateDetector struct {
	mu        sync.Mutex
	window    time.Duration
	threshold float64
	now       func() time.Time
	buckets   []int64
	seconds   []time.Time
}

// NewRateDetector uses a 10s window and 3x threshold for out-of-range
// arguments.
func NewRateDetector(window time.Duration, threshold float64) *RateDetector {
	if window < time.Second {
		window = 10 * time.Second
	}
	if threshold <= 0 {
		threshold = 3.0
	}
	return &RateDetector{window: window, threshold: threshold, now: time.Now}
}

// Add records n events now and reports whether the current second spikes.
func (r *RateDetector) Add(n int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.prune(now)
	sec := now.Truncate(time.Second)
	if last := len(r.seconds) - 1; last >= 0 && r.seconds[last].Equal(sec) {
		r.buckets[last] += n
	} else {
		r.buckets = append(r.buckets, n)
		r.seconds = append(r.seconds, sec)
	}
	return r.spiking()
}

// Rate returns events per second over the window.
func (r *RateDetector) Rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(r.now())
	var total int64
	for _, b := range r.buckets {
		total += b
	}
	return float64(total) / r.window.Seconds()
}

// prune drops buckets older than the window. Must be called with r.mu held.
func (r *RateDetector) prune(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.seconds) && r.seconds[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		r.buckets = r.buckets[i:]
		r.seconds = r.seconds[i:]
	}
}

// spiking needs at least two earlier seconds of history. Must be called
// with r.mu held.
func (r *RateDetector) spiking() bool {
	if len(r.buckets) < 3 {
		return false
	}
	var sum int64
	for _, b := range r.buckets[:len(r.buckets)-1] {
		sum += b
	}
	avg := float64(sum) / float64(len(r.buckets)-1)
	if avg == 0 {
		return false
	}
	return float64(r.buckets[len(r.buckets)-1]) > avg*r.threshold
}
