// Package timeseries tracks output rates of a relayed process over rolling
// time windows.
//
// AddChunk is lock-free (atomic counters); Sample and Stats take the ring
// buffer lock. Memory is bounded by ringBufferSize samples.
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ringBufferSize is the number of samples retained (5 minutes at 1 sample/sec)
	ringBufferSize = 300

	// Window durations for rolling rates
	window1s  = 1 * time.Second
	window10s = 10 * time.Second
	window60s = 60 * time.Second
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

// realClock uses time.Now() for production.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// sample is a point-in-time snapshot of the cumulative counters.
type sample struct {
	timestamp time.Time
	bytes     int64
	chunks    int64
}

// RateTracker counts output bytes and chunks and computes rolling rates.
//
//	tracker := NewRateTracker()
//	tracker.AddChunk(len(chunk)) // per dispatched chunk
//	tracker.Sample()             // once per second, from a ticker
//	rates := tracker.Stats()     // for the dashboard and metrics
type RateTracker struct {
	totalBytes  atomic.Int64
	totalChunks atomic.Int64

	samples  []sample
	writeIdx int // next write position once the buffer is full
	peak     float64
	mu       sync.RWMutex

	startTime time.Time
	clock     Clock
}

// Rates contains computed rolling rates at a point in time.
type Rates struct {
	TotalBytes  int64
	TotalChunks int64

	// Bytes per second
	Bytes1s  float64
	Bytes10s float64
	Bytes60s float64

	// Chunks per second
	Chunks1s  float64
	Chunks10s float64

	// BytesOverall is the average since tracking started.
	BytesOverall float64

	// PeakBytes1s is the highest 1s byte rate seen at any Sample.
	PeakBytes1s float64
}

// NewRateTracker creates a tracker using the wall clock.
func NewRateTracker() *RateTracker {
	return NewRateTrackerWithClock(realClock{})
}

// NewRateTrackerWithClock creates a tracker with a custom clock for testing.
func NewRateTrackerWithClock(clock Clock) *RateTracker {
	now := clock.Now()
	t := &RateTracker{
		samples:   make([]sample, 0, ringBufferSize),
		startTime: now,
		clock:     clock,
	}
	t.samples = append(t.samples, sample{timestamp: now})
	return t
}

// AddChunk records one chunk of n bytes. Empty chunks are ignored.
func (t *RateTracker) AddChunk(n int) {
	if n <= 0 {
		return
	}
	t.totalBytes.Add(int64(n))
	t.totalChunks.Add(1)
}

// Sample records the current counters with a timestamp.
func (t *RateTracker) Sample() {
	now := t.clock.Now()
	s := sample{
		timestamp: now,
		bytes:     t.totalBytes.Load(),
		chunks:    t.totalChunks.Load(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) < ringBufferSize {
		t.samples = append(t.samples, s)
	} else {
		t.samples[t.writeIdx] = s
		t.writeIdx = (t.writeIdx + 1) % ringBufferSize
	}

	if r := t.rateOverWindow(now, s, window1s, bytesOf); r > t.peak {
		t.peak = r
	}
}

// Stats computes the current rates. With less history than a window, the
// oldest available sample is used.
func (t *RateTracker) Stats() Rates {
	now := t.clock.Now()
	cur := sample{
		timestamp: now,
		bytes:     t.totalBytes.Load(),
		chunks:    t.totalChunks.Load(),
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	r := Rates{
		TotalBytes:  cur.bytes,
		TotalChunks: cur.chunks,
		PeakBytes1s: t.peak,
	}

	if elapsed := now.Sub(t.startTime).Seconds(); elapsed > 0 {
		r.BytesOverall = float64(cur.bytes) / elapsed
	}

	r.Bytes1s = t.rateOverWindow(now, cur, window1s, bytesOf)
	r.Bytes10s = t.rateOverWindow(now, cur, window10s, bytesOf)
	r.Bytes60s = t.rateOverWindow(now, cur, window60s, bytesOf)
	r.Chunks1s = t.rateOverWindow(now, cur, window1s, chunksOf)
	r.Chunks10s = t.rateOverWindow(now, cur, window10s, chunksOf)

	return r
}

func bytesOf(s *sample) int64  { return s.bytes }
func chunksOf(s *sample) int64 { return s.chunks }

// rateOverWindow returns units/sec between the sample nearest to (not after)
// now-window and cur. Must be called with mu held.
func (t *RateTracker) rateOverWindow(now time.Time, cur sample, window time.Duration, value func(*sample) int64) float64 {
	target := now.Add(-window)

	var best *sample
	var bestDiff time.Duration = -1
	for i := range t.samples {
		s := &t.samples[i]
		if s.timestamp.After(target) {
			continue
		}
		diff := target.Sub(s.timestamp)
		if bestDiff < 0 || diff < bestDiff {
			best = s
			bestDiff = diff
		}
	}
	if best == nil {
		best = t.oldestSample()
	}
	if best == nil {
		return 0
	}

	elapsed := now.Sub(best.timestamp).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(value(&cur)-value(best)) / elapsed
}

// oldestSample returns the oldest sample in the ring buffer.
// Must be called with mu held.
func (t *RateTracker) oldestSample() *sample {
	if len(t.samples) == 0 {
		return nil
	}
	if len(t.samples) < ringBufferSize {
		return &t.samples[0]
	}
	return &t.samples[t.writeIdx]
}

// Reset clears all data and restarts tracking.
func (t *RateTracker) Reset() {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalBytes.Store(0)
	t.totalChunks.Store(0)
	t.samples = append(t.samples[:0], sample{timestamp: now})
	t.writeIdx = 0
	t.peak = 0
	t.startTime = now
}

// SampleCount returns the number of samples in the ring buffer.
func (t *RateTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}
