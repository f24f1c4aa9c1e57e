package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ftahirops/perfdiag/model"
)

var (
	errNoFrames       = errors.New("no frames recorded")
	errNoObservations = errors.New("no observations since last sample")
)

const defaultFrameWindow = time.Second

type frameRecord struct {
	at     time.Time
	render time.Duration
}

// FrameTimer is fed by the host's render loop and exposes frame rate and
// mean render time over a sliding window.
type FrameTimer struct {
	mu     sync.Mutex
	now    func() time.Time
	window time.Duration
	frames []frameRecord
	seen   bool
}

// NewFrameTimer creates a timer with a one second window.
func NewFrameTimer() *FrameTimer {
	return &FrameTimer{now: time.Now, window: defaultFrameWindow}
}

// Frame records a completed frame that took render to draw.
func (f *FrameTimer) Frame(render time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	f.frames = append(f.frames, frameRecord{at: now, render: render})
	f.seen = true
	f.pruneLocked(now)
}

func (f *FrameTimer) pruneLocked(now time.Time) {
	cutoff := now.Add(-f.window)
	i := 0
	for i < len(f.frames) && !f.frames[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		f.frames = append(f.frames[:0], f.frames[i:]...)
	}
}

// Rate returns frames per second over the window. A stalled loop that has
// drawn at least once reports 0.
func (f *FrameTimer) Rate() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.seen {
		return 0, errNoFrames
	}
	f.pruneLocked(f.now())
	return float64(len(f.frames)) / f.window.Seconds(), nil
}

// RenderTime returns the mean render duration in ms over the window.
func (f *FrameTimer) RenderTime() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneLocked(f.now())
	if len(f.frames) == 0 {
		return 0, errNoFrames
	}
	var total time.Duration
	for _, fr := range f.frames {
		total += fr.render
	}
	return durationMs(total) / float64(len(f.frames)), nil
}

// Providers returns the frameRate and renderTime providers.
func (f *FrameTimer) Providers() []Provider {
	return []Provider{
		Func(model.MetricFrameRate, func(context.Context) (float64, error) { return f.Rate() }),
		Func(model.MetricRenderTime, func(context.Context) (float64, error) { return f.RenderTime() }),
	}
}

// LatencyTracker averages durations observed between two samples, such as
// network round trips or input-to-present lag.
type LatencyTracker struct {
	name  string
	mu    sync.Mutex
	total time.Duration
	count int
}

// NewLatencyTracker creates a tracker reported under metric name.
func NewLatencyTracker(name string) *LatencyTracker {
	return &LatencyTracker{name: name}
}

// Observe records one measurement.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	l.total += d
	l.count++
	l.mu.Unlock()
}

func (l *LatencyTracker) Name() string { return l.name }

// Value returns the mean latency in ms since the previous call and resets.
func (l *LatencyTracker) Value(context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return 0, errNoObservations
	}
	v := durationMs(l.total) / float64(l.count)
	l.total, l.count = 0, 0
	return v, nil
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
