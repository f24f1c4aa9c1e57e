package engine

import (
	"sort"
	"sync"

	"github.com/ftahirops/perfdiag/model"
)

// History is a ring buffer of recent reports for trend comparison.
type History struct {
	buf  []*model.Report
	head int
	size int
	cap  int
	mu   sync.RWMutex
}

// NewHistory creates a ring buffer with the given capacity (minimum 1).
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		buf: make([]*model.Report, capacity),
		cap: capacity,
	}
}

// Push adds a report to the ring buffer.
func (h *History) Push(r *model.Report) {
	if r == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.head] = r
	h.head = (h.head + 1) % h.cap
	if h.size < h.cap {
		h.size++
	}
}

// Len returns the number of reports stored.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Latest returns the most recent report.
func (h *History) Latest() *model.Report {
	return h.Get(h.Len() - 1)
}

// Previous returns the report before the most recent one.
func (h *History) Previous() *model.Report {
	return h.Get(h.Len() - 2)
}

// Get returns the report at position i (0 = oldest in buffer).
func (h *History) Get(i int) *model.Report {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i < 0 || i >= h.size {
		return nil
	}
	idx := (h.head - h.size + i + h.cap) % h.cap
	return h.buf[idx]
}

// Comparison describes how a run differs from the one before it.
type Comparison struct {
	ScoreDelta          int      `json:"score_delta"`
	LevelChanged        bool     `json:"level_changed"`
	NewBottlenecks      []string `json:"new_bottlenecks,omitempty"`
	ResolvedBottlenecks []string `json:"resolved_bottlenecks,omitempty"`
}

// Compare reports the change from prev to curr. Bottlenecks are matched by metric.
func Compare(prev, curr *model.Report) Comparison {
	var c Comparison
	if prev == nil || curr == nil {
		return c
	}
	c.ScoreDelta = curr.Summary.HealthScore - prev.Summary.HealthScore
	c.LevelChanged = curr.Summary.PerformanceLevel != prev.Summary.PerformanceLevel

	before := bottleneckMetrics(prev)
	after := bottleneckMetrics(curr)
	for m := range after {
		if !before[m] {
			c.NewBottlenecks = append(c.NewBottlenecks, m)
		}
	}
	for m := range before {
		if !after[m] {
			c.ResolvedBottlenecks = append(c.ResolvedBottlenecks, m)
		}
	}
	sort.Strings(c.NewBottlenecks)
	sort.Strings(c.ResolvedBottlenecks)
	return c
}

// CompareLatest compares the two most recent reports.
func (h *History) CompareLatest() (Comparison, bool) {
	h.mu.RLock()
	enough := h.size >= 2
	h.mu.RUnlock()
	if !enough {
		return Comparison{}, false
	}
	return Compare(h.Previous(), h.Latest()), true
}

func bottleneckMetrics(r *model.Report) map[string]bool {
	out := make(map[string]bool)
	for _, b := range r.TechnicalDetails.Bottlenecks {
		out[b.Metric] = true
	}
	return out
}
