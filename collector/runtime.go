package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/ftahirops/perfdiag/model"
	"github.com/ftahirops/perfdiag/util"
)

var errWarmingUp = errors.New("waiting for a second reading")

// RuntimeProviders reports heap usage, goroutine count and the most recent
// GC pause of the current process.
func RuntimeProviders() []Provider {
	return []Provider{
		Func(model.MetricMemoryUsage, func(context.Context) (float64, error) {
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			return float64(ms.HeapAlloc), nil
		}),
		Func(model.MetricGoroutines, func(context.Context) (float64, error) {
			return float64(runtime.NumGoroutine()), nil
		}),
		Func(model.MetricGCPause, func(context.Context) (float64, error) {
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			if ms.NumGC == 0 {
				return 0, nil
			}
			pause := ms.PauseNs[(ms.NumGC+255)%256]
			return durationMs(time.Duration(pause)), nil
		}),
	}
}

// ProcStatusProvider reads the resident set size of pid from
// /proc/<pid>/status. pid 0 means the current process.
type ProcStatusProvider struct {
	path string
}

// NewProcStatusProvider creates a residentMemory provider for pid.
func NewProcStatusProvider(pid int) *ProcStatusProvider {
	if pid <= 0 {
		pid = os.Getpid()
	}
	return &ProcStatusProvider{path: fmt.Sprintf("/proc/%d/status", pid)}
}

func (p *ProcStatusProvider) Name() string { return model.MetricResidentMemory }

func (p *ProcStatusProvider) Value(context.Context) (float64, error) {
	kv, err := util.ParseKeyValueFile(p.path)
	if err != nil {
		return 0, err
	}
	raw, ok := kv["VmRSS"]
	if !ok {
		return 0, fmt.Errorf("%s: VmRSS not present", p.path)
	}
	b, err := util.ParseKB(raw)
	if err != nil {
		return 0, err
	}
	return float64(b), nil
}

// GrowthProvider turns a gauge into its per-second rate of change between
// consecutive reads. The first read only primes it.
type GrowthProvider struct {
	name  string
	inner Provider
	now   func() time.Time

	mu     sync.Mutex
	primed bool
	prev   float64
	prevAt time.Time
}

// NewGrowthProvider reports the growth rate of inner under name.
func NewGrowthProvider(name string, inner Provider) *GrowthProvider {
	return &GrowthProvider{name: name, inner: inner, now: time.Now}
}

func (g *GrowthProvider) Name() string { return g.name }

func (g *GrowthProvider) Value(ctx context.Context) (float64, error) {
	v, err := g.inner.Value(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", g.inner.Name(), err)
	}
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.primed {
		g.primed, g.prev, g.prevAt = true, v, now
		return 0, errWarmingUp
	}
	rate := util.Rate(g.prev, v, now.Sub(g.prevAt))
	g.prev, g.prevAt = v, now
	return rate, nil
}
