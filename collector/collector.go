package collector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Provider supplies one metric value per sampling tick.
type Provider interface {
	Name() string
	Value(ctx context.Context) (float64, error)
}

type funcProvider struct {
	name string
	fn   func(ctx context.Context) (float64, error)
}

func (p funcProvider) Name() string                               { return p.name }
func (p funcProvider) Value(ctx context.Context) (float64, error) { return p.fn(ctx) }

// Func adapts a plain function into a Provider.
func Func(name string, fn func(ctx context.Context) (float64, error)) Provider {
	return funcProvider{name: name, fn: fn}
}

// ErrDuplicateProvider is returned when two providers share a metric name.
var ErrDuplicateProvider = errors.New("duplicate provider")

// Registry holds the providers sampled on every tick, in registration order.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewRegistry creates a registry with the given providers.
// Later providers with a name already present are ignored.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{}
	for _, p := range providers {
		_ = r.Add(p)
	}
	return r
}

// Add registers an additional provider.
func (r *Registry) Add(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.providers {
		if existing.Name() == p.Name() {
			return fmt.Errorf("%w: %s", ErrDuplicateProvider, p.Name())
		}
	}
	r.providers = append(r.providers, p)
	return nil
}

// Names returns the registered metric names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// Len returns the number of providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// ProviderError records one provider failure during a tick.
type ProviderError struct {
	Metric string
	Err    error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("provider %s: %v", e.Metric, e.Err) }
func (e *ProviderError) Unwrap() error { return e.Err }

// CollectAll calls every provider once. Failed metrics are left out of values
// and listed in missing (sorted); a single failing provider never stops the rest.
func (r *Registry) CollectAll(ctx context.Context) (values map[string]float64, missing []string, errs []error) {
	r.mu.RLock()
	providers := make([]Provider, len(r.providers))
	copy(providers, r.providers)
	r.mu.RUnlock()

	values = make(map[string]float64, len(providers))
	for _, p := range providers {
		v, err := collectOne(ctx, p)
		if err != nil {
			missing = append(missing, p.Name())
			errs = append(errs, &ProviderError{Metric: p.Name(), Err: err})
			continue
		}
		values[p.Name()] = v
	}
	sort.Strings(missing)
	return values, missing, errs
}

// collectOne turns provider panics and non-finite values into errors.
func collectOne(ctx context.Context, p Provider) (v float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			v, err = 0, fmt.Errorf("panic: %v", rec)
		}
	}()
	v, err = p.Value(ctx)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %v", v)
	}
	return v, nil
}
