package collector

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/perfdiag/model"
)

func constant(name string, v float64) Provider {
	return Func(name, func(context.Context) (float64, error) { return v, nil })
}

func failing(name string) Provider {
	return Func(name, func(context.Context) (float64, error) { return 0, errors.New("sensor offline") })
}

// fakeClock hands out scripted times, then keeps returning the last one.
type fakeClock struct {
	mu    sync.Mutex
	times []time.Time
	i     int
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.times[c.i]
	if c.i < len(c.times)-1 {
		c.i++
	}
	return t
}

func TestRegistryIsolatesFailures(t *testing.T) {
	reg := NewRegistry(
		constant("a", 1),
		failing("b"),
		Func("c", func(context.Context) (float64, error) { panic("boom") }),
		constant("d", math.NaN()),
		constant("e", math.Inf(1)),
	)
	values, missing, errs := reg.CollectAll(context.Background())
	assert.Equal(t, map[string]float64{"a": 1}, values)
	assert.Equal(t, []string{"b", "c", "d", "e"}, missing)
	require.Len(t, errs, 4)

	var pe *ProviderError
	require.True(t, errors.As(errs[0], &pe))
	assert.Equal(t, "b", pe.Metric)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry(constant("a", 1))
	err := reg.Add(constant("a", 2))
	assert.ErrorIs(t, err, ErrDuplicateProvider)
	assert.Equal(t, []string{"a"}, reg.Names())
	assert.Equal(t, 1, reg.Len())
}

func TestStopWithoutStart(t *testing.T) {
	s := NewSampler(NewRegistry())
	sess := s.Stop()
	require.NotNil(t, sess)
	assert.NotEmpty(t, sess.ID)
	assert.Zero(t, sess.Len())
	assert.False(t, s.Collecting())
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	s := NewSampler(NewRegistry())
	err := s.Start(context.Background(), model.SessionConfig{Interval: 0})
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
	assert.False(t, s.Collecting())
}

func TestCollectSampleOutsideSession(t *testing.T) {
	s := NewSampler(NewRegistry(constant("a", 1)))
	_, ok := s.CollectSample()
	assert.False(t, ok)
}

func TestManualSamplesClampTimestamps(t *testing.T) {
	t0 := time.Unix(1000, 0)
	clock := &fakeClock{times: []time.Time{
		t0,                      // start
		t0.Add(2 * time.Second), // sample 1
		t0.Add(time.Second),     // sample 2 goes backwards
		t0.Add(3 * time.Second), // sample 3
		t0.Add(4 * time.Second), // stop
	}}
	var hooked []model.Sample
	s := NewSampler(
		NewRegistry(constant("a", 1), failing("b")),
		WithClock(clock.Now),
		WithSampleHook(func(smp model.Sample) { hooked = append(hooked, smp) }),
	)
	require.NoError(t, s.Start(context.Background(), model.SessionConfig{Interval: time.Hour}))

	for i := 0; i < 3; i++ {
		_, ok := s.CollectSample()
		require.True(t, ok)
	}
	sess := s.Stop()

	require.Equal(t, 3, sess.Len())
	assert.NoError(t, sess.Validate())
	assert.Equal(t, t0.Add(2*time.Second), sess.Samples[1].Timestamp)
	assert.False(t, sess.Samples[0].Complete)
	assert.Equal(t, []string{"b"}, sess.Samples[0].Missing)
	assert.Len(t, hooked, 3)
	assert.Equal(t, t0.Add(4*time.Second), sess.EndTime)
	assert.False(t, sess.Canceled)
}

func TestStopIsIdempotentAndSeals(t *testing.T) {
	s := NewSampler(NewRegistry(constant("a", 1)))
	require.NoError(t, s.Start(context.Background(), model.SessionConfig{Interval: time.Hour}))
	_, ok := s.CollectSample()
	require.True(t, ok)

	first := s.Stop()
	_, ok = s.CollectSample()
	assert.False(t, ok)
	second := s.Stop()
	assert.Same(t, first, second)
	assert.Equal(t, 1, second.Len())
}

func TestStartTwice(t *testing.T) {
	s := NewSampler(NewRegistry(constant("a", 1)))
	require.NoError(t, s.Start(context.Background(), model.SessionConfig{Interval: time.Hour}))
	defer s.Stop()
	assert.ErrorIs(t, s.Start(context.Background(), model.SessionConfig{Interval: time.Hour}), ErrAlreadyRunning)
}

func TestRestartAfterStopKeepsNewSession(t *testing.T) {
	s := NewSampler(NewRegistry(constant("a", 1)))
	cfg := model.SessionConfig{Interval: time.Millisecond, MaxDuration: time.Minute}
	for i := 0; i < 50; i++ {
		require.NoError(t, s.Start(context.Background(), cfg))
		oldDone := s.Done()
		first := s.Stop()

		require.NoError(t, s.Start(context.Background(), cfg))
		select {
		case <-oldDone:
		case <-time.After(5 * time.Second):
			t.Fatal("first collection loop did not exit")
		}
		time.Sleep(2 * time.Millisecond)
		require.True(t, s.Collecting(), "round %d: restarted session was sealed by the previous loop", i)

		second := s.Stop()
		assert.NotEqual(t, first.ID, second.ID)
		assert.False(t, second.Canceled)
		select {
		case <-s.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("second collection loop did not exit")
		}
	}
}

func TestMaxDurationEndsCollection(t *testing.T) {
	var failures atomic.Int32
	s := NewSampler(
		NewRegistry(constant("a", 1), failing("b")),
		WithFailureHook(func(metric string, err error) { failures.Add(1) }),
	)
	require.NoError(t, s.Start(context.Background(), model.SessionConfig{
		Interval:    5 * time.Millisecond,
		MaxDuration: 60 * time.Millisecond,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess := s.Wait(ctx)

	assert.False(t, sess.Canceled)
	assert.Greater(t, sess.Len(), 0)
	assert.NoError(t, sess.Validate())
	assert.GreaterOrEqual(t, int(failures.Load()), sess.Len())
	assert.False(t, s.Collecting())
}

func TestParentCancelMarksSessionCanceled(t *testing.T) {
	s := NewSampler(NewRegistry(constant("a", 1)))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx, model.SessionConfig{Interval: 5 * time.Millisecond}))
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("collection did not stop after cancel")
	}
	sess := s.Stop()
	assert.True(t, sess.Canceled)
}

func TestWaitContextSealsEarly(t *testing.T) {
	s := NewSampler(NewRegistry(constant("a", 1)))
	require.NoError(t, s.Start(context.Background(), model.SessionConfig{Interval: time.Hour}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sess := s.Wait(ctx)
	assert.True(t, sess.Canceled)
	assert.False(t, s.Collecting())
}

func TestFrameTimer(t *testing.T) {
	now := time.Unix(0, 0)
	f := NewFrameTimer()
	f.now = func() time.Time { return now }

	_, err := f.Rate()
	assert.Error(t, err)

	// 30 frames over one second, 10ms each
	for i := 0; i < 30; i++ {
		now = now.Add(time.Second / 30)
		f.Frame(10 * time.Millisecond)
	}
	fps, err := f.Rate()
	require.NoError(t, err)
	assert.InDelta(t, 30, fps, 1)
	rt, err := f.RenderTime()
	require.NoError(t, err)
	assert.InDelta(t, 10, rt, 1e-9)

	// stall: window empties, rate drops to zero
	now = now.Add(5 * time.Second)
	fps, err = f.Rate()
	require.NoError(t, err)
	assert.Zero(t, fps)
	_, err = f.RenderTime()
	assert.Error(t, err)

	assert.Len(t, f.Providers(), 2)
}

func TestLatencyTracker(t *testing.T) {
	l := NewLatencyTracker(model.MetricNetworkLatency)
	_, err := l.Value(context.Background())
	assert.Error(t, err)

	l.Observe(40 * time.Millisecond)
	l.Observe(60 * time.Millisecond)
	v, err := l.Value(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50, v, 1e-9)

	// reset after read
	_, err = l.Value(context.Background())
	assert.Error(t, err)
}

func TestGrowthProvider(t *testing.T) {
	now := time.Unix(0, 0)
	val := 1000.0
	g := NewGrowthProvider(model.MetricMemoryGrowth, Func("mem", func(context.Context) (float64, error) { return val, nil }))
	g.now = func() time.Time { return now }

	_, err := g.Value(context.Background())
	assert.Error(t, err)

	now = now.Add(2 * time.Second)
	val = 3000
	rate, err := g.Value(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1000, rate, 1e-9)
}

func TestProcStatusProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status")
	require.NoError(t, os.WriteFile(path, []byte("Name:\tgame\nVmRSS:\t  4 kB\n"), 0o644))
	p := &ProcStatusProvider{path: path}
	v, err := p.Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4096.0, v)
	assert.Equal(t, model.MetricResidentMemory, p.Name())

	require.NoError(t, os.WriteFile(path, []byte("Name:\tgame\n"), 0o644))
	_, err = p.Value(context.Background())
	assert.Error(t, err)
}

func TestRuntimeProviders(t *testing.T) {
	values, missing, _ := NewRegistry(RuntimeProviders()...).CollectAll(context.Background())
	assert.Empty(t, missing)
	assert.Greater(t, values[model.MetricMemoryUsage], 0.0)
	assert.GreaterOrEqual(t, values[model.MetricGoroutines], 1.0)
}

func TestTelemetrySourceSharesFetch(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"frameRate": 58.5, "inputLag": 12, "build": "dev"}`))
	}))
	defer srv.Close()

	src := NewTelemetrySource(srv.URL, time.Minute, nil)
	reg := NewRegistry(src.Providers(model.MetricFrameRate, model.MetricInputLag, "build")...)
	values, missing, _ := reg.CollectAll(context.Background())

	assert.Equal(t, 58.5, values[model.MetricFrameRate])
	assert.Equal(t, 12.0, values[model.MetricInputLag])
	assert.Equal(t, []string{"build"}, missing)
	assert.EqualValues(t, 1, hits.Load())
}

func TestTelemetrySourceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := NewTelemetrySource(srv.URL, 0, nil)
	_, err := src.Provider(model.MetricFrameRate).Value(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
