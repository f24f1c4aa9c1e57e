package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ftahirops/perfdiag/logging"
	"github.com/ftahirops/perfdiag/model"
)

// ErrAlreadyRunning is returned by Start while a collection is in flight.
var ErrAlreadyRunning = errors.New("collection already running")

// Sampler gathers samples from a Registry at a fixed cadence for a bounded
// duration. It owns no analysis logic.
type Sampler struct {
	registry  *Registry
	log       *zap.Logger
	now       func() time.Time
	onSample  func(model.Sample)
	onFailure func(metric string, err error)

	mu         sync.Mutex
	collecting bool
	session    *model.Session
	sealed     *model.Session
	last       time.Time
	runCtx     context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithLogger sets the sampler's logger.
func WithLogger(l *zap.Logger) SamplerOption {
	return func(s *Sampler) { s.log = logging.OrNop(l) }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) SamplerOption {
	return func(s *Sampler) { s.now = now }
}

// WithSampleHook is called after each recorded sample, outside the lock.
func WithSampleHook(fn func(model.Sample)) SamplerOption {
	return func(s *Sampler) { s.onSample = fn }
}

// WithFailureHook is called for every provider failure.
func WithFailureHook(fn func(metric string, err error)) SamplerOption {
	return func(s *Sampler) { s.onFailure = fn }
}

// NewSampler creates an idle sampler over reg.
func NewSampler(reg *Registry, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		registry: reg,
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a new session and schedules a tick every cfg.Interval.
// Collection ends on Stop, when cfg.MaxDuration elapses (if > 0), or when
// ctx is done; the last case marks the session canceled.
func (s *Sampler) Start(ctx context.Context, cfg model.SessionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collecting {
		return ErrAlreadyRunning
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if cfg.MaxDuration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.MaxDuration)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	s.session = &model.Session{
		ID:        uuid.NewString(),
		StartTime: s.now(),
		Config:    cfg,
	}
	s.sealed = nil
	s.last = time.Time{}
	s.collecting = true
	s.runCtx = runCtx
	s.cancel = cancel
	s.done = make(chan struct{})

	s.log.Info("diagnostic collection started",
		zap.String("session_id", s.session.ID),
		zap.Duration("interval", cfg.Interval),
		zap.Duration("max_duration", cfg.MaxDuration),
		zap.Strings("metrics", s.registry.Names()))

	go s.loop(runCtx, ctx, s.session.ID, cfg.Interval, s.done)
	return nil
}

// loop serves only the session it was started for. After a Stop and a
// new Start it must neither sample into nor seal the newer session.
func (s *Sampler) loop(ctx, parent context.Context, sessionID string, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.session != nil && s.session.ID == sessionID {
				s.sealLocked(parent.Err() != nil)
			}
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.collect(sessionID)
		}
	}
}

// Collecting reports whether a session is open.
func (s *Sampler) Collecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collecting
}

// Done returns a channel closed when the current collection ends.
// It is nil before the first Start.
func (s *Sampler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// CollectSample takes one sample immediately. It is a no-op returning
// false when no session is open.
func (s *Sampler) CollectSample() (model.Sample, bool) {
	return s.collect("")
}

// collect samples into the open session. A non-empty want restricts it to
// that session.
func (s *Sampler) collect(want string) (model.Sample, bool) {
	s.mu.Lock()
	if !s.collecting || (want != "" && s.session.ID != want) {
		s.mu.Unlock()
		return model.Sample{}, false
	}
	ctx := s.runCtx
	sessionID := s.session.ID
	s.mu.Unlock()

	ts := s.now()
	values, missing, errs := s.registry.CollectAll(ctx)
	for _, err := range errs {
		var pe *ProviderError
		metric := ""
		if errors.As(err, &pe) {
			metric = pe.Metric
		}
		s.log.Warn("metric provider failed",
			zap.String("session_id", sessionID),
			zap.String("metric", metric),
			zap.Error(err))
		if s.onFailure != nil {
			s.onFailure(metric, err)
		}
	}

	s.mu.Lock()
	// sealed while the providers were running
	if !s.collecting || s.session.ID != sessionID {
		s.mu.Unlock()
		return model.Sample{}, false
	}
	if ts.Before(s.last) {
		ts = s.last
	}
	s.last = ts
	smp := model.Sample{
		Timestamp: ts,
		Metrics:   values,
		Complete:  len(missing) == 0,
		Missing:   missing,
	}
	s.session.Samples = append(s.session.Samples, smp)
	s.mu.Unlock()

	if s.onSample != nil {
		s.onSample(smp)
	}
	return smp, true
}

// Stop seals and returns the current session. It never fails: without a
// prior Start it returns an empty session, and repeated calls return the
// same sealed session.
func (s *Sampler) Stop() *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collecting {
		s.sealLocked(false)
	}
	if s.sealed != nil {
		return s.sealed
	}
	now := s.now()
	return &model.Session{ID: uuid.NewString(), StartTime: now, EndTime: now}
}

// Wait blocks until collection ends on its own or ctx is done. In the
// latter case the session is sealed early and marked canceled.
func (s *Sampler) Wait(ctx context.Context) *model.Session {
	done := s.Done()
	if done == nil {
		return s.Stop()
	}
	select {
	case <-done:
	case <-ctx.Done():
		s.mu.Lock()
		if s.collecting {
			s.sealLocked(true)
		}
		s.mu.Unlock()
	}
	return s.Stop()
}

func (s *Sampler) sealLocked(canceled bool) {
	if !s.collecting {
		return
	}
	s.collecting = false
	if s.cancel != nil {
		s.cancel()
	}

	sess := *s.session
	sess.EndTime = s.now()
	if sess.EndTime.Before(s.last) {
		sess.EndTime = s.last
	}
	sess.Canceled = canceled
	sess.Samples = make([]model.Sample, len(s.session.Samples))
	copy(sess.Samples, s.session.Samples)
	s.sealed = &sess

	s.log.Info("diagnostic collection stopped",
		zap.String("session_id", sess.ID),
		zap.Int("samples", len(sess.Samples)),
		zap.Bool("canceled", canceled),
		zap.Duration("elapsed", sess.Duration()))
}
