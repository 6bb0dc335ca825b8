package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"driver-dispatch/internal/domain/geo"
	"driver-dispatch/internal/general/logger"
	"driver-dispatch/internal/ports"
)

const restartDelay = 5 * time.Second

// Sampler turns a Provider into a restartable sample stream.
type Sampler struct {
	provider    Provider
	minInterval time.Duration
	logger      *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc

	lastMu        sync.RWMutex
	last          geo.Sample
	hasLast       bool
	lastForwarded time.Time
}

var _ ports.LocationSource = (*Sampler)(nil)

// NewSampler wraps provider. Fixes closer together than minInterval update Last but are not
// forwarded; zero forwards every fix.
func NewSampler(provider Provider, minInterval time.Duration, log *logger.Logger) *Sampler {
	return &Sampler{provider: provider, minInterval: minInterval, logger: log}
}

// Start begins watching the provider. Calling Start on a running sampler is a no-op.
func (s *Sampler) Start(onSample func(geo.Sample), onError func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.lastMu.Lock()
	s.lastForwarded = time.Time{}
	s.lastMu.Unlock()

	go s.run(ctx, onSample, onError)
}

// Stop ends the watch. Safe to call repeatedly and before Start.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Last returns the most recent fix, forwarded or not.
func (s *Sampler) Last() (geo.Sample, bool) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last, s.hasLast
}

func (s *Sampler) run(ctx context.Context, onSample func(geo.Sample), onError func(error)) {
	onFix := func(sample geo.Sample) {
		if ctx.Err() != nil {
			return
		}
		if err := sample.Validate(); err != nil {
			s.report(ctx, onError, err)
			return
		}
		if s.remember(sample) && onSample != nil {
			onSample(sample)
		}
	}
	onErr := func(err error) {
		if ctx.Err() == nil {
			s.report(ctx, onError, err)
		}
	}

	for {
		err := s.provider.Watch(ctx, onFix, onErr)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = fmt.Errorf("location provider stopped")
		}
		s.report(ctx, onError, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
		}
	}
}

// remember stores sample as Last and reports whether it should be forwarded.
func (s *Sampler) remember(sample geo.Sample) bool {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()

	s.last = sample
	s.hasLast = true

	if s.minInterval > 0 && !s.lastForwarded.IsZero() && sample.CapturedAt.Sub(s.lastForwarded) < s.minInterval {
		return false
	}
	s.lastForwarded = sample.CapturedAt
	return true
}

func (s *Sampler) report(ctx context.Context, onError func(error), err error) {
	s.logger.Warn(ctx, "location_error", "Position acquisition failed", map[string]any{"error": err.Error()})
	if onError != nil {
		onError(err)
	}
}
