package location

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"driver-dispatch/internal/domain/geo"
	"driver-dispatch/internal/general/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanProvider forwards whatever the test pushes into fixes.
type chanProvider struct {
	fixes   chan geo.Sample
	errs    chan error
	watches atomic.Int32
}

func newChanProvider() *chanProvider {
	return &chanProvider{fixes: make(chan geo.Sample, 16), errs: make(chan error, 16)}
}

func (p *chanProvider) Watch(ctx context.Context, onFix func(geo.Sample), onErr func(error)) error {
	p.watches.Add(1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-p.fixes:
			onFix(s)
		case err := <-p.errs:
			onErr(err)
		}
	}
}

type collector struct {
	mu      sync.Mutex
	samples []geo.Sample
	errs    []error
}

func (c *collector) sample(s geo.Sample) {
	c.mu.Lock()
	c.samples = append(c.samples, s)
	c.mu.Unlock()
}

func (c *collector) err(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func (c *collector) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples), len(c.errs)
}

func TestSampler_ForwardsFixesAndErrors(t *testing.T) {
	p := newChanProvider()
	s := NewSampler(p, 0, logger.NewNop())
	c := &collector{}

	s.Start(c.sample, c.err)
	s.Start(c.sample, c.err) // no second watch
	t.Cleanup(s.Stop)

	now := time.Now()
	p.fixes <- geo.Sample{Latitude: 1, Longitude: 2, CapturedAt: now}
	p.errs <- errors.New("gps lost")
	p.fixes <- geo.Sample{Latitude: 3, Longitude: 4, CapturedAt: now.Add(time.Second)}
	p.fixes <- geo.Sample{Latitude: 95, Longitude: 4, CapturedAt: now.Add(2 * time.Second)} // invalid

	require.Eventually(t, func() bool {
		n, e := c.counts()
		return n == 2 && e == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(1), p.watches.Load())
	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 3.0, last.Latitude)
}

func TestSampler_MinIntervalThrottles(t *testing.T) {
	p := newChanProvider()
	s := NewSampler(p, 10*time.Second, logger.NewNop())
	c := &collector{}
	s.Start(c.sample, c.err)
	t.Cleanup(s.Stop)

	base := time.Now()
	p.fixes <- geo.Sample{Latitude: 1, Longitude: 1, CapturedAt: base}
	p.fixes <- geo.Sample{Latitude: 2, Longitude: 2, CapturedAt: base.Add(time.Second)}
	p.fixes <- geo.Sample{Latitude: 3, Longitude: 3, CapturedAt: base.Add(11 * time.Second)}

	require.Eventually(t, func() bool {
		last, _ := s.Last()
		return last.Latitude == 3
	}, time.Second, 5*time.Millisecond)

	n, _ := c.counts()
	assert.Equal(t, 2, n)
}

func TestSampler_StopThenStartRestarts(t *testing.T) {
	p := newChanProvider()
	s := NewSampler(p, 0, logger.NewNop())
	c := &collector{}

	s.Stop() // before Start
	s.Start(c.sample, c.err)
	s.Stop()
	s.Stop()

	s.Start(c.sample, c.err)
	t.Cleanup(s.Stop)

	require.Eventually(t, func() bool { return p.watches.Load() == 2 }, time.Second, 5*time.Millisecond)

	p.fixes <- geo.Sample{Latitude: 1, Longitude: 1, CapturedAt: time.Now()}
	require.Eventually(t, func() bool {
		n, _ := c.counts()
		return n == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSampler_StoppedSamplerForwardsNothing(t *testing.T) {
	p := newChanProvider()
	s := NewSampler(p, 0, logger.NewNop())
	c := &collector{}

	s.Start(c.sample, c.err)
	require.Eventually(t, func() bool { return p.watches.Load() == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()

	p.fixes <- geo.Sample{Latitude: 1, Longitude: 1, CapturedAt: time.Now()}
	time.Sleep(50 * time.Millisecond)

	n, _ := c.counts()
	assert.Zero(t, n)
}
