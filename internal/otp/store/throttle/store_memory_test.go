package throttle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type InMemoryThrottleSuite struct {
	suite.Suite
	mu    sync.Mutex
	now   time.Time
	store *InMemory
	ctx   context.Context
}

func TestInMemoryThrottleSuite(t *testing.T) {
	suite.Run(t, new(InMemoryThrottleSuite))
}

func (s *InMemoryThrottleSuite) SetupTest() {
	s.now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.store = NewInMemory(WithClock(func() time.Time {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.now
	}))
	s.ctx = context.Background()
}

func (s *InMemoryThrottleSuite) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

func (s *InMemoryThrottleSuite) TestLimitWithinWindow() {
	for i := range 3 {
		res, err := s.store.Allow(s.ctx, "k", 3, time.Minute)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(2-i, res.Remaining)
	}
	res, err := s.store.Allow(s.ctx, "k", 3, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(s.now.Add(time.Minute), res.ResetAt)

	other, err := s.store.Allow(s.ctx, "other", 3, time.Minute)
	s.Require().NoError(err)
	s.True(other.Allowed)
}

func (s *InMemoryThrottleSuite) TestWindowSlides() {
	_, _ = s.store.Allow(s.ctx, "k", 2, time.Minute)
	s.advance(40 * time.Second)
	_, _ = s.store.Allow(s.ctx, "k", 2, time.Minute)

	res, _ := s.store.Allow(s.ctx, "k", 2, time.Minute)
	s.False(res.Allowed)

	s.advance(21 * time.Second)
	res, _ = s.store.Allow(s.ctx, "k", 2, time.Minute)
	s.True(res.Allowed, "the first event left the window")

	res, _ = s.store.Allow(s.ctx, "k", 2, time.Minute)
	s.False(res.Allowed)
}

func (s *InMemoryThrottleSuite) TestReset() {
	_, _ = s.store.Allow(s.ctx, "k", 1, time.Minute)
	res, _ := s.store.Allow(s.ctx, "k", 1, time.Minute)
	s.False(res.Allowed)

	s.Require().NoError(s.store.Reset(s.ctx, "k"))
	res, _ = s.store.Allow(s.ctx, "k", 1, time.Minute)
	s.True(res.Allowed)
}

func (s *InMemoryThrottleSuite) TestConcurrentCallersRespectLimit() {
	const callers = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.store.Allow(s.ctx, "burst", 10, time.Minute)
			if err == nil && res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(10, allowed)
}

func (s *InMemoryThrottleSuite) TestIdleKeysAreSwept() {
	_, _ = s.store.Allow(s.ctx, "idle", 3, time.Minute)
	_, _ = s.store.Allow(s.ctx, "busy", 3, time.Hour)

	s.advance(sweepInterval + time.Second)
	_, _ = s.store.Allow(s.ctx, "fresh", 3, time.Minute)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.NotContains(s.store.windows, "idle")
	s.Contains(s.store.windows, "busy", "events still inside an hour window are kept")
	s.Contains(s.store.windows, "fresh")
}
