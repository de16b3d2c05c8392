package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestWindowLimiter_AllowsUpToLimit(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := NewWindowLimiter(time.Minute, 3, WithClock(clock.Now))
	key := Key{Caller: "campaign-1", Action: "video_generation"}

	for i := 0; i < 3; i++ {
		d, err := l.Check(context.Background(), key)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, 2-i, d.Remaining)
	}

	d, err := l.Check(context.Background(), key)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)
	require.Equal(t, clock.Now().Add(time.Minute), d.ResetAt)
}

func TestWindowLimiter_WindowRollover(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := NewWindowLimiter(time.Minute, 1, WithClock(clock.Now))
	key := Key{Caller: "campaign-1", Action: "video_generation"}

	d, err := l.Check(context.Background(), key)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = l.Check(context.Background(), key)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	clock.Advance(time.Minute)

	d, err = l.Check(context.Background(), key)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestWindowLimiter_ActionOverride(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := NewWindowLimiter(time.Minute, 100,
		WithClock(clock.Now),
		WithActionLimit("video_generation", 1),
	)

	d, err := l.Check(context.Background(), Key{Caller: "c", Action: "video_generation"})
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = l.Check(context.Background(), Key{Caller: "c", Action: "video_generation"})
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// other actions keep the default allowance
	d, err = l.Check(context.Background(), Key{Caller: "c", Action: "content_generation"})
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestWindowLimiter_KeysAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := NewWindowLimiter(time.Minute, 1, WithClock(clock.Now))

	d, err := l.Check(context.Background(), Key{Caller: "campaign-1", Action: "video_generation"})
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = l.Check(context.Background(), Key{Caller: "campaign-2", Action: "video_generation"})
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestWindowLimiter_ConcurrentChecksNeverOverAllow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := NewWindowLimiter(time.Minute, 50, WithClock(clock.Now))
	key := Key{Caller: "campaign-1", Action: "video_generation"}

	var wg sync.WaitGroup
	allowed := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Check(context.Background(), key)
			require.NoError(t, err)
			allowed <- d.Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	require.Equal(t, 50, count)
}
