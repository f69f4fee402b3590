// internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.now = func() time.Time { return now }

	release, ok, err := l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = l.Acquire(ctx, "other", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	require.NoError(t, release(ctx))
	_, ok, err = l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLockerExpiresAndIgnoresStaleRelease(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.now = func() time.Time { return now }

	stale, ok, err := l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "expired lock can be taken over")

	require.NoError(t, stale(ctx))
	_, ok, err = l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a stale release must not free the new holder's lock")
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	var runs atomic.Int32
	s := New(nil, zaptest.NewLogger(t),
		Job{Name: "count", Interval: time.Hour, Run: func(context.Context) error {
			runs.Add(1)
			return nil
		}},
		Job{Name: "broken", Interval: time.Hour, Run: func(context.Context) error {
			return errors.New("boom")
		}},
	)

	ran, err := s.RunOnce(ctx, "count")
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, int32(1), runs.Load())

	ran, err = s.RunOnce(ctx, "broken")
	assert.True(t, ran)
	assert.ErrorContains(t, err, "boom")

	_, err = s.RunOnce(ctx, "missing")
	assert.Error(t, err)
}

func TestRunOnceSkipsWhenLocked(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()
	release, ok, err := locker.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer release(ctx)

	s := New(locker, zaptest.NewLogger(t), Job{Name: "sweep", Interval: time.Minute, Run: func(context.Context) error {
		t.Fatal("job must not run while another holder has the lock")
		return nil
	}})
	ran, err := s.RunOnce(ctx, "sweep")
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestStartRunsJobsUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	s := New(nil, zaptest.NewLogger(t),
		Job{Name: "tick", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
			runs.Add(1)
			return nil
		}},
		Job{Name: "never", Run: func(context.Context) error {
			t.Error("a job without an interval is not scheduled")
			return nil
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, RedisOptions{Addr: addr})
	if err != nil {
		t.Skipf("skipping redis tests: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	l := NewRedisLocker(client, "librarium-test:")
	key := "sweep-" + time.Now().Format("150405.000000")

	release, ok, err := l.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	token, err := client.Get(ctx, "librarium-test:"+key).Result()
	require.NoError(t, err)
	_, err = uuid.Parse(token)
	assert.NoError(t, err, "lock value is the holder's token")

	_, ok, err = l.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, release(ctx))
	again, ok, err := l.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// The first holder's token no longer matches, so its release is a no-op.
	require.NoError(t, release(ctx))
	held, err := client.Exists(ctx, "librarium-test:"+key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), held)
	require.NoError(t, again(ctx))
}
