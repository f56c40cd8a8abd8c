package database

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalMentorLockerSerializesPerMentor(t *testing.T) {
	locker := NewLocalMentorLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "m1")
			if err != nil {
				t.Error(err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, locker.slots)
}

func TestLocalMentorLockerHonoursContext(t *testing.T) {
	locker := NewLocalMentorLocker()
	unlock, err := locker.Lock(context.Background(), "m1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "m1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// other mentors are not blocked
	unlockOther, err := locker.Lock(context.Background(), "m2")
	require.NoError(t, err)
	unlockOther()

	unlock()
	unlock()
	assert.Empty(t, locker.slots)
}

func newRedisLocker(t *testing.T) (*RedisMentorLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisMentorLocker(client, "test"), mr
}

func TestRedisMentorLockerLease(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:mentor:m1"))
	assert.Equal(t, mentorLockTTL, mr.TTL("test:lock:mentor:m1"))

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, "m1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.False(t, mr.Exists("test:lock:mentor:m1"))

	unlock2, err := locker.Lock(ctx, "m1")
	require.NoError(t, err)
	unlock2()
}

func TestRedisMentorLockerDoesNotReleaseForeignLease(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "m1")
	require.NoError(t, err)

	// the lease expired and another holder took it
	mr.FastForward(mentorLockTTL + time.Second)
	require.NoError(t, mr.Set("test:lock:mentor:m1", "someone-else"))

	unlock()
	got, err := mr.Get("test:lock:mentor:m1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisMentorLockerWaitsForRelease(t *testing.T) {
	locker, _ := newRedisLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "m1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		unlock2, err := locker.Lock(ctx, "m1")
		if err == nil {
			unlock2()
		}
		close(acquired)
	}()

	time.Sleep(30 * time.Millisecond)
	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	default:
	}
	unlock()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}
