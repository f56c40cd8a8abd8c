package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// MentorLocker serializes payout mutations for one mentor.
type MentorLocker interface {
	Lock(ctx context.Context, mentorID string) (unlock func(), err error)
}

type mentorSlot struct {
	ch   chan struct{}
	refs int
}

// LocalMentorLocker is an in-process per-mentor mutex that honours ctx cancellation.
type LocalMentorLocker struct {
	mu    sync.Mutex
	slots map[string]*mentorSlot
}

func NewLocalMentorLocker() *LocalMentorLocker {
	return &LocalMentorLocker{slots: make(map[string]*mentorSlot)}
}

func (l *LocalMentorLocker) Lock(ctx context.Context, mentorID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[mentorID]
	if !ok {
		slot = &mentorSlot{ch: make(chan struct{}, 1)}
		l.slots[mentorID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(mentorID, slot)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			l.release(mentorID, slot)
		})
	}, nil
}

func (l *LocalMentorLocker) release(mentorID string, slot *mentorSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, mentorID)
	}
}

const (
	mentorLockTTL      = 30 * time.Second
	mentorLockPollBase = 10 * time.Millisecond
	mentorLockPollMax  = 250 * time.Millisecond
)

var releaseMentorLockScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('del', KEYS[1])
else
  return 0
end
`)

// RedisMentorLocker holds a SET NX lease per mentor so that several API
// instances and the scheduler share one exclusion domain.
type RedisMentorLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisMentorLocker(client redis.UniversalClient, prefix string) *RedisMentorLocker {
	if prefix == "" {
		prefix = "payouts"
	}
	return &RedisMentorLocker{client: client, prefix: prefix, ttl: mentorLockTTL}
}

func (l *RedisMentorLocker) key(mentorID string) string {
	return fmt.Sprintf("%s:lock:mentor:%s", l.prefix, mentorID)
}

func (l *RedisMentorLocker) Lock(ctx context.Context, mentorID string) (func(), error) {
	key := l.key(mentorID)
	token := uuid.NewString()
	wait := mentorLockPollBase

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire mentor lock %s: %w", mentorID, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if wait *= 2; wait > mentorLockPollMax {
			wait = mentorLockPollMax
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			// a failed release is left to the lease ttl
			_ = releaseMentorLockScript.Run(releaseCtx, l.client, []string{key}, token).Err()
		})
	}, nil
}
