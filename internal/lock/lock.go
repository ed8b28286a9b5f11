// Package lock serializes queue mutations per session.  A Redis lock is
// used when Redis is reachable so that several server replicas agree; a
// process-local keyed mutex covers single-instance deployments and tests.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock could not be taken before the
// context expired.
var ErrNotAcquired = errors.New("lock: not acquired")

// Locker hands out exclusive locks by key.  The returned release function
// must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// SessionKey is the lock key for all queue mutations of one session.
func SessionKey(sessionID uint64) string { return fmt.Sprintf("session:%d", sessionID) }

// New returns a Redis-backed locker when rdb is non-nil and a local one
// otherwise.
func New(rdb *redis.Client, ttl time.Duration) Locker {
	if rdb == nil {
		return NewLocal()
	}
	return NewRedis(rdb, "gbus:lock", ttl)
}

// Local is an in-process keyed mutex.
type Local struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns an empty in-process locker.
func NewLocal() *Local { return &Local{locks: make(map[string]*localEntry)} }

// Acquire blocks until key is free or ctx is done.  A cancelled wait
// fails with ErrNotAcquired.
func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return nil, fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.unref(key, e)
		})
	}, nil
}

func (l *Local) unref(key string, e *localEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by someone else is left alone.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Redis is a SET NX PX lock with a random token per holder.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedis returns a Redis locker whose keys live under prefix and expire
// after ttl, 5s when ttl is not positive.
func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl, retry: 10 * time.Millisecond}
}

// Acquire polls SET NX until it wins key or ctx is done.  The release
// function only deletes the key while it still holds this token.
func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	full := r.prefix + ":" + key
	token := uuid.NewString()
	for {
		ok, err := r.rdb.SetNX(ctx, full, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
			}
			return nil, fmt.Errorf("lock %s: %w", full, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
		case <-time.After(r.retry):
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			// Release on a fresh context: the request context may already be done.
			rctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = releaseScript.Run(rctx, r.rdb, []string{full}, token).Err()
		})
	}, nil
}
