// Package cache holds the profile cache used by the /me endpoints.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/gbus-app/gbus-server/internal/model"
)

// Loader fetches a profile from the primary store.
type Loader func(ctx context.Context, userID uint64) (model.User, error)

// Profiles caches user profiles by id.  Entries live in Redis when a client
// is configured and in process memory otherwise.  Concurrent misses for
// the same user share one load.  A load that overlaps an Invalidate of the
// same user is returned to its callers but never stored.
type Profiles struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	load   Loader
	group  singleflight.Group
	log    *slog.Logger

	mu    sync.Mutex
	local map[uint64]localEntry
	gens  map[uint64]uint64 // bumped by Invalidate
}

type localEntry struct {
	user    model.User
	expires time.Time
}

// NewProfiles returns a cache over load.  rdb may be nil.
func NewProfiles(rdb *redis.Client, ttl time.Duration, load Loader, logger *slog.Logger) *Profiles {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Profiles{
		rdb:    rdb,
		prefix: "gbus:profile",
		ttl:    ttl,
		load:   load,
		log:    logger.With("component", "profile_cache"),
		local:  make(map[uint64]localEntry),
		gens:   make(map[uint64]uint64),
	}
}

func (p *Profiles) key(userID uint64) string {
	return p.prefix + ":" + strconv.FormatUint(userID, 10)
}

// Get returns the cached profile or loads and caches it.
func (p *Profiles) Get(ctx context.Context, userID uint64) (model.User, error) {
	if u, ok := p.lookup(ctx, userID); ok {
		return u, nil
	}
	v, err, _ := p.group.Do(strconv.FormatUint(userID, 10), func() (any, error) {
		gen := p.generation(userID)
		u, err := p.load(ctx, userID)
		if err != nil {
			return model.User{}, err
		}
		p.store(ctx, u, gen)
		return u, nil
	})
	if err != nil {
		return model.User{}, err
	}
	return v.(model.User), nil
}

// Invalidate drops the cached profile of userID.
func (p *Profiles) Invalidate(ctx context.Context, userID uint64) {
	p.mu.Lock()
	delete(p.local, userID)
	p.gens[userID]++
	p.mu.Unlock()
	p.group.Forget(strconv.FormatUint(userID, 10))
	if p.rdb == nil {
		return
	}
	if err := p.rdb.Del(context.WithoutCancel(ctx), p.key(userID)).Err(); err != nil {
		p.log.Warn("profile invalidate failed", "user_id", userID, "error", err)
	}
}

func (p *Profiles) lookup(ctx context.Context, userID uint64) (model.User, bool) {
	if p.rdb == nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		e, ok := p.local[userID]
		if !ok || time.Now().After(e.expires) {
			delete(p.local, userID)
			return model.User{}, false
		}
		return e.user, true
	}
	raw, err := p.rdb.Get(ctx, p.key(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			p.log.Warn("profile cache read failed", "user_id", userID, "error", err)
		}
		return model.User{}, false
	}
	var u model.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return model.User{}, false
	}
	return u, true
}

func (p *Profiles) generation(userID uint64) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gens[userID]
}

// store caches u unless the user was invalidated since generation gen was
// read.
func (p *Profiles) store(ctx context.Context, u model.User, gen uint64) {
	if p.rdb == nil {
		p.mu.Lock()
		if p.gens[u.ID] == gen {
			p.local[u.ID] = localEntry{user: u, expires: time.Now().Add(p.ttl)}
		}
		p.mu.Unlock()
		return
	}
	if p.generation(u.ID) != gen {
		return
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := p.rdb.Set(ctx, p.key(u.ID), raw, p.ttl).Err(); err != nil {
		p.log.Warn("profile cache write failed", "user_id", u.ID, "error", err)
		return
	}
	// an Invalidate between the check and the write already ran its Del
	if p.generation(u.ID) != gen {
		_ = p.rdb.Del(context.WithoutCancel(ctx), p.key(u.ID)).Err()
	}
}
