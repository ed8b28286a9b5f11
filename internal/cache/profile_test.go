package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/gbus-app/gbus-server/internal/model"
)

func countingLoader(calls *atomic.Int32, delay time.Duration) Loader {
	return func(ctx context.Context, id uint64) (model.User, error) {
		calls.Add(1)
		time.Sleep(delay)
		if id == 404 {
			return model.User{}, errors.New("missing")
		}
		return model.User{ID: id, Nickname: "pilot", HonorScore: 100}, nil
	}
}

func TestProfilesLocal(t *testing.T) {
	var calls atomic.Int32
	p := NewProfiles(nil, time.Minute, countingLoader(&calls, 0), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		u, err := p.Get(ctx, 1)
		if err != nil || u.Nickname != "pilot" {
			t.Fatalf("get = %+v, %v", u, err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("loads = %d, want 1", calls.Load())
	}
	p.Invalidate(ctx, 1)
	if _, err := p.Get(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Fatalf("loads after invalidate = %d, want 2", calls.Load())
	}
}

func TestProfilesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	var calls atomic.Int32
	p := NewProfiles(rdb, time.Minute, countingLoader(&calls, 0), nil)
	ctx := context.Background()

	if _, err := p.Get(ctx, 7); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("gbus:profile:7") {
		t.Fatal("profile not written to redis")
	}
	if _, err := p.Get(ctx, 7); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Fatalf("loads = %d, want 1", calls.Load())
	}
	p.Invalidate(ctx, 7)
	if mr.Exists("gbus:profile:7") {
		t.Fatal("profile still cached after invalidate")
	}
}

func TestProfilesCollapseConcurrentMisses(t *testing.T) {
	var calls atomic.Int32
	p := NewProfiles(nil, time.Minute, countingLoader(&calls, 50*time.Millisecond), nil)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Get(context.Background(), 3); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	wg.Wait()
	if calls.Load() != 1 {
		t.Fatalf("loads = %d, want 1", calls.Load())
	}
}

func TestProfilesLoaderError(t *testing.T) {
	var calls atomic.Int32
	p := NewProfiles(nil, time.Minute, countingLoader(&calls, 0), nil)
	if _, err := p.Get(context.Background(), 404); err == nil {
		t.Fatal("expected loader error")
	}
	if _, err := p.Get(context.Background(), 404); err == nil {
		t.Fatal("errors must not be cached")
	}
	if calls.Load() != 2 {
		t.Fatalf("loads = %d, want 2", calls.Load())
	}
}

func TestProfilesInvalidateDuringLoadIsNotOverwritten(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	for name, client := range map[string]*redis.Client{"local": nil, "redis": rdb} {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			entered := make(chan struct{}, 1)
			release := make(chan struct{})
			load := func(ctx context.Context, id uint64) (model.User, error) {
				n := calls.Add(1)
				if n == 1 {
					entered <- struct{}{}
					<-release
					return model.User{ID: id, HonorScore: 100}, nil
				}
				return model.User{ID: id, HonorScore: 90}, nil
			}
			p := NewProfiles(client, time.Minute, load, nil)
			ctx := context.Background()

			done := make(chan model.User)
			go func() {
				u, _ := p.Get(ctx, 3)
				done <- u
			}()
			<-entered
			p.Invalidate(ctx, 3)
			close(release)
			if stale := <-done; stale.HonorScore != 100 {
				t.Fatalf("in-flight get = %+v", stale)
			}

			u, err := p.Get(ctx, 3)
			if err != nil {
				t.Fatal(err)
			}
			if u.HonorScore != 90 || calls.Load() != 2 {
				t.Fatalf("after invalidate got honor %d with %d loads, want 90 and 2", u.HonorScore, calls.Load())
			}
		})
	}
}
