package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeCounter struct {
	counts  map[string]int64
	expires map[string]time.Duration
}

func (f *fakeCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounter) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCounter) TTL(_ context.Context, key string) *redis.DurationCmd {
	ttl, ok := f.expires[key]
	if !ok {
		ttl = -1
	}
	return redis.NewDurationResult(ttl, nil)
}

func TestFixedWindow(t *testing.T) {
	f := &fakeCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
	w := newFixedWindow(f, "rate", 2, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		ok, _, err := w.Allow(ctx, 7)
		if err != nil || !ok {
			t.Fatalf("hit #%d: ok=%v err=%v", i, ok, err)
		}
	}
	if f.expires["rate:7"] != time.Minute {
		t.Fatalf("expire = %v", f.expires["rate:7"])
	}

	ok, retry, err := w.Allow(ctx, 7)
	if err != nil || ok {
		t.Fatalf("third hit: ok=%v err=%v", ok, err)
	}
	if retry != time.Minute {
		t.Fatalf("retry after = %v", retry)
	}

	if ok, _, _ := w.Allow(ctx, 8); !ok {
		t.Fatal("other scope should not share the window")
	}
}

func TestFixedWindowRestoresLostExpiry(t *testing.T) {
	f := &fakeCounter{counts: map[string]int64{"rate:1": 5}, expires: map[string]time.Duration{}}
	w := newFixedWindow(f, "rate", 2, 30*time.Second)

	ok, retry, err := w.Allow(context.Background(), 1)
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if retry != 30*time.Second || f.expires["rate:1"] != 30*time.Second {
		t.Fatalf("retry=%v expire=%v", retry, f.expires["rate:1"])
	}
}

func TestArchiveRateLimit(t *testing.T) {
	env := newTestEnv(t)
	counter := &fakeCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
	counter.counts[fmt.Sprintf("archive_rate:%d", env.event.ID)] = archiveRateLimit

	d := env.deps
	h := NewCertificateHandler(d.Config, d.Store, d.Compositor, d.Direct, d.Objects, d.Tasks, counter, nil)

	env.router.POST("/test/events/:eventId/archive", h.Archive)
	w := env.do(t, http.MethodPost, fmt.Sprintf("/test/events/%d/archive", env.event.ID), map[string]any{"referenceIds": []string{"REF-1"}})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
}
