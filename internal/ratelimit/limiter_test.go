package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client), mr
}

func TestAllow_WithinLimit(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 3, Window: 10 * time.Second}

	for i := 1; i <= 3; i++ {
		ok, err := l.Allow(ctx, "acct-7", rule)
		if err != nil {
			t.Fatalf("Allow() #%d error: %v", i, err)
		}
		if !ok {
			t.Fatalf("Allow() #%d = false, want true", i)
		}
	}

	ok, err := l.Allow(ctx, "acct-7", rule)
	if err != nil {
		t.Fatalf("Allow() #4 error: %v", err)
	}
	if ok {
		t.Error("Allow() #4 = true, want rate limited")
	}
}

func TestAllow_PerIdentifier(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 1, Window: 10 * time.Second}

	if ok, _ := l.Allow(ctx, "acct-7", rule); !ok {
		t.Fatal("first request for acct-7 should pass")
	}
	if ok, _ := l.Allow(ctx, "acct-8", rule); !ok {
		t.Error("acct-8 should not share acct-7's counter")
	}
	if ok, _ := l.Allow(ctx, "acct-7", rule); ok {
		t.Error("second request for acct-7 should be limited")
	}
}

func TestAllow_WindowExpiry(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 1, Window: 10 * time.Second}

	if ok, _ := l.Allow(ctx, "acct-7", rule); !ok {
		t.Fatal("first request should pass")
	}
	if ok, _ := l.Allow(ctx, "acct-7", rule); ok {
		t.Fatal("second request should be limited")
	}

	mr.FastForward(11 * time.Second)

	if ok, _ := l.Allow(ctx, "acct-7", rule); !ok {
		t.Error("request after window expiry should pass")
	}
}

func TestRemaining(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 5, Window: 10 * time.Second}

	n, err := l.Remaining(ctx, "acct-7", rule)
	if err != nil || n != 5 {
		t.Fatalf("Remaining() before any request = %d, %v; want 5", n, err)
	}

	l.Allow(ctx, "acct-7", rule)
	l.Allow(ctx, "acct-7", rule)

	n, err = l.Remaining(ctx, "acct-7", rule)
	if err != nil || n != 3 {
		t.Fatalf("Remaining() after 2 requests = %d, %v; want 3", n, err)
	}
}

func TestAllow_FailsOpenWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewLimiter(client)
	mr.Close()

	ok, err := l.Allow(context.Background(), "acct-7", RulePost)
	if !ok {
		t.Error("Allow() should fail open when Redis is unreachable")
	}
	if err == nil {
		t.Error("Allow() should surface the Redis error")
	}
}
