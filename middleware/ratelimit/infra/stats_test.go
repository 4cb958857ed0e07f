package infra

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"tinynotes/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

func TestMemoryStatsStore_CountsByRouteAndKey(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Key: "a", Allowed: true, Method: "POST", Path: "/notes"})
	_ = s.Record(ctx, domain.StatsEvent{Key: "a", Allowed: false, Method: "POST", Path: "/notes"})
	_ = s.Record(ctx, domain.StatsEvent{Key: "b", Allowed: true, Method: "GET", Path: "/notes"})

	if got := s.Total(); got != (Counters{Allowed: 2, Denied: 1}) {
		t.Fatalf("unexpected total %+v", got)
	}
	if got := s.ByRoute()["POST /notes"]; got != (Counters{Allowed: 1, Denied: 1}) {
		t.Fatalf("unexpected POST /notes counters %+v", got)
	}
	if got := s.ByKey()["b"]; got != (Counters{Allowed: 1}) {
		t.Fatalf("unexpected counters for key b %+v", got)
	}
}

func TestMemoryStatsStore_SkipsKeysByDefault(t *testing.T) {
	s := NewMemoryStatsStore()
	_ = s.Record(context.Background(), domain.StatsEvent{Key: "a", Allowed: true})
	if len(s.ByKey()) != 0 {
		t.Fatalf("expected no per-key counters without WithTrackKeys")
	}
}

func TestPromStatsStore_IncrementsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromStatsStore(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	_ = s.Record(context.Background(), domain.StatsEvent{Allowed: true, Method: "GET", Path: "/notes"})
	_ = s.Record(context.Background(), domain.StatsEvent{Allowed: false, Method: "GET", Path: "/notes"})
	_ = s.Record(context.Background(), domain.StatsEvent{Allowed: false, Method: "GET", Path: "/notes"})

	if got := testutil.ToFloat64(s.decisions.WithLabelValues("GET /notes", "denied")); got != 2 {
		t.Fatalf("expected 2 denied, got %v", got)
	}
	if got := testutil.ToFloat64(s.decisions.WithLabelValues("GET /notes", "allowed")); got != 1 {
		t.Fatalf("expected 1 allowed, got %v", got)
	}
}

type failingStats struct{ calls int }

func (f *failingStats) Record(context.Context, domain.StatsEvent) error {
	f.calls++
	return errors.New("boom")
}

func TestMultiStats_ContinuesAfterError(t *testing.T) {
	bad := &failingStats{}
	mem := NewMemoryStatsStore()

	err := MultiStats{bad, nil, mem}.Record(context.Background(), domain.StatsEvent{Allowed: true})
	if err == nil {
		t.Fatalf("expected first error to be returned")
	}
	if bad.calls != 1 || mem.Total().Allowed != 1 {
		t.Fatalf("expected every store to receive the event")
	}
}

func TestRedisStatsStore_RecordsTotals(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("set REDIS_ADDR to run the Redis stats test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = rdb.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable on %s: %v", addr, err)
	}

	prefix := "tinynotes:test:" + time.Now().Format("150405.000000")
	s := NewRedisStatsStore(rdb, WithStatsPrefix(prefix), WithStatsTTL(time.Minute), WithStatsTrackKeys(true))
	defer func() {
		keys, _ := rdb.Keys(context.Background(), prefix+":*").Result()
		if len(keys) > 0 {
			_ = rdb.Del(context.Background(), keys...).Err()
		}
	}()

	for _, allowed := range []bool{true, true, false} {
		if err := s.Record(ctx, domain.StatsEvent{Key: "caller", Allowed: allowed, Method: "POST", Path: "/notes"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.Total(ctx)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if got != (Counters{Allowed: 2, Denied: 1}) {
		t.Fatalf("unexpected totals %+v", got)
	}

	keys, err := rdb.Keys(ctx, prefix+":key:*").Result()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != s.callerKey("caller") {
		t.Fatalf("unexpected caller keys %v", keys)
	}
}

func TestRedisStatsStore_CallerKeyHidesSecret(t *testing.T) {
	s := NewRedisStatsStore(nil, WithStatsPrefix("tn"))

	k := s.callerKey("dev-key")
	if strings.Contains(k, "dev-key") {
		t.Fatalf("caller key %q leaks the caller value", k)
	}
	if !strings.HasPrefix(k, "tn:key:") {
		t.Fatalf("caller key %q lost the prefix", k)
	}
	if k != s.callerKey("dev-key") {
		t.Fatalf("caller key must be stable")
	}
	if k == s.callerKey("other-key") {
		t.Fatalf("different callers share %q", k)
	}
}
