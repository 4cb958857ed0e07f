package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"tinynotes/internal/api"
	"tinynotes/internal/config"
	"tinynotes/internal/notes"
	"tinynotes/middleware/idempotency"
	"tinynotes/middleware/metrics"
	"tinynotes/middleware/ratelimit/domain"
	"tinynotes/middleware/ratelimit/infra"
)

// app junta as instâncias de longa duração do processo.
type app struct {
	cfg       config.Config
	log       *slog.Logger
	notes     *notes.Store
	cache     *idempotency.Cache
	limiter   *infra.Store
	// decisões do rate limit desde o início do processo
	rateStats *infra.MemoryStatsStore
	rdb       *redis.Client
	handler   http.Handler
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:   cfg,
		log:   logger,
		notes: notes.NewStore(),
		cache: idempotency.NewCache(
			idempotency.WithWait(cfg.IdempotencyWait),
			idempotency.WithStaleAfter(cfg.IdempotencyStaleAfter),
			idempotency.WithTTL(cfg.IdempotencyTTL),
			idempotency.WithSweepEvery(cfg.IdempotencySweepEvery),
		),
		limiter: infra.NewStore(cfg.RateRPS, cfg.RateBurst,
			infra.WithIdleTTL(cfg.RateIdleTTL),
			infra.WithCleanupEvery(cfg.RateCleanEvery),
		),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a.rateStats = infra.NewMemoryStatsStore()
	stats := infra.MultiStats{a.rateStats}
	if cfg.PrometheusEnabled {
		ps, err := infra.NewPromStatsStore(reg)
		if err != nil {
			return nil, fmt.Errorf("prometheus rate stats: %w", err)
		}
		stats = append(stats, ps)
	}
	if cfg.RateStats.Enabled {
		rs, err := a.redisStats(ctx)
		if err != nil {
			return nil, err
		}
		stats = append(stats, rs)
	}

	rec := metrics.NewRecorder(cfg.MetricsWindow, api.Endpoints()...)
	deps := api.Deps{
		Notes:        a.notes,
		Idempotency:  a.cache,
		Stats:        stats,
		RateCounters: a.rateStats,
		Metrics:      rec,
		Logger:       logger,
	}
	if cfg.RateEnabled {
		deps.Limiter = a.limiter
	}
	if cfg.PrometheusEnabled {
		prom, err := metrics.NewPrometheus(reg, api.Endpoints()...)
		if err != nil {
			return nil, fmt.Errorf("prometheus latency: %w", err)
		}
		deps.Latency = metrics.Multi{rec, prom}
		deps.Prometheus = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	a.handler = api.NewServer(deps, api.Options{
		APIKey:              cfg.APIKey,
		RateKeyHeader:       cfg.RateKeyHeader,
		TrustXForwardedFor:  cfg.TrustXFF,
		RetryAfter:          cfg.RetryAfter,
		AddRateLimitHeaders: cfg.AddHeaders,
		ConcurrencyMax:      cfg.ConcurrencyMax,
		ConcurrencyTimeout:  cfg.ConcurrencyTimeout,
		NoteMaxLen:          cfg.NoteMaxLen,
	}).Handler()
	return a, nil
}

func (a *app) redisStats(ctx context.Context) (domain.StatsStore, error) {
	st := a.cfg.RateStats
	a.rdb = redis.NewClient(&redis.Options{
		Addr:     st.RedisAddr,
		Password: st.RedisPassword,
		DB:       st.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.rdb.Ping(pingCtx).Err(); err != nil {
		_ = a.rdb.Close()
		a.rdb = nil
		return nil, fmt.Errorf("redis stats ping: %w", err)
	}

	return infra.NewRedisStatsStore(a.rdb,
		infra.WithStatsPrefix(st.Prefix),
		infra.WithStatsTTL(st.TTL),
		infra.WithStatsBucket(st.Bucket),
		infra.WithStatsTrackKeys(st.TrackKeys),
	), nil
}

// reload aplica o que pode mudar sem reiniciar: limites do token bucket.
func (a *app) reload(cfg config.Config) {
	if cfg.RateRPS != a.limiter.RPS() || cfg.RateBurst != a.limiter.Burst() {
		a.limiter.SetLimits(cfg.RateRPS, cfg.RateBurst)
		a.log.Info("rate limits reloaded", "rps", cfg.RateRPS, "burst", cfg.RateBurst)
	}
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}
