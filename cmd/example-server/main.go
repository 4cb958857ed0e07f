package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"tinynotes/middleware/idempotency"
	"tinynotes/middleware/metrics"
	"tinynotes/middleware/ratelimit"
	"tinynotes/middleware/ratelimit/infra"
)

func main() {
	// Exemplo: usando as middlewares do TinyNotes direto no seu webserver
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store := infra.NewStore(5, 10)
	cache := idempotency.NewCache(idempotency.WithTTL(10 * time.Minute))
	rec := metrics.NewRecorder(metrics.DefaultWindow, "POST /orders")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	store.StartJanitor(ctx)
	cache.StartJanitor(ctx)

	var orders atomic.Int64
	create := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := orders.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"order":` + itoa(n) + "}\n"))
	})

	h := http.Handler(create)
	h = idempotency.Middleware(idempotency.Options{Cache: cache, Scope: "orders", Logger: logger})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Store:               store,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
		Logger:              logger,
	})(h)
	h = metrics.Middleware(rec, "POST /orders")(h)

	mux := http.NewServeMux()
	mux.Handle("POST /orders", h)
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		s, _ := rec.Snapshot("POST /orders")
		_, _ = w.Write([]byte("count=" + itoa(s.Count) + " p95=" + s.P95.String() + "\n"))
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50})(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
