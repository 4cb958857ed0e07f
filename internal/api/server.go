// Package api monta as rotas HTTP do TinyNotes sobre os componentes do núcleo
// (store de notas, cache de idempotência, rate limit e métricas).
//
// Ordem em POST /notes: métricas -> API key -> rate limit -> idempotência -> store.
// /healthz não passa por API key, rate limit nem idempotência.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"tinynotes/internal/notes"
	"tinynotes/middleware/apikey"
	"tinynotes/middleware/idempotency"
	"tinynotes/middleware/metrics"
	"tinynotes/middleware/ratelimit"
	"tinynotes/middleware/ratelimit/domain"
	"tinynotes/middleware/ratelimit/infra"
)

// Nomes fixos dos endpoints medidos.
const (
	EndpointCreateNote = "POST /notes"
	EndpointListNotes  = "GET /notes"
	EndpointHealth     = "GET /healthz"
	EndpointMetrics    = "GET /metrics"
)

// Endpoints devolve os endpoints que têm série de latência.
func Endpoints() []string {
	return []string{EndpointCreateNote, EndpointListNotes, EndpointHealth, EndpointMetrics}
}

// Deps são as instâncias criadas uma vez no início do processo.
type Deps struct {
	Notes        *notes.Store
	Idempotency  *idempotency.Cache
	// Limiter nil desliga o rate limit.
	Limiter      domain.LimiterStore
	Stats        domain.StatsStore
	// RateCounters, se não for nil, é servido em /metrics/ratelimit.
	// Precisa estar também em Stats para receber as decisões.
	RateCounters *infra.MemoryStatsStore
	// Metrics nil cria um Recorder com a janela padrão.
	Metrics      *metrics.Recorder
	// Latency recebe as amostras; nil usa só Metrics.
	Latency      metrics.Sink
	// Prometheus, se não for nil, é servido em /metrics/prometheus.
	Prometheus   http.Handler
	Logger       *slog.Logger
}

type Options struct {
	APIKey              string
	RateKeyHeader       string
	TrustXForwardedFor  bool
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
	ConcurrencyMax      int
	ConcurrencyTimeout  time.Duration
	NoteMaxLen          int
}

type Server struct {
	deps Deps
	opts Options
	log  *slog.Logger
}

func NewServer(deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRecorder(metrics.DefaultWindow, Endpoints()...)
	}
	if deps.Latency == nil {
		deps.Latency = deps.Metrics
	}
	if opts.NoteMaxLen <= 0 {
		opts.NoteMaxLen = 240
	}
	return &Server{deps: deps, opts: opts, log: deps.Logger}
}

// Handler devolve o http.Handler completo com todas as rotas.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	auth := apikey.Middleware(apikey.Options{Key: s.opts.APIKey})
	limit := func(next http.Handler) http.Handler { return next }
	if s.deps.Limiter != nil {
		limit = ratelimit.Middleware(ratelimit.Options{
			Store:               s.deps.Limiter,
			Stats:               s.deps.Stats,
			KeyHeader:           s.opts.RateKeyHeader,
			TrustXForwardedFor:  s.opts.TrustXForwardedFor,
			RetryAfter:          s.opts.RetryAfter,
			AddRateLimitHeaders: s.opts.AddRateLimitHeaders,
			Logger:              s.log,
		})
	}
	idem := idempotency.Middleware(idempotency.Options{
		Cache:  s.deps.Idempotency,
		Scope:  "create_note",
		Logger: s.log,
	})

	s.route(mux, EndpointCreateNote, http.HandlerFunc(s.createNote), auth, limit, idem)
	s.route(mux, EndpointListNotes, http.HandlerFunc(s.listNotes), auth, limit)
	s.route(mux, EndpointHealth, http.HandlerFunc(s.healthz))
	s.route(mux, EndpointMetrics, http.HandlerFunc(s.metrics), auth, limit)
	if s.deps.RateCounters != nil {
		mux.Handle("GET /metrics/ratelimit", auth(http.HandlerFunc(s.rateStats)))
	}
	if s.deps.Prometheus != nil {
		mux.Handle("GET /metrics/prometheus", auth(s.deps.Prometheus))
	}

	h := http.Handler(mux)
	h = s.recoverer(h)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            s.opts.ConcurrencyMax,
		AcquireTimeout: s.opts.ConcurrencyTimeout,
	})(h)
	return h
}

// route registra o handler com as middlewares na ordem dada, tudo dentro da
// medição de latência do endpoint.
func (s *Server) route(mux *http.ServeMux, endpoint string, h http.Handler, mws ...func(http.Handler) http.Handler) {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	mux.Handle(endpoint, metrics.Middleware(s.deps.Latency, endpoint)(h))
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.log.Error("handler panic", "method", r.Method, "path", r.URL.Path, "panic", p)
				writeError(w, http.StatusInternalServerError, "internal_error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
