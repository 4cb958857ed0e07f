package infra

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"tinynotes/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

const shardCount = 16

// Store é um token bucket por caller (x/time/rate), criado sob demanda,
// com limpeza periódica das chaves inativas.
//
// O mapa é dividido em shards por hash da chave: callers diferentes não
// disputam o mesmo mutex. O refill+decremento de um bucket é serializado pelo
// próprio rate.Limiter.
type Store struct {
	shards [shardCount]shard

	limitsMu sync.RWMutex
	rps      rate.Limit
	burst    int

	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*bucket
}

type StoreOption func(*Store)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

// WithClock troca o relógio usado no refill (testes).
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore cria buckets com capacidade `burst` e reposição de `rps` tokens/s.
// Um bucket novo começa cheio.
func NewStore(rps float64, burst int, opts ...StoreOption) *Store {
	s := &Store{
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*bucket)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) RPS() float64 {
	s.limitsMu.RLock()
	defer s.limitsMu.RUnlock()
	return float64(s.rps)
}

func (s *Store) Burst() int {
	s.limitsMu.RLock()
	defer s.limitsMu.RUnlock()
	return s.burst
}

func (s *Store) CleanupEvery() time.Duration { return s.cleanupEvery }

// Get implementa domain.LimiterStore.
func (s *Store) Get(key domain.Key) domain.Limiter {
	return s.bucket(string(key))
}

func (s *Store) bucket(key string) *bucket {
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if b, ok := sh.entries[key]; ok {
		return b
	}

	s.limitsMu.RLock()
	lim := rate.NewLimiter(s.rps, s.burst)
	s.limitsMu.RUnlock()

	b := &bucket{lim: lim, now: s.now}
	b.lastSeen.Store(s.now().UnixNano())
	sh.entries[key] = b
	return b
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%shardCount]
}

// SetLimits troca rps/burst dos buckets novos e dos já existentes
// (usado no reload da configuração).
func (s *Store) SetLimits(rps float64, burst int) {
	s.limitsMu.Lock()
	s.rps = rate.Limit(rps)
	s.burst = burst
	s.limitsMu.Unlock()

	now := s.now()
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for _, b := range sh.entries {
			b.lim.SetLimitAt(now, rate.Limit(rps))
			b.lim.SetBurstAt(now, burst)
		}
		sh.mu.Unlock()
	}
}

// Len devolve quantos callers têm bucket em memória.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

func (s *Store) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL).UnixNano()

	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, b := range sh.entries {
			if b.lastSeen.Load() < cutoff {
				delete(sh.entries, k)
			}
		}
		sh.mu.Unlock()
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *Store) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
type DoneContext interface {
	Done() <-chan struct{}
}

// bucket adapta *rate.Limiter para domain.Limiter.
type bucket struct {
	lim      *rate.Limiter
	now      func() time.Time
	lastSeen atomic.Int64
}

func (b *bucket) Allow() (bool, time.Duration) {
	now := b.now()
	b.lastSeen.Store(now.UnixNano())

	if b.lim.AllowN(now, 1) {
		return true, 0
	}
	return false, retryAfter(b.lim, now)
}

// Tokens devolve o saldo atual (após o refill preguiçoso).
func (b *bucket) Tokens() float64 {
	return b.lim.TokensAt(b.now())
}

// retryAfter = (1 - tokens) / rps: tempo até o próximo token inteiro.
func retryAfter(lim *rate.Limiter, now time.Time) time.Duration {
	r := lim.Limit()
	if r <= 0 || r == rate.Inf {
		return 0
	}
	missing := 1 - lim.TokensAt(now)
	if missing <= 0 {
		// outro caller devolveu/recebeu token entre o AllowN e aqui
		return time.Millisecond
	}
	return time.Duration(missing / float64(r) * float64(time.Second))
}
