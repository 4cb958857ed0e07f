package idempotency

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

var (
	ErrEmptyKey = errors.New("idempotency key is empty")
	// ErrConflict: outra requisição com a mesma chave ainda está em andamento
	// (espera esgotada, primeira requisição abortada ou reserva velha demais).
	// O cliente pode tentar de novo.
	ErrConflict = errors.New("idempotency key is in flight")
	// ErrNotReserved: a reserva já foi abortada.
	ErrNotReserved = errors.New("idempotency reservation is no longer pending")
	// ErrAlreadyCommitted indica um bug: Commit chamado duas vezes para a mesma reserva.
	ErrAlreadyCommitted = errors.New("idempotency record already committed")
)

// State é o resultado de Begin.
type State int

const (
	// Reserved: chave nova. Quem chamou executa a escrita e depois Commit ou Abort.
	Reserved State = iota + 1
	// Replayed: chave já confirmada. Devolva Result.Response sem escrever nada.
	Replayed
	// Conflict: chave pendente em outra requisição e a espera não terminou em Commit.
	Conflict
)

func (s State) String() string {
	switch s {
	case Reserved:
		return "reserved"
	case Replayed:
		return "replayed"
	case Conflict:
		return "conflict"
	}
	return "unknown"
}

// Response é a resposta guardada para uma chave. O replay devolve o mesmo
// status, os mesmos headers e exatamente os mesmos bytes.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r Response) clone() Response {
	out := Response{StatusCode: r.StatusCode, Header: r.Header.Clone()}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}

// Ticket identifica uma reserva feita por Begin.
type Ticket struct {
	rec *record
}

func (t Ticket) Key() string {
	if t.rec == nil {
		return ""
	}
	return t.rec.key
}

type Result struct {
	State    State
	Response Response // só em Replayed
	Ticket   Ticket   // só em Reserved
}

type record struct {
	key         string
	committed   bool
	aborted     bool
	resp        Response
	createdAt   time.Time
	committedAt time.Time
	// fechado no Commit ou no Abort; libera quem está esperando
	done chan struct{}
}

// Cache guarda a resposta de cada chave de idempotência.
//
// Pending -> Committed acontece no máximo uma vez por registro. Duplicatas que
// chegam enquanto a chave está Pending esperam até `wait` pelo Commit. Só quem
// tem o Ticket libera a chave (Commit ou Abort): um Pending velho nunca é
// descartado, senão a escrita original e a nova poderiam acontecer as duas.
// Registros confirmados não expiram, a não ser que WithTTL seja usado: sem TTL
// o mapa cresce sem limite enquanto o processo viver.
type Cache struct {
	mu      sync.Mutex
	records map[string]*record

	wait       time.Duration
	staleAfter time.Duration
	ttl        time.Duration
	sweepEvery time.Duration
	now        func() time.Time
}

type Option func(*Cache)

// WithWait define quanto uma duplicata espera pelo Commit. 0 rejeita na hora.
func WithWait(d time.Duration) Option {
	return func(c *Cache) { c.wait = d }
}

// WithStaleAfter define a idade a partir da qual um Pending é considerado
// preso: duplicatas recebem Conflict na hora em vez de esperar. 0 desliga.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Cache) { c.staleAfter = d }
}

// WithTTL expira registros confirmados depois de d. 0 nunca expira.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

func WithSweepEvery(d time.Duration) Option {
	return func(c *Cache) { c.sweepEvery = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func NewCache(opts ...Option) *Cache {
	c := &Cache{
		records:    make(map[string]*record),
		wait:       5 * time.Second,
		staleAfter: 30 * time.Second,
		sweepEvery: time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin consulta ou reserva a chave.
//
//   - chave nova: cria o registro Pending e devolve Reserved
//   - chave confirmada: devolve Replayed com a resposta guardada
//   - chave Pending: espera até `wait` (ou até ctx cancelar) pelo Commit;
//     se a espera terminar sem Commit devolve Conflict e ErrConflict
//     (ou o erro do ctx)
func (c *Cache) Begin(ctx context.Context, key string) (Result, error) {
	if key == "" {
		return Result{}, ErrEmptyKey
	}

	c.mu.Lock()
	now := c.now()
	rec, ok := c.records[key]
	if ok && c.expiredLocked(rec, now) {
		delete(c.records, key)
		ok = false
	}
	if !ok {
		rec = &record{key: key, createdAt: now, done: make(chan struct{})}
		c.records[key] = rec
		c.mu.Unlock()
		return Result{State: Reserved, Ticket: Ticket{rec: rec}}, nil
	}
	if rec.committed {
		resp := rec.resp.clone()
		c.mu.Unlock()
		return Result{State: Replayed, Response: resp}, nil
	}
	if c.staleLocked(rec, now) {
		c.mu.Unlock()
		return Result{State: Conflict}, ErrConflict
	}
	c.mu.Unlock()

	return c.await(ctx, rec)
}

func (c *Cache) await(ctx context.Context, rec *record) (Result, error) {
	if c.wait <= 0 {
		return Result{State: Conflict}, ErrConflict
	}

	timer := time.NewTimer(c.wait)
	defer timer.Stop()

	select {
	case <-rec.done:
	case <-timer.C:
		return Result{State: Conflict}, ErrConflict
	case <-ctx.Done():
		return Result{State: Conflict}, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if rec.committed {
		return Result{State: Replayed, Response: rec.resp.clone()}, nil
	}
	return Result{State: Conflict}, ErrConflict
}

// Commit guarda a resposta da reserva e libera quem está esperando.
func (c *Cache) Commit(t Ticket, resp Response) error {
	rec := t.rec
	if rec == nil {
		return ErrNotReserved
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if rec.committed {
		return ErrAlreadyCommitted
	}
	if rec.aborted || c.records[rec.key] != rec {
		return ErrNotReserved
	}
	rec.committed = true
	rec.resp = resp.clone()
	rec.committedAt = c.now()
	close(rec.done)
	return nil
}

// Abort desfaz a reserva: a chave volta a ficar livre e quem está esperando
// recebe Conflict. Chamar mais de uma vez, ou depois do Commit, não faz nada.
func (c *Cache) Abort(t Ticket) {
	rec := t.rec
	if rec == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if rec.committed || rec.aborted {
		return
	}
	c.abandonLocked(rec)
}

func (c *Cache) abandonLocked(rec *record) {
	rec.aborted = true
	if c.records[rec.key] == rec {
		delete(c.records, rec.key)
	}
	close(rec.done)
}

func (c *Cache) staleLocked(rec *record, now time.Time) bool {
	return !rec.committed && c.staleAfter > 0 && now.Sub(rec.createdAt) >= c.staleAfter
}

func (c *Cache) expiredLocked(rec *record, now time.Time) bool {
	return rec.committed && c.ttl > 0 && now.Sub(rec.committedAt) >= c.ttl
}

// Sweep remove os confirmados expirados. Pending fica até Commit ou Abort.
// Devolve quantos registros saíram.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for k, rec := range c.records {
		if c.expiredLocked(rec, now) {
			delete(c.records, k)
			n++
		}
	}
	return n
}

// StartJanitor roda Sweep periodicamente até o ctx cancelar.
func (c *Cache) StartJanitor(ctx context.Context) {
	if c.sweepEvery <= 0 || c.ttl <= 0 {
		return
	}

	t := time.NewTicker(c.sweepEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.Sweep()
			}
		}
	}()
}

// Len devolve quantas chaves estão guardadas (Pending + Committed).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}
