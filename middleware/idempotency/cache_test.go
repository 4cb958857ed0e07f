package idempotency

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func created(body string) Response {
	return Response{
		StatusCode: http.StatusCreated,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       []byte(body),
	}
}

func TestCache_BeginReservesThenReplays(t *testing.T) {
	c := NewCache()
	ctx := context.Background()

	res, err := c.Begin(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, Reserved, res.State)
	assert.Equal(t, "k1", res.Ticket.Key())

	require.NoError(t, c.Commit(res.Ticket, created(`{"id":"a"}`)))

	again, err := c.Begin(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, Replayed, again.State)
	assert.Equal(t, http.StatusCreated, again.Response.StatusCode)
	assert.Equal(t, `{"id":"a"}`, string(again.Response.Body))
	assert.Equal(t, "application/json", again.Response.Header.Get("Content-Type"))
}

func TestCache_EmptyKey(t *testing.T) {
	_, err := NewCache().Begin(context.Background(), "")
	require.ErrorIs(t, err, ErrEmptyKey)
}

func TestCache_ConcurrentDuplicatesSeeSingleWrite(t *testing.T) {
	const callers = 32
	c := NewCache(WithWait(2 * time.Second))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		writes   int
		bodies   []string
		statuses []int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := c.Begin(context.Background(), "same")
			if !assert.NoError(t, err) {
				return
			}

			resp := res.Response
			if res.State == Reserved {
				mu.Lock()
				writes++
				mu.Unlock()
				time.Sleep(20 * time.Millisecond)
				resp = created(`{"id":"only"}`)
				assert.NoError(t, c.Commit(res.Ticket, resp))
			}

			mu.Lock()
			bodies = append(bodies, string(resp.Body))
			statuses = append(statuses, resp.StatusCode)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, writes)
	require.Len(t, bodies, callers)
	for i := range bodies {
		assert.Equal(t, `{"id":"only"}`, bodies[i])
		assert.Equal(t, http.StatusCreated, statuses[i])
	}
}

func TestCache_WaitTimesOutWithConflict(t *testing.T) {
	c := NewCache(WithWait(20 * time.Millisecond))
	ctx := context.Background()

	_, err := c.Begin(ctx, "k")
	require.NoError(t, err)

	began := time.Now()
	res, err := c.Begin(ctx, "k")
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, Conflict, res.State)
	assert.GreaterOrEqual(t, time.Since(began), 20*time.Millisecond)
}

func TestCache_ZeroWaitRejectsImmediately(t *testing.T) {
	c := NewCache(WithWait(0))
	ctx := context.Background()

	_, err := c.Begin(ctx, "k")
	require.NoError(t, err)

	res, err := c.Begin(ctx, "k")
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, Conflict, res.State)
}

func TestCache_WaitHonoursContext(t *testing.T) {
	c := NewCache(WithWait(time.Minute))
	_, err := c.Begin(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Begin(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCache_AbortReleasesWaitersAndFreesKey(t *testing.T) {
	c := NewCache(WithWait(time.Second))
	ctx := context.Background()

	first, err := c.Begin(ctx, "k")
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := c.Begin(ctx, "k")
		errs <- err
	}()

	time.Sleep(10 * time.Millisecond)
	c.Abort(first.Ticket)

	select {
	case err := <-errs:
		require.ErrorIs(t, err, ErrConflict)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("waiter was not released by Abort")
	}

	retry, err := c.Begin(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, Reserved, retry.State)

	require.ErrorIs(t, c.Commit(first.Ticket, created("late")), ErrNotReserved)
	c.Abort(first.Ticket) // segunda chamada é no-op
}

func TestCache_CommitTwiceIsInvariantViolation(t *testing.T) {
	c := NewCache()
	res, err := c.Begin(context.Background(), "k")
	require.NoError(t, err)

	require.NoError(t, c.Commit(res.Ticket, created("a")))
	require.ErrorIs(t, c.Commit(res.Ticket, created("b")), ErrAlreadyCommitted)
	require.ErrorIs(t, c.Commit(Ticket{}, created("c")), ErrNotReserved)

	again, err := c.Begin(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "a", string(again.Response.Body))
}

func TestCache_StalePendingRejectsDuplicatesUntilWriterFinishes(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(WithClock(clock.Now), WithStaleAfter(30*time.Second), WithWait(time.Second))
	ctx := context.Background()

	slow, err := c.Begin(ctx, "k")
	require.NoError(t, err)

	clock.Advance(31 * time.Second)
	for i := 0; i < 3; i++ {
		res, err := c.Begin(ctx, "k")
		require.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, Conflict, res.State)
	}
	assert.Equal(t, 1, c.Len())

	// a escrita lenta ainda termina e vira a resposta da chave
	require.NoError(t, c.Commit(slow.Ticket, created("late")))
	again, err := c.Begin(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, Replayed, again.State)
	assert.Equal(t, "late", string(again.Response.Body))
}

func TestCache_StalePendingFreedOnlyByAbort(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(WithClock(clock.Now), WithStaleAfter(30*time.Second), WithWait(time.Second))
	ctx := context.Background()

	slow, err := c.Begin(ctx, "k")
	require.NoError(t, err)
	clock.Advance(time.Minute)

	assert.Equal(t, 0, c.Sweep())
	_, err = c.Begin(ctx, "k")
	require.ErrorIs(t, err, ErrConflict)

	c.Abort(slow.Ticket)
	next, err := c.Begin(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, Reserved, next.State)
}

func TestCache_SweepDropsExpiredOnly(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(WithClock(clock.Now), WithStaleAfter(time.Minute), WithTTL(time.Hour))
	ctx := context.Background()

	done, err := c.Begin(ctx, "committed")
	require.NoError(t, err)
	require.NoError(t, c.Commit(done.Ticket, created("x")))
	_, err = c.Begin(ctx, "pending")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 0, c.Sweep(), "stale pending stays with its writer")
	assert.Equal(t, 2, c.Len())

	clock.Advance(time.Hour)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestCache_ExpiredRecordIsReservedAgain(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(WithClock(clock.Now), WithTTL(time.Minute))
	ctx := context.Background()

	res, err := c.Begin(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, c.Commit(res.Ticket, created("old")))

	clock.Advance(time.Minute)
	again, err := c.Begin(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, Reserved, again.State)
}

func TestCache_CommittedResponseIsIsolatedFromCaller(t *testing.T) {
	c := NewCache()
	res, err := c.Begin(context.Background(), "k")
	require.NoError(t, err)

	resp := created("abc")
	require.NoError(t, c.Commit(res.Ticket, resp))
	resp.Body[0] = 'X'
	resp.Header.Set("Content-Type", "text/plain")

	again, err := c.Begin(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again.Response.Body))
	assert.Equal(t, "application/json", again.Response.Header.Get("Content-Type"))
}
