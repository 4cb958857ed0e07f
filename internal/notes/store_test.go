package notes

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AppendAssignsIDAndTimestamp(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time { return at }))

	n, err := s.Append("hello world")
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "hello world", n.Content)
	assert.Equal(t, at, n.CreatedAt)
}

func TestStore_AppendRejectsEmptyContent(t *testing.T) {
	s := NewStore()
	_, err := s.Append("")
	require.ErrorIs(t, err, ErrEmptyContent)
	assert.Equal(t, 0, s.Len())
}

func TestStore_ListKeepsCreationOrder(t *testing.T) {
	s := NewStore()
	for _, c := range []string{"a", "b", "c"} {
		_, err := s.Append(c)
		require.NoError(t, err)
	}

	got := s.List()
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Content)
	assert.Equal(t, "b", got[1].Content)
	assert.Equal(t, "c", got[2].Content)
}

func TestStore_ListIsSnapshot(t *testing.T) {
	s := NewStore()
	_, _ = s.Append("first")

	snap := s.List()
	_, _ = s.Append("second")
	snap[0].Content = "mutated"

	assert.Len(t, snap, 1)
	assert.Equal(t, "first", s.List()[0].Content)
}

func TestStore_ConcurrentAppendAndList(t *testing.T) {
	const writers = 64
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := s.Append(fmt.Sprintf("note-%d", i))
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			for _, n := range s.List() {
				assert.NotEmpty(t, n.ID)
			}
		}()
	}
	wg.Wait()

	all := s.List()
	require.Len(t, all, writers)
	ids := make(map[string]struct{}, writers)
	contents := make(map[string]struct{}, writers)
	for _, n := range all {
		ids[n.ID] = struct{}{}
		contents[n.Content] = struct{}{}
	}
	assert.Len(t, ids, writers, "ids must be unique")
	assert.Len(t, contents, writers, "every write must be present once")
}

func TestStore_ConcurrentAppendsListInCreatedAtOrder(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	s := NewStore(WithClock(func() time.Time {
		return base.Add(time.Duration(tick.Add(1)) * time.Millisecond)
	}))

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Append(fmt.Sprintf("n%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got := s.List()
	require.Len(t, got, 64)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].CreatedAt.Before(got[i].CreatedAt), "note %d out of createdAt order", i)
	}
}
