// Package notes guarda as notas criadas em memória, na ordem de criação.
//
// Só existem duas operações: Append e List. Notas nunca são alteradas nem
// removidas e somem quando o processo termina.
package notes

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrEmptyContent = errors.New("note content is empty")

// Note é imutável depois de criada.
type Note struct {
	ID        string
	Content   string
	CreatedAt time.Time
}

// Store é seguro para uso concorrente. O lock é só do Store: quem chama nunca
// deve segurar outro lock (ex.: o do cache de idempotência) ao chamar Append.
type Store struct {
	mu    sync.RWMutex
	notes []Note

	now   func() time.Time
	newID func() string
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDFunc(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append cria a nota com id novo e horário atual.
func (s *Store) Append(content string) (Note, error) {
	if content == "" {
		return Note{}, ErrEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// horário lido sob o lock: a ordem da lista segue CreatedAt
	n := Note{
		ID:        s.newID(),
		Content:   content,
		CreatedAt: s.now(),
	}
	s.notes = append(s.notes, n)
	return n, nil
}

// List devolve uma cópia das notas em ordem de criação.
// Appends concorrentes não afetam o slice devolvido.
func (s *Store) List() []Note {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Note, len(s.notes))
	copy(out, s.notes)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}
