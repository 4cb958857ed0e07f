package application

import (
	"context"
	"errors"
	"time"

	"tinynotes/middleware/ratelimit/domain"
)

// ErrNoSlot indica que nenhuma vaga foi liberada dentro do AcquireTimeout.
var ErrNoSlot = errors.New("no request slot available")

// ConcurrencyService controla quantas requisições ficam em andamento,
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
//   - AcquireTimeout <= 0: espera até o ctx da requisição cancelar.
//   - AcquireTimeout > 0: espera no máximo AcquireTimeout.
//
// Em caso de erro nenhuma vaga foi adquirida e release é nil.
func (s ConcurrencyService) Acquire(ctx context.Context) (release func(), err error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(ctx)
	if ok {
		return release, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, ErrNoSlot
	}
	return nil, ctx.Err()
}
