package infra

import (
	"context"
	"sync"

	"tinynotes/middleware/ratelimit/domain"
)

// chanPool é um semáforo baseado em channel com capacidade fixa.
type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool com `max` vagas.
func NewChanPool(max int) domain.SlotPool {
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	// ctx já cancelado não deve pegar vaga, mesmo que exista uma livre
	if ctx.Err() != nil {
		return nil, false
	}
	select {
	case p.sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-p.sem }) }, true
	case <-ctx.Done():
		return nil, false
	}
}
