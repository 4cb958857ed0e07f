package application

import (
	"time"

	"tinynotes/middleware/ratelimit/domain"
)

// Service aplica o token bucket do caller e devolve uma Decision.
//
// Não sabe nada sobre HTTP (headers/status).
type Service struct {
	Store domain.LimiterStore
	// RetryAfter é usado quando o limiter nega sem informar uma dica própria.
	RetryAfter time.Duration
}

func (s Service) Decide(key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}

	lim := s.Store.Get(key)
	if lim == nil {
		return domain.Decision{Allowed: true}
	}
	ok, wait := lim.Allow()
	if ok {
		return domain.Decision{Allowed: true}
	}
	if wait <= 0 {
		wait = s.RetryAfter
	}
	if wait <= 0 {
		wait = 1 * time.Second
	}
	return domain.Decision{Allowed: false, RetryAfter: wait}
}
