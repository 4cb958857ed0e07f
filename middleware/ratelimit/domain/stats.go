package domain

import (
	"context"
	"time"
)

// StatsEvent é uma decisão do rate limit (admitido ou rejeitado) para um caller.
//
// Method/Path vêm da rota que foi chamada (ex.: "POST" "/notes").
// Cuidado com cardinalidade ao persistir Key: uma série por API key/IP pode
// crescer sem limite em Redis/Prometheus.
type StatsEvent struct {
	Key     Key
	Allowed bool

	Method string
	Path   string

	// RetryAfter só é preenchido quando Allowed == false.
	RetryAfter time.Duration

	At time.Time
}

// StatsStore recebe os eventos de decisão.
//
// O middleware trata erro como best-effort: uma falha aqui nunca derruba a requisição.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
