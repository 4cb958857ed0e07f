package infra

import (
	"context"

	"tinynotes/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PromStatsStore expõe as decisões como contador Prometheus.
//
// Os labels são só rota e resultado; o caller nunca vira label.
type PromStatsStore struct {
	decisions *prometheus.CounterVec
}

func NewPromStatsStore(reg prometheus.Registerer) (*PromStatsStore, error) {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tinynotes_ratelimit_decisions_total",
		Help: "Rate limit decisions by route and outcome",
	}, []string{"route", "outcome"})
	if err := reg.Register(decisions); err != nil {
		return nil, err
	}
	return &PromStatsStore{decisions: decisions}, nil
}

func (s *PromStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	outcome := "denied"
	if ev.Allowed {
		outcome = "allowed"
	}
	s.decisions.WithLabelValues(ev.Method+" "+ev.Path, outcome).Inc()
	return nil
}

// MultiStats repassa o evento para todos os stores; devolve o primeiro erro
// mas não interrompe os demais.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
