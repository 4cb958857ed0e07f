package metrics

import (
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus espelha as amostras num histograma com label "endpoint".
// Só os endpoints conhecidos viram label.
type Prometheus struct {
	latency   *prometheus.HistogramVec
	endpoints []string
}

func NewPrometheus(reg prometheus.Registerer, endpoints ...string) (*Prometheus, error) {
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tinynotes_http_request_duration_seconds",
		Help:    "Request latency by endpoint",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"endpoint"})
	if err := reg.Register(latency); err != nil {
		return nil, err
	}
	for _, ep := range endpoints {
		latency.WithLabelValues(ep)
	}
	return &Prometheus{latency: latency, endpoints: slices.Clone(endpoints)}, nil
}

func (p *Prometheus) Record(endpoint string, d time.Duration) bool {
	if !slices.Contains(p.endpoints, endpoint) {
		return false
	}
	p.latency.WithLabelValues(endpoint).Observe(d.Seconds())
	return true
}
