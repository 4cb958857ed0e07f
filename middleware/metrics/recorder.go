// Package metrics mede a latência por endpoint do TinyNotes.
//
// O conjunto de endpoints é fixo, definido na construção do Recorder: nomes
// desconhecidos são ignorados, então o cliente não consegue criar séries novas.
// Cada endpoint guarda as últimas `window` amostras num ring buffer; count e
// a média consideram todas as amostras, o p95 só a janela retida.
package metrics

import (
	"math"
	"slices"
	"sync"
	"time"
)

// DefaultWindow é quantas amostras por endpoint entram no cálculo do p95.
const DefaultWindow = 1000

// Summary é o retrato de um endpoint.
type Summary struct {
	Count   int64
	Average time.Duration
	P95     time.Duration
}

// Sink recebe amostras de latência. Devolve false se o endpoint não é conhecido.
type Sink interface {
	Record(endpoint string, d time.Duration) bool
}

type Recorder struct {
	// somente leitura depois de NewRecorder
	series    map[string]*series
	endpoints []string
}

type series struct {
	mu      sync.Mutex
	samples []time.Duration // ring buffer com cap == window
	next    int
	count   int64
	sum     time.Duration
}

// NewRecorder cria o Recorder para os endpoints dados ("GET /notes", ...).
// window <= 0 usa DefaultWindow.
func NewRecorder(window int, endpoints ...string) *Recorder {
	if window <= 0 {
		window = DefaultWindow
	}
	r := &Recorder{series: make(map[string]*series, len(endpoints))}
	for _, ep := range endpoints {
		if _, dup := r.series[ep]; dup {
			continue
		}
		r.series[ep] = &series{samples: make([]time.Duration, 0, window)}
		r.endpoints = append(r.endpoints, ep)
	}
	return r
}

// Endpoints devolve os endpoints na ordem de registro.
func (r *Recorder) Endpoints() []string {
	return slices.Clone(r.endpoints)
}

// Record adiciona uma amostra em O(1).
func (r *Recorder) Record(endpoint string, d time.Duration) bool {
	s, ok := r.series[endpoint]
	if !ok {
		return false
	}

	s.mu.Lock()
	if len(s.samples) < cap(s.samples) {
		s.samples = append(s.samples, d)
	} else {
		s.samples[s.next] = d
	}
	s.next = (s.next + 1) % cap(s.samples)
	s.count++
	s.sum += d
	s.mu.Unlock()
	return true
}

// Snapshot calcula count, média e p95 de um endpoint. A cópia das amostras é
// feita sob o lock da série; a ordenação acontece fora dele.
func (r *Recorder) Snapshot(endpoint string) (Summary, bool) {
	s, ok := r.series[endpoint]
	if !ok {
		return Summary{}, false
	}

	s.mu.Lock()
	window := slices.Clone(s.samples)
	count, sum := s.count, s.sum
	s.mu.Unlock()

	if count == 0 {
		return Summary{}, true
	}
	slices.Sort(window)
	return Summary{
		Count:   count,
		Average: sum / time.Duration(count),
		P95:     percentile(window, 95),
	}, true
}

// SnapshotAll devolve o Summary de todos os endpoints, inclusive os sem amostras.
func (r *Recorder) SnapshotAll() map[string]Summary {
	out := make(map[string]Summary, len(r.endpoints))
	for _, ep := range r.endpoints {
		out[ep], _ = r.Snapshot(ep)
	}
	return out
}

// percentile usa interpolação linear entre as posições vizinhas
// (pos = p/100 * (n-1)). Para 10,20,...,100 o p95 é 95.5.
func percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	pos := (p / 100) * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	weight := pos - float64(lo)
	return time.Duration((1-weight)*float64(sorted[lo]) + weight*float64(sorted[hi]))
}
