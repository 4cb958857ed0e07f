package metrics

import (
	"net/http"
	"time"
)

// Middleware mede o tempo total do próximo handler e grava no sink com o nome
// fixo do endpoint.
func Middleware(sink Sink, endpoint string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			defer func() { sink.Record(endpoint, time.Since(start)) }()
			next.ServeHTTP(w, r)
		})
	}
}

// Multi repassa a amostra para vários sinks.
type Multi []Sink

func (m Multi) Record(endpoint string, d time.Duration) bool {
	ok := false
	for _, s := range m {
		if s != nil && s.Record(endpoint, d) {
			ok = true
		}
	}
	return ok
}
