// Package apikey confere o segredo compartilhado do header X-API-Key.
//
// Header ausente responde 401, valor diferente responde 403. Com Key vazia o
// middleware não faz nada (modo desenvolvimento).
package apikey

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const DefaultHeader = "X-API-Key"

type Options struct {
	Key    string
	Header string
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Key == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.Header == "" {
		opts.Header = DefaultHeader
	}
	want := []byte(opts.Key)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimSpace(r.Header.Get(opts.Header))
			if got == "" {
				deny(w, http.StatusUnauthorized, "missing_api_key")
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				deny(w, http.StatusForbidden, "invalid_api_key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `"}` + "\n"))
}
