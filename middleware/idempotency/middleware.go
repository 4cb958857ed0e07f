package idempotency

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

const (
	DefaultHeader = "Idempotency-Key"
	// ReplayedHeader marca respostas devolvidas do cache.
	ReplayedHeader = "Idempotent-Replayed"
)

type Options struct {
	Cache *Cache
	// Header de onde vem a chave. Padrão: Idempotency-Key.
	Header string
	// Scope prefixa a chave (ex.: "create_note"), separando operações diferentes.
	Scope string
	// MaxKeyLen limita o tamanho da chave. Padrão: 255.
	MaxKeyLen int
	// ConflictStatus é usado quando a duplicata não consegue a resposta. Padrão: 409.
	ConflictStatus int
	Logger         *slog.Logger
}

// Middleware torna o próximo handler idempotente pela chave do header.
//
// A primeira requisição de uma chave executa o handler; a resposta é
// capturada, guardada (se status < 400) e então enviada. Requisições
// seguintes com a mesma chave recebem a mesma resposta, mesmo que o corpo
// seja diferente. Respostas >= 400 não são guardadas: a chave é liberada para
// uma nova tentativa.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Header == "" {
		opts.Header = DefaultHeader
	}
	if opts.MaxKeyLen <= 0 {
		opts.MaxKeyLen = 255
	}
	if opts.ConflictStatus == 0 {
		opts.ConflictStatus = http.StatusConflict
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(opts.Header))
			if key == "" {
				writeError(w, http.StatusBadRequest, "missing_idempotency_key")
				return
			}
			if len(key) > opts.MaxKeyLen {
				writeError(w, http.StatusBadRequest, "idempotency_key_too_long")
				return
			}
			if opts.Scope != "" {
				key = opts.Scope + ":" + key
			}

			res, err := opts.Cache.Begin(r.Context(), key)
			if err != nil {
				w.Header().Set("Retry-After", "1")
				writeError(w, opts.ConflictStatus, "idempotency_conflict")
				return
			}

			if res.State == Replayed {
				w.Header().Set(ReplayedHeader, "true")
				writeResponse(w, res.Response)
				return
			}

			resp := capture(next, r, func() { opts.Cache.Abort(res.Ticket) })
			if resp.StatusCode >= http.StatusBadRequest {
				opts.Cache.Abort(res.Ticket)
				writeResponse(w, resp)
				return
			}

			if err := opts.Cache.Commit(res.Ticket, resp); err != nil {
				if errors.Is(err, ErrAlreadyCommitted) {
					opts.Logger.Error("idempotency invariant violated", "key", key, "err", err)
					writeError(w, http.StatusInternalServerError, "internal_error")
					return
				}
				// só acontece se alguém abortou o Ticket desta requisição
				opts.Logger.Warn("idempotency commit skipped", "key", key, "err", err)
			}
			writeResponse(w, resp)
		})
	}
}

// capture executa o handler num buffer. Se o handler entrar em pânico,
// onPanic roda antes do pânico seguir adiante (libera quem espera pela chave).
func capture(next http.Handler, r *http.Request, onPanic func()) Response {
	cw := &captureWriter{header: make(http.Header)}

	func() {
		defer func() {
			if p := recover(); p != nil {
				onPanic()
				panic(p)
			}
		}()
		next.ServeHTTP(cw, r)
	}()

	status := cw.status
	if status == 0 {
		status = http.StatusOK
	}
	return Response{StatusCode: status, Header: cw.header, Body: cw.body.Bytes()}
}

type captureWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(p)
}

func writeResponse(w http.ResponseWriter, resp Response) {
	h := w.Header()
	for k, vs := range resp.Header {
		h[k] = append([]string(nil), vs...)
	}
	h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":` + strconv.Quote(code) + "}\n"))
}
