package domain

// Camada de domínio do rate limit do TinyNotes.
//
// Contratos (interfaces/tipos) sem dependência de net/http.

import "time"

// Key identifica quem está chamando (API key ou IP do cliente).
// Cada Key tem o seu próprio bucket.
type Key string

// Limiter decide se uma requisição do caller pode entrar agora.
//
// Quando nega, devolve também uma dica de quanto tempo esperar até existir
// 1 token disponível: (1 - tokens) / taxa de reposição.
// Chamadas concorrentes para o mesmo Limiter precisam ser serializadas pela
// implementação (refill + decremento atômicos).
type Limiter interface {
	Allow() (ok bool, retryAfter time.Duration)
}

// LimiterStore obtém (ou cria sob demanda) o limiter de uma chave.
type LimiterStore interface {
	Get(Key) Limiter
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
