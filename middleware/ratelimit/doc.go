// Package ratelimit fornece os adapters HTTP (net/http) do rate limit por caller
// e do limite de requisições em andamento do TinyNotes.
//
// Camadas:
//
//   - domain: contratos e tipos (sem net/http)
//   - application: decisão allow/deny + retry-after, acquire com timeout
//   - infra: token bucket por caller (x/time/rate), semáforo, destinos de estatística
//   - ratelimit (este pacote): middlewares HTTP, extração do caller, tradução para status/headers
//
// Fluxo de uma requisição em /notes:
//
//  1. Extrai o caller (X-API-Key, XFF ou IP)
//  2. Pede a decisão para a camada application
//  3. Se bloqueado, responde 429 com Retry-After = ceil((1 - tokens) / rps)
//  4. Se permitido, chama o próximo handler (idempotência, store de notas)
package ratelimit
