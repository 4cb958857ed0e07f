// Package idempotency implementa o cache de idempotência das escritas do
// TinyNotes e o middleware HTTP que usa o header Idempotency-Key.
//
// Para uma mesma chave executa no máximo uma escrita: a primeira requisição
// reserva a chave (Begin -> Reserved), escreve e confirma (Commit); as
// duplicatas recebem a resposta confirmada, byte a byte. Duplicatas que chegam
// durante a escrita esperam com prazo; sem Commit dentro do prazo recebem 409
// com Retry-After.
package idempotency
