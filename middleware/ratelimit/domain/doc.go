// Package domain define os contratos do rate limit (token bucket por caller),
// das estatísticas de decisão e do limite de requisições em andamento.
//
// Não depende de net/http nem de implementações concretas, o que mantém os
// testes de unidade puros.
package domain
