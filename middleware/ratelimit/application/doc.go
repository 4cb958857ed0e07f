// Package application contém os casos de uso do rate limit e do limite de
// requisições em andamento.
//
// Depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(key) retorna uma Decision (allow/deny + retry-after
// calculado pelo bucket do caller).
package application
