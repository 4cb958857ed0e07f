package domain

import "context"

// SlotPool limita quantas requisições ficam em andamento ao mesmo tempo no processo.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar (ok=false).
// O release devolvido deve ser chamado exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
