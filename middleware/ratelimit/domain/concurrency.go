package domain

import "context"

// SlotPool limita o trabalho em andamento (extração de PDF e chamadas de completion
// são caras e bloqueantes).
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
