package domain

import (
	"context"
	"time"
)

// StatsEvent representa o resultado de uma checagem de admissão.
//
// Scope é o nome do escopo (sem cliente), Key é a chave completa do contador.
// Observação: cuidado com cardinalidade ao indexar por Key (um registro por cliente).
type StatsEvent struct {
	Scope   string
	Key     Key
	Allowed bool

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// Implementações podem armazenar em Redis, memória, Prometheus etc.
// Quem chama trata erro como best-effort (não derruba a requisição).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// StatsReader expõe os totais por escopo (endpoint /stats).
type StatsReader interface {
	ByScope(ctx context.Context) (map[string]Counters, error)
}
