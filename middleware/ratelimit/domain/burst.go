package domain

import "time"

// Bucket representa algo que pode decidir se uma requisição passa agora.
//
// É usado só pelo burst guard HTTP (token bucket por cliente, golang.org/x/time/rate),
// que é uma proteção de borda e não participa das cotas diárias.
type Bucket interface {
	Allow() bool
}

// BucketStore obtém um bucket por chave (ex: IP, API key).
// A implementação pode manter cache, TTL, etc.
type BucketStore interface {
	Get(Key) Bucket
}

type BurstDecision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
