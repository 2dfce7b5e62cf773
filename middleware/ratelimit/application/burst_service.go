package application

import (
	"time"

	"docqa-gateway/middleware/ratelimit/domain"
)

// BurstService aplica o token bucket de borda. Não participa das cotas diárias:
// só corta rajadas antes de elas chegarem aos pipelines.
type BurstService struct {
	Store domain.BucketStore
	// RetryAfter é a dica devolvida ao bloquear (padrão 1s).
	RetryAfter time.Duration
}

func (s BurstService) Decide(client domain.Key) domain.BurstDecision {
	allow := domain.BurstDecision{Allowed: true}
	if s.Store == nil {
		return allow
	}
	b := s.Store.Get(client)
	if b == nil || b.Allow() {
		return allow
	}
	hint := s.RetryAfter
	if hint <= 0 {
		hint = time.Second
	}
	return domain.BurstDecision{RetryAfter: hint}
}
