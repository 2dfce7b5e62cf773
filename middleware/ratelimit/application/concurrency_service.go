package application

import (
	"context"
	"time"

	"docqa-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService reserva uma vaga de trabalho em andamento.
type ConcurrencyService struct {
	Pool domain.SlotPool
	// AcquireTimeout > 0 limita a espera; senão espera até o ctx do chamador acabar.
	AcquireTimeout time.Duration
}

// Acquire devolve o release da vaga ou domain.ErrNoSlot.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}
	if release, ok := s.Pool.Acquire(ctx); ok {
		return release, nil
	}
	return nil, domain.ErrNoSlot
}
