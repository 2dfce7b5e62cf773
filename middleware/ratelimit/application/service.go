package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docqa-gateway/middleware/ratelimit/domain"
)

// Service é o limiter de janela deslizante compartilhado pelos três escopos.
//
// Ele não sabe nada sobre HTTP: devolve uma Decision ou um erro envolvendo
// domain.ErrStoreUnavailable. Todo o estado mora no Store.
type Service struct {
	Store    domain.CounterStore
	Policies domain.Policies
	Stats    domain.StatsStore
	Prefix   string
	Now      func() time.Time
	Logger   *slog.Logger
}

func (s Service) Check(ctx context.Context, scope domain.Scope) (domain.Decision, error) {
	if s.Store == nil {
		return domain.Decision{}, fmt.Errorf("check %s: %w", scope, domain.ErrStoreUnavailable)
	}
	policies := s.Policies
	if policies == nil {
		policies = domain.DefaultPolicies()
	}
	pol, err := policies.For(scope)
	if err != nil {
		return domain.Decision{}, err
	}

	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	hit := domain.WindowHit{
		Key:            scope.Key(s.Prefix),
		At:             now,
		Limit:          pol.Limit,
		Window:         pol.Window,
		Granularity:    pol.Granularity,
		ChargeRejected: pol.ChargeRejected,
	}

	st, err := s.Store.Hit(ctx, hit)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("check %s: %w", scope, err)
	}

	remaining := pol.Limit - st.Used
	if remaining < 0 {
		remaining = 0
	}
	dec := domain.Decision{
		Scope:     scope,
		Admitted:  st.Admitted,
		Limit:     pol.Limit,
		Window:    pol.Window,
		Remaining: remaining,
		ResetAt:   hit.ResetAt(st),
	}
	s.record(ctx, hit, dec)
	return dec, nil
}

func (s Service) record(ctx context.Context, hit domain.WindowHit, dec domain.Decision) {
	if s.Stats == nil {
		return
	}
	err := s.Stats.Record(ctx, domain.StatsEvent{
		Scope:   dec.Scope.Name(),
		Key:     hit.Key,
		Allowed: dec.Admitted,
		At:      hit.At,
	})
	if err != nil {
		s.logger().Warn("admission stats not recorded", "scope", dec.Scope.Name(), "error", err)
	}
}

func (s Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
