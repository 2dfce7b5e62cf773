package infra

import (
	"context"
	"maps"
	"sync"

	"docqa-gateway/middleware/ratelimit/domain"
)

// MemoryStatsStore soma as decisões de admissão em memória (STORE=memory e testes).
// Os totais são do processo: não expiram e não são vistos por outras réplicas.
// Por chave de cliente só existe no RedisStatsStore (STATS_TRACK_KEYS).
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   domain.Counters
	byScope map[string]domain.Counters
}

func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{byScope: make(map[string]domain.Counters)}
}

func tally(c domain.Counters, allowed bool) domain.Counters {
	if allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
	return c
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total = tally(s.total, ev.Allowed)
	s.byScope[ev.Scope] = tally(s.byScope[ev.Scope], ev.Allowed)
	return nil
}

// Total soma todos os escopos (logado no desligamento).
func (s *MemoryStatsStore) Total() domain.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// ByScope implementa domain.StatsReader. Devolve uma cópia.
func (s *MemoryStatsStore) ByScope(context.Context) (map[string]domain.Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byScope), nil
}
