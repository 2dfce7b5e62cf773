package infra

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"docqa-gateway/middleware/ratelimit/domain"
)

// MemoryCounterStore implementa domain.CounterStore e o KV de sessões em memória.
// Útil para testes e desenvolvimento (STORE=memory).
//
// Não é compartilhado entre instâncias: com mais de uma réplica use RedisCounterStore.
type MemoryCounterStore struct {
	mu      sync.Mutex
	windows map[domain.Key]*memWindow
	values  map[string]memValue

	now          func() time.Time
	cleanupEvery time.Duration
	down         atomic.Bool
}

// memWindow espelha o hash do Redis: buckets mais a expiração renovada a cada hit
// (o PEXPIRE do script).
type memWindow struct {
	buckets   map[int64]int
	expiresAt time.Time
}

type memValue struct {
	v         string
	expiresAt time.Time
}

type MemoryCounterOption func(*MemoryCounterStore)

// WithClock troca o relógio usado na expiração do KV (o relógio das janelas vem do hit).
func WithClock(now func() time.Time) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.now = now }
}

func WithMemoryCleanupEvery(d time.Duration) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.cleanupEvery = d }
}

func NewMemoryCounterStore(opts ...MemoryCounterOption) *MemoryCounterStore {
	s := &MemoryCounterStore{
		windows:      make(map[domain.Key]*memWindow),
		values:       make(map[string]memValue),
		now:          time.Now,
		cleanupEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetUnavailable simula queda do store (testes de falha).
func (s *MemoryCounterStore) SetUnavailable(down bool) { s.down.Store(down) }

func (s *MemoryCounterStore) check() error {
	if s.down.Load() {
		return fmt.Errorf("memory store: %w", domain.ErrStoreUnavailable)
	}
	return nil
}

// Hit implementa domain.CounterStore. O mutex torna registrar+somar+decidir atômico.
func (s *MemoryCounterStore) Hit(_ context.Context, h domain.WindowHit) (domain.WindowState, error) {
	if err := s.check(); err != nil {
		return domain.WindowState{}, err
	}
	cur := h.Bucket()
	minLive := h.OldestLiveBucket()

	s.mu.Lock()
	defer s.mu.Unlock()

	win := s.windows[h.Key]
	if win == nil {
		win = &memWindow{buckets: make(map[int64]int)}
		s.windows[h.Key] = win
	}

	var st domain.WindowState
	for idx, n := range win.buckets {
		if idx < minLive {
			delete(win.buckets, idx)
			continue
		}
		st.Used += n
		if !st.HasOldest || idx < st.OldestBucket {
			st.OldestBucket, st.HasOldest = idx, true
		}
	}

	st.Admitted = st.Used < h.Limit
	if st.Admitted || h.ChargeRejected {
		win.buckets[cur]++
		st.Used++
		if !st.HasOldest || cur < st.OldestBucket {
			st.OldestBucket, st.HasOldest = cur, true
		}
	}
	if len(win.buckets) == 0 {
		delete(s.windows, h.Key)
	} else {
		win.expiresAt = h.At.Add(h.TTL())
	}
	return st, nil
}

func (s *MemoryCounterStore) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = memValue{v: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryCounterStore) Get(_ context.Context, key string) (string, bool, error) {
	if err := s.check(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.values[key]
	if !ok {
		return "", false, nil
	}
	if !s.now().Before(ent.expiresAt) {
		delete(s.values, key)
		return "", false, nil
	}
	return ent.v, true, nil
}

func (s *MemoryCounterStore) Ping(context.Context) error { return s.check() }

// Cleanup remove valores do KV e janelas deslizantes já expirados. Sem isso cada
// cliente visto ficaria em memória até o fim do processo.
func (s *MemoryCounterStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.values {
		if !now.Before(ent.expiresAt) {
			delete(s.values, k)
		}
	}
	for k, win := range s.windows {
		if !now.Before(win.expiresAt) {
			delete(s.windows, k)
		}
	}
}

// Len é o número de janelas e valores ainda guardados.
func (s *MemoryCounterStore) Len() (windows, values int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows), len(s.values)
}

// StartJanitor inicia uma goroutine que roda Cleanup a cada cleanupEvery.
// Pare cancelando o contexto.
func (s *MemoryCounterStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, s.Cleanup)
}
