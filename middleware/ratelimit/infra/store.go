package infra

import (
	"sync"
	"time"

	"docqa-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// BucketStore guarda um token bucket (x/time/rate) por cliente para o burst guard HTTP.
// Clientes sem requisição há mais de idleTTL são descartados pelo janitor.
type BucketStore struct {
	mu      sync.Mutex
	clients map[domain.Key]*clientBucket

	limit        rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type clientBucket struct {
	store *BucketStore
	lim   *rate.Limiter
	seen  time.Time // protegido por store.mu
}

// Allow consome um token no relógio do store.
func (b *clientBucket) Allow() bool {
	now := b.store.now()
	b.store.touch(b, now)
	return b.lim.AllowN(now, 1)
}

type BucketStoreOption func(*BucketStore)

func WithIdleTTL(d time.Duration) BucketStoreOption {
	return func(s *BucketStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) BucketStoreOption {
	return func(s *BucketStore) { s.cleanupEvery = d }
}

func WithBucketClock(now func() time.Time) BucketStoreOption {
	return func(s *BucketStore) { s.now = now }
}

func NewBucketStore(rps float64, burst int, opts ...BucketStoreOption) *BucketStore {
	s := &BucketStore{
		clients:      make(map[domain.Key]*clientBucket),
		limit:        rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RPS e Burst alimentam os headers X-Burst-*.
func (s *BucketStore) RPS() float64 { return float64(s.limit) }
func (s *BucketStore) Burst() int   { return s.burst }

// Get implementa domain.BucketStore.
func (s *BucketStore) Get(key domain.Key) domain.Bucket {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.clients[key]
	if !ok {
		b = &clientBucket{store: s, lim: rate.NewLimiter(s.limit, s.burst)}
		s.clients[key] = b
	}
	b.seen = now
	return b
}

func (s *BucketStore) touch(b *clientBucket, now time.Time) {
	s.mu.Lock()
	if now.After(b.seen) {
		b.seen = now
	}
	s.mu.Unlock()
}

// Len é o número de clientes em cache.
func (s *BucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Cleanup descarta clientes ociosos; o próximo Get recria o bucket cheio.
func (s *BucketStore) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, b := range s.clients {
		if b.seen.Before(cutoff) {
			delete(s.clients, k)
		}
	}
}

// StartJanitor roda Cleanup a cada cleanupEvery até ctx encerrar.
func (s *BucketStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, s.Cleanup)
}
