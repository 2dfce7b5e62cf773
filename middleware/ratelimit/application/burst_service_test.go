package application

import (
	"testing"
	"time"

	"docqa-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
)

type stubBucket bool

func (b stubBucket) Allow() bool { return bool(b) }

// stubBuckets devolve o mesmo bucket para qualquer cliente e lembra a última chave.
type stubBuckets struct {
	bucket  domain.Bucket
	lastKey domain.Key
}

func (s *stubBuckets) Get(k domain.Key) domain.Bucket {
	s.lastKey = k
	return s.bucket
}

func TestBurstService_Decide(t *testing.T) {
	cases := []struct {
		name       string
		store      domain.BucketStore
		retryAfter time.Duration
		want       domain.BurstDecision
	}{
		{"no store lets everything through", nil, 0, domain.BurstDecision{Allowed: true}},
		{"nil bucket lets through", &stubBuckets{}, 0, domain.BurstDecision{Allowed: true}},
		{"token available", &stubBuckets{bucket: stubBucket(true)}, 5 * time.Second, domain.BurstDecision{Allowed: true}},
		{"empty bucket uses 1s hint", &stubBuckets{bucket: stubBucket(false)}, 0, domain.BurstDecision{RetryAfter: time.Second}},
		{"empty bucket keeps configured hint", &stubBuckets{bucket: stubBucket(false)}, 2500 * time.Millisecond, domain.BurstDecision{RetryAfter: 2500 * time.Millisecond}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := BurstService{Store: tc.store, RetryAfter: tc.retryAfter}
			assert.Equal(t, tc.want, svc.Decide("10.0.0.1"))
		})
	}
}

func TestBurstService_Decide_LooksUpByClientKey(t *testing.T) {
	store := &stubBuckets{bucket: stubBucket(true)}
	BurstService{Store: store}.Decide("client-42")
	assert.Equal(t, domain.Key("client-42"), store.lastKey)
}
