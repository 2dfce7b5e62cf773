package application

import (
	"context"
	"testing"
	"time"

	"docqa-gateway/middleware/ratelimit/domain"
	"docqa-gateway/middleware/ratelimit/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// neverPool só devolve quando o ctx acaba.
type neverPool struct{}

func (neverPool) Acquire(ctx context.Context) (func(), bool) {
	<-ctx.Done()
	return nil, false
}

func TestConcurrencyService_NoPoolIsUnlimited(t *testing.T) {
	release, err := ConcurrencyService{}.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, release)
	release()
}

func TestConcurrencyService_TimeoutBecomesErrNoSlot(t *testing.T) {
	svc := ConcurrencyService{Pool: neverPool{}, AcquireTimeout: 10 * time.Millisecond}

	start := time.Now()
	release, err := svc.Acquire(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoSlot)
	assert.Nil(t, release)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConcurrencyService_WithoutTimeoutWaitsForCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ConcurrencyService{Pool: neverPool{}}.Acquire(ctx)
	assert.ErrorIs(t, err, domain.ErrNoSlot)
}

func TestConcurrencyService_SlotsComeBackOnRelease(t *testing.T) {
	pool := infra.NewChanPool(1)
	svc := ConcurrencyService{Pool: pool, AcquireTimeout: 10 * time.Millisecond}

	release, err := svc.Acquire(context.Background())
	require.NoError(t, err)

	_, err = svc.Acquire(context.Background())
	require.ErrorIs(t, err, domain.ErrNoSlot)

	release()
	again, err := svc.Acquire(context.Background())
	require.NoError(t, err)
	again()
	assert.Equal(t, 0, pool.InUse())
}
