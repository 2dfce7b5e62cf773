package infra

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"docqa-gateway/middleware/ratelimit/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatsStore_CountsByScope(t *testing.T) {
	s := NewMemoryStatsStore()
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, domain.StatsEvent{Scope: "client-query", Key: "ratelimit:client:query:a", Allowed: true}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Scope: "client-query", Key: "ratelimit:client:query:a", Allowed: false}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Scope: "global-upload", Allowed: true}))

	by, err := s.ByScope(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Counters{Allowed: 1, Denied: 1}, by["client-query"])
	assert.Equal(t, domain.Counters{Allowed: 1}, by["global-upload"])
	assert.Equal(t, domain.Counters{Allowed: 2, Denied: 1}, s.Total())
}

func TestRedisStatsStore_RecordsAndReadsBack(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisStatsStore(rdb,
		WithStatsPrefix("stats:"),
		WithStatsTTL(time.Hour),
		WithStatsSeries(time.Minute),
		WithStatsTrackKeys(true),
	)
	ctx := context.Background()
	at := time.Date(2026, 3, 4, 5, 6, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, domain.StatsEvent{Scope: "client-upload", Key: "ratelimit:client:upload:a", Allowed: true, At: at}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Scope: "client-upload", Key: "ratelimit:client:upload:a", Allowed: false, At: at}))

	by, err := s.ByScope(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Counters{Allowed: 1, Denied: 1}, by["client-upload"])

	series := "stats:series:client-upload:" + strconv.FormatInt(at.Unix(), 10)
	assert.Equal(t, "1", mr.HGet(series, "allowed"))
	assert.Equal(t, "1", mr.HGet(series, "denied"))
	assert.Equal(t, time.Hour, mr.TTL(series))
	assert.Equal(t, "1", mr.HGet("stats:key:ratelimit:client:upload:a", "denied"))
}

type failingStats struct{}

func (failingStats) Record(context.Context, domain.StatsEvent) error { return errors.New("boom") }

func TestTeeStatsStore_ContinuesAfterError(t *testing.T) {
	mem := NewMemoryStatsStore()
	tee := TeeStatsStore{failingStats{}, nil, mem}

	err := tee.Record(context.Background(), domain.StatsEvent{Scope: "global-upload", Allowed: true})
	require.Error(t, err)
	assert.Equal(t, int64(1), mem.Total().Allowed)
}

func TestRedisStatsStore_IgnoresEventsWithoutScope(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisStatsStore(rdb, WithStatsSeries(0))
	require.NoError(t, s.Record(context.Background(), domain.StatsEvent{Allowed: true}))
	require.NoError(t, s.Record(context.Background(), domain.StatsEvent{Scope: "global-upload", Allowed: true}))

	assert.Equal(t, []string{"ratelimit:stats:scope"}, mr.Keys())
}

func TestRedisStatsStore_UnavailableOnRead(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	_, err := NewRedisStatsStore(rdb).ByScope(context.Background())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
