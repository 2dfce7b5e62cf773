package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"docqa-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore agrega as decisões de admissão em hashes do Redis, somando os
// contadores de todas as instâncias.
//
// Layout:
//
//	<prefix>:scope                     "<scope>:allowed|denied", cumulativo, sem expiração
//	<prefix>:series:<scope>:<inicio>   "allowed|denied" por fatia de série (expira em ttl)
//	<prefix>:key:<key>                 "allowed|denied", só com trackKeys (expira em ttl)
//
// <inicio> é o unix time (segundos) do começo da fatia.
type RedisStatsStore struct {
	rdb redis.UniversalClient

	prefix    string
	ttl       time.Duration
	series    time.Duration
	trackKeys bool
}

const (
	DefaultStatsPrefix = "ratelimit:stats"
	DefaultStatsTTL    = 48 * time.Hour
	DefaultStatsSeries = time.Hour
)

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

// WithStatsTTL define a expiração das chaves de série e por key.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsSeries define o tamanho da fatia da série por escopo; zero desliga a série.
func WithStatsSeries(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.series = d }
}

// WithStatsTrackKeys liga contadores por chave de cliente (cuidado com cardinalidade).
func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: DefaultStatsPrefix,
		ttl:    DefaultStatsTTL,
		series: DefaultStatsSeries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) seriesKey(scope string, at time.Time) string {
	start := at.Truncate(s.series).Unix()
	return s.prefix + ":series:" + scope + ":" + strconv.FormatInt(start, 10)
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	scope := strings.TrimSpace(ev.Scope)
	if scope == "" {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	expiring := func(pipe redis.Pipeliner, key string) {
		pipe.HIncrBy(ctx, key, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, s.prefix+":scope", scope+":"+field, 1)
		if s.series > 0 {
			expiring(pipe, s.seriesKey(scope, at))
		}
		if k := strings.TrimSpace(string(ev.Key)); s.trackKeys && k != "" {
			expiring(pipe, s.prefix+":key:"+k)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis stats: %w", err)
	}
	return nil
}

// ByScope implementa domain.StatsReader lendo o hash cumulativo.
func (s *RedisStatsStore) ByScope(ctx context.Context) (map[string]domain.Counters, error) {
	raw, err := s.rdb.HGetAll(ctx, s.prefix+":scope").Result()
	if err != nil {
		return nil, fmt.Errorf("redis stats: %w: %v", domain.ErrStoreUnavailable, err)
	}
	out := make(map[string]domain.Counters)
	for f, v := range raw {
		i := strings.LastIndexByte(f, ':')
		if i <= 0 {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		scope, kind := f[:i], f[i+1:]
		c := out[scope]
		switch kind {
		case "allowed":
			c.Allowed += n
		case "denied":
			c.Denied += n
		default:
			continue
		}
		out[scope] = c
	}
	return out, nil
}
