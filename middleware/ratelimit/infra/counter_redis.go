package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"docqa-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript executa registrar+somar+decidir de uma vez no Redis.
//
// KEYS[1] = hash bucket -> contagem
// ARGV    = bucket atual, bucket vivo mais antigo, limite, cobra rejeição (0/1), ttl ms
// Retorno = {admitido (0/1), usados, bucket vivo mais antigo ou -1}
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local cur = tonumber(ARGV[1])
local min_live = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local charge = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local used = 0
local oldest = -1
local fields = redis.call('HGETALL', key)
for i = 1, #fields, 2 do
  local idx = tonumber(fields[i])
  if idx < min_live then
    redis.call('HDEL', key, fields[i])
  else
    used = used + tonumber(fields[i + 1])
    if oldest == -1 or idx < oldest then
      oldest = idx
    end
  end
end

local admitted = 0
if used < limit then
  admitted = 1
end
if admitted == 1 or charge == 1 then
  redis.call('HINCRBY', key, ARGV[1], 1)
  used = used + 1
  if oldest == -1 or cur < oldest then
    oldest = cur
  end
end
if used > 0 then
  redis.call('PEXPIRE', key, ttl)
end
return {admitted, used, oldest}
`)

// RedisCounterStore é o Counter Store compartilhado entre todas as instâncias.
// Também serve de KV para as sessões (mesmo Redis, prefixos diferentes).
type RedisCounterStore struct {
	rdb redis.UniversalClient
}

func NewRedisCounterStore(rdb redis.UniversalClient) *RedisCounterStore {
	return &RedisCounterStore{rdb: rdb}
}

// Hit implementa domain.CounterStore via Lua (EVALSHA com fallback para EVAL).
func (s *RedisCounterStore) Hit(ctx context.Context, h domain.WindowHit) (domain.WindowState, error) {
	cur := h.Bucket()
	charge := 0
	if h.ChargeRejected {
		charge = 1
	}
	args := []any{
		strconv.FormatInt(cur, 10),
		h.OldestLiveBucket(),
		h.Limit,
		charge,
		h.TTL().Milliseconds(),
	}

	res, err := slidingWindowScript.Run(ctx, s.rdb, []string{string(h.Key)}, args...).Int64Slice()
	if err != nil {
		return domain.WindowState{}, fmt.Errorf("redis sliding window %s: %w: %v", h.Key, domain.ErrStoreUnavailable, err)
	}
	if len(res) != 3 {
		return domain.WindowState{}, fmt.Errorf("redis sliding window %s: %w: unexpected reply %v", h.Key, domain.ErrStoreUnavailable, res)
	}

	st := domain.WindowState{
		Admitted: res[0] == 1,
		Used:     int(res[1]),
	}
	if res[2] >= 0 {
		st.OldestBucket, st.HasOldest = res[2], true
	}
	return st, nil
}

// SetWithTTL grava com expiração absoluta (SET PX).
func (s *RedisCounterStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w: %v", key, domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w: %v", key, domain.ErrStoreUnavailable, err)
	}
	return v, true, nil
}

func (s *RedisCounterStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}
