package infra

import (
	"context"
	"errors"
	"strconv"
	"time"

	"crm-sync-gateway/resilience/domain"

	"github.com/redis/go-redis/v9"
)

var errNotInteger = errors.New("value is not an integer")

// RedisStore implementa domain.Store sobre go-redis.
//
// Atomic usa MULTI/EXEC (TxPipelined). Em Redis Cluster, todas as chaves de um
// batch precisam cair no mesmo slot; por isso os serviços usam hash tags ({key}).
type RedisStore struct {
	rdb redis.UniversalClient
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, redisTTL(ttl)).Err()
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *RedisStore) IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *RedisStore) ZCount(ctx context.Context, key string, min, max float64) (int64, error) {
	return s.rdb.ZCount(ctx, key, formatScore(min), formatScore(max)).Result()
}

func (s *RedisStore) Atomic(ctx context.Context, fn func(domain.Batch)) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fn(&redisBatch{ctx: ctx, pipe: pipe})
		return nil
	})
	return err
}

// redisBatch traduz as operações do domínio para comandos no pipeline MULTI.
// *redis.IntCmd já satisfaz domain.IntResult (Val() int64).
type redisBatch struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

func (b *redisBatch) Set(key, value string, ttl time.Duration) {
	b.pipe.Set(b.ctx, key, value, redisTTL(ttl))
}

func (b *redisBatch) Del(keys ...string) {
	if len(keys) == 0 {
		return
	}
	b.pipe.Del(b.ctx, keys...)
}

func (b *redisBatch) Incr(key string) domain.IntResult {
	return b.pipe.Incr(b.ctx, key)
}

func (b *redisBatch) Expire(key string, ttl time.Duration) {
	if ttl <= 0 {
		b.pipe.Persist(b.ctx, key)
		return
	}
	b.pipe.Expire(b.ctx, key, ttl)
}

func (b *redisBatch) ZAdd(key string, score float64, member string) {
	b.pipe.ZAdd(b.ctx, key, redis.Z{Score: score, Member: member})
}

func (b *redisBatch) ZRemRangeByScoreBelow(key string, max float64) {
	b.pipe.ZRemRangeByScore(b.ctx, key, "-inf", "("+formatScore(max))
}

func (b *redisBatch) ZCard(key string) domain.IntResult {
	return b.pipe.ZCard(b.ctx, key)
}

// redisTTL: 0 no go-redis significa "sem expiração".
func redisTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}

func formatScore(v float64) string {
	// sem notação científica para timestamps em ms
	return strconv.FormatFloat(v, 'f', -1, 64)
}
