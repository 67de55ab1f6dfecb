package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"crm-sync-gateway/crmsync/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava contadores de resultado em hashes do Redis.
//
// Chaves (prefix padrão "crmsync:stats"):
//   - <prefix>:total                    cumulativo, campo = resultado
//   - <prefix>:target:<destino>         cumulativo por destino, campo = "<OP>:<resultado>"
//   - <prefix>:minute:<yyyymmddhhmm>    série por minuto, campo = "<destino>:<resultado>"
type RedisStatsStore struct {
	rdb redis.UniversalClient

	prefix string
	// ttl aplica apenas nos buckets por minuto.
	// total e por destino são cumulativos e não expiram.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "crmsync:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	outcome := string(ev.Outcome)
	target := strings.TrimSpace(ev.Target)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", outcome, 1)

	if target != "" {
		pipe.HIncrBy(ctx, s.prefix+":target:"+target, string(ev.Operation)+":"+outcome, 1)
	}

	if s.bucket == "minute" {
		bucketKey := s.minuteKey(at)
		pipe.HIncrBy(ctx, bucketKey, target+":"+outcome, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Total lê os contadores cumulativos.
func (s *RedisStatsStore) Total(ctx context.Context) (Counters, error) {
	return s.readCounters(ctx, s.prefix+":total", func(field string) (domain.Outcome, bool) {
		return domain.Outcome(field), true
	})
}

// Target lê os contadores cumulativos de um destino, somando as operações.
func (s *RedisStatsStore) Target(ctx context.Context, target string) (Counters, error) {
	return s.readCounters(ctx, s.prefix+":target:"+target, func(field string) (domain.Outcome, bool) {
		_, outcome, ok := strings.Cut(field, ":")
		return domain.Outcome(outcome), ok
	})
}

// Minute lê o bucket do minuto de at para um destino.
func (s *RedisStatsStore) Minute(ctx context.Context, target string, at time.Time) (Counters, error) {
	return s.readCounters(ctx, s.minuteKey(at), func(field string) (domain.Outcome, bool) {
		t, outcome, ok := strings.Cut(field, ":")
		return domain.Outcome(outcome), ok && t == target
	})
}

// Reset apaga os contadores cumulativos de um destino.
func (s *RedisStatsStore) Reset(ctx context.Context, target string) error {
	return s.rdb.Del(ctx, s.prefix+":target:"+target).Err()
}

func (s *RedisStatsStore) minuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
}

func (s *RedisStatsStore) readCounters(ctx context.Context, key string, outcomeOf func(string) (domain.Outcome, bool)) (Counters, error) {
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(Counters)
	for field, raw := range fields {
		outcome, ok := outcomeOf(field)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stats field %s: %w", field, err)
		}
		out[outcome] += n
	}
	return out, nil
}
