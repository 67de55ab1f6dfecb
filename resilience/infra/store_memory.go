package infra

import (
	"context"
	"strconv"
	"sync"
	"time"

	"crm-sync-gateway/resilience/domain"

	"k8s.io/utils/clock"
)

// MemoryStore é uma implementação de domain.Store em memória.
// Útil para testes e para um único processo.
//
// Atomic executa o batch inteiro sob o mesmo lock, então nenhum chamador
// concorrente observa um estado intermediário. Expiração é preguiçosa
// (verificada em cada acesso) e usa o Clock injetado.
type MemoryStore struct {
	mu      sync.Mutex
	clock   clock.PassiveClock
	scalars map[string]scalarEntry
	zsets   map[string]*zsetEntry
}

type scalarEntry struct {
	value    string
	expireAt time.Time
}

type zsetEntry struct {
	members  map[string]float64
	expireAt time.Time
}

type MemoryStoreOption func(*MemoryStore)

func WithClock(c clock.PassiveClock) MemoryStoreOption {
	return func(s *MemoryStore) { s.clock = c }
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		clock:   clock.RealClock{},
		scalars: make(map[string]scalarEntry),
		zsets:   make(map[string]*zsetEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.scalar(key)
	return e.value, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key, value, ttl)
	return nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.del(keys...)
	return nil
}

func (s *MemoryStore) IncrWithExpiry(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.incr(key)
	if err != nil {
		return 0, err
	}
	s.expire(key, ttl)
	return n, nil
}

func (s *MemoryStore) ZCount(_ context.Context, key string, min, max float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z := s.zset(key)
	if z == nil {
		return 0, nil
	}
	var n int64
	for _, sc := range z.members {
		if sc >= min && sc <= max {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Atomic(_ context.Context, fn func(domain.Batch)) error {
	b := &memoryBatch{}
	fn(b)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range b.ops {
		if err := op(s); err != nil {
			return err
		}
	}
	return nil
}

// Len retorna quantas chaves vivas existem. Útil para testes de expiração.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.scalars {
		if _, ok := s.scalar(k); ok {
			n++
		}
	}
	for k := range s.zsets {
		if s.zset(k) != nil {
			n++
		}
	}
	return n
}

// os métodos abaixo assumem s.mu travado.

func (s *MemoryStore) expired(at time.Time) bool {
	return !at.IsZero() && !s.clock.Now().Before(at)
}

func (s *MemoryStore) scalar(key string) (scalarEntry, bool) {
	e, ok := s.scalars[key]
	if !ok {
		return scalarEntry{}, false
	}
	if s.expired(e.expireAt) {
		delete(s.scalars, key)
		return scalarEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) zset(key string) *zsetEntry {
	z, ok := s.zsets[key]
	if !ok {
		return nil
	}
	if s.expired(z.expireAt) || len(z.members) == 0 {
		delete(s.zsets, key)
		return nil
	}
	return z
}

func (s *MemoryStore) set(key, value string, ttl time.Duration) {
	delete(s.zsets, key)
	e := scalarEntry{value: value}
	if ttl > 0 {
		e.expireAt = s.clock.Now().Add(ttl)
	}
	s.scalars[key] = e
}

func (s *MemoryStore) del(keys ...string) {
	for _, k := range keys {
		delete(s.scalars, k)
		delete(s.zsets, k)
	}
}

func (s *MemoryStore) incr(key string) (int64, error) {
	e, _ := s.scalar(key)
	var n int64
	if e.value != "" {
		v, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, errNotInteger
		}
		n = v
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	s.scalars[key] = e
	return n, nil
}

func (s *MemoryStore) expire(key string, ttl time.Duration) {
	at := time.Time{}
	if ttl > 0 {
		at = s.clock.Now().Add(ttl)
	}
	if e, ok := s.scalar(key); ok {
		e.expireAt = at
		s.scalars[key] = e
		return
	}
	if z := s.zset(key); z != nil {
		z.expireAt = at
	}
}

func (s *MemoryStore) zadd(key string, score float64, member string) {
	z := s.zset(key)
	if z == nil {
		delete(s.scalars, key)
		z = &zsetEntry{members: make(map[string]float64)}
		s.zsets[key] = z
	}
	z.members[member] = score
}

func (s *MemoryStore) zremBelow(key string, max float64) {
	z := s.zset(key)
	if z == nil {
		return
	}
	for m, sc := range z.members {
		if sc < max {
			delete(z.members, m)
		}
	}
}

func (s *MemoryStore) zcard(key string) int64 {
	z := s.zset(key)
	if z == nil {
		return 0
	}
	return int64(len(z.members))
}

type memoryBatch struct {
	ops []func(*MemoryStore) error
}

type memoryInt struct{ v int64 }

func (r *memoryInt) Val() int64 { return r.v }

func (b *memoryBatch) Set(key, value string, ttl time.Duration) {
	b.ops = append(b.ops, func(s *MemoryStore) error { s.set(key, value, ttl); return nil })
}

func (b *memoryBatch) Del(keys ...string) {
	b.ops = append(b.ops, func(s *MemoryStore) error { s.del(keys...); return nil })
}

func (b *memoryBatch) Incr(key string) domain.IntResult {
	r := &memoryInt{}
	b.ops = append(b.ops, func(s *MemoryStore) error {
		n, err := s.incr(key)
		r.v = n
		return err
	})
	return r
}

func (b *memoryBatch) Expire(key string, ttl time.Duration) {
	b.ops = append(b.ops, func(s *MemoryStore) error { s.expire(key, ttl); return nil })
}

func (b *memoryBatch) ZAdd(key string, score float64, member string) {
	b.ops = append(b.ops, func(s *MemoryStore) error { s.zadd(key, score, member); return nil })
}

func (b *memoryBatch) ZRemRangeByScoreBelow(key string, max float64) {
	b.ops = append(b.ops, func(s *MemoryStore) error { s.zremBelow(key, max); return nil })
}

func (b *memoryBatch) ZCard(key string) domain.IntResult {
	r := &memoryInt{}
	b.ops = append(b.ops, func(s *MemoryStore) error { r.v = s.zcard(key); return nil })
	return r
}
