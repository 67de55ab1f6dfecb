package infra

import (
	"context"
	"sync"
	"testing"
	"time"

	"crm-sync-gateway/resilience/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

// storeFixture devolve um Store e uma função que avança o tempo de expiração.
type storeFixture func(t *testing.T) (domain.Store, func(time.Duration))

var storeFixtures = map[string]storeFixture{
	"memory": func(t *testing.T) (domain.Store, func(time.Duration)) {
		clk := testingclock.NewFakeClock(time.Now())
		return NewMemoryStore(WithClock(clk)), clk.Step
	},
	"redis": func(t *testing.T) (domain.Store, func(time.Duration)) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return NewRedisStore(rdb), mr.FastForward
	},
}

func forEachStore(t *testing.T, fn func(t *testing.T, s domain.Store, advance func(time.Duration))) {
	for name, fixture := range storeFixtures {
		t.Run(name, func(t *testing.T) {
			s, advance := fixture(t)
			fn(t, s, advance)
		})
	}
}

func TestStore_ScalarRoundTripAndExpiry(t *testing.T) {
	forEachStore(t, func(t *testing.T, s domain.Store, advance func(time.Duration)) {
		ctx := context.Background()

		_, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)

		v, err := domain.GetOr(ctx, s, "k", "closed")
		require.NoError(t, err)
		assert.Equal(t, "closed", v)

		require.NoError(t, s.Set(ctx, "k", "open", time.Second))
		v, ok, err = s.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "open", v)

		advance(2 * time.Second)
		_, ok, err = s.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_IncrWithExpiry(t *testing.T) {
	forEachStore(t, func(t *testing.T, s domain.Store, advance func(time.Duration)) {
		ctx := context.Background()

		for want := int64(1); want <= 3; want++ {
			n, err := s.IncrWithExpiry(ctx, "failures", 10*time.Second)
			require.NoError(t, err)
			assert.Equal(t, want, n)
		}

		advance(11 * time.Second)
		n, err := s.IncrWithExpiry(ctx, "failures", 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n, "stale counter must self-heal")
	})
}

func TestStore_DelRemovesScalarsAndSortedSets(t *testing.T) {
	forEachStore(t, func(t *testing.T, s domain.Store, _ func(time.Duration)) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "a", "1", 0))
		require.NoError(t, s.Atomic(ctx, func(b domain.Batch) { b.ZAdd("z", 1, "m") }))

		require.NoError(t, s.Del(ctx, "a", "z"))
		require.NoError(t, s.Del(ctx))

		_, ok, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)
		n, err := s.ZCount(ctx, "z", 0, 10)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestStore_AtomicSortedSetWindow(t *testing.T) {
	forEachStore(t, func(t *testing.T, s domain.Store, _ func(time.Duration)) {
		ctx := context.Background()

		require.NoError(t, s.Atomic(ctx, func(b domain.Batch) {
			b.ZAdd("w", 100, "a")
			b.ZAdd("w", 200, "b")
			b.ZAdd("w", 300, "c")
		}))

		var card domain.IntResult
		require.NoError(t, s.Atomic(ctx, func(b domain.Batch) {
			b.ZRemRangeByScoreBelow("w", 200)
			card = b.ZCard("w")
			b.ZAdd("w", 400, "d")
			b.Expire("w", time.Minute)
		}))
		assert.Equal(t, int64(2), card.Val(), "score equal to the bound is kept")

		n, err := s.ZCount(ctx, "w", 200, 400)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		n, err = s.ZCount(ctx, "w", 250, 350)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestStore_AtomicIncrAndSet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s domain.Store, _ func(time.Duration)) {
		ctx := context.Background()

		var a, b domain.IntResult
		require.NoError(t, s.Atomic(ctx, func(batch domain.Batch) {
			a = batch.Incr("c")
			b = batch.Incr("c")
			batch.Set("state", "open", 0)
			batch.Del("missing")
		}))
		assert.Equal(t, int64(1), a.Val())
		assert.Equal(t, int64(2), b.Val())

		v, ok, err := s.Get(ctx, "state")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "open", v)
	})
}

func TestStore_IncrOnNonInteger(t *testing.T) {
	forEachStore(t, func(t *testing.T, s domain.Store, _ func(time.Duration)) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "x", "abc", 0))
		_, err := s.IncrWithExpiry(ctx, "x", time.Second)
		assert.Error(t, err)
	})
}

func TestMemoryStore_ConcurrentIncr(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.IncrWithExpiry(ctx, "n", time.Minute)
		}()
	}
	wg.Wait()

	v, _, err := s.Get(ctx, "n")
	require.NoError(t, err)
	assert.Equal(t, "50", v)
}
