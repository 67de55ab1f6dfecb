package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crm-sync-gateway/resilience/domain"
	"crm-sync-gateway/resilience/infra"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

var errDownstream = errors.New("failure")

func newMemoryBreaker(threshold int, timeout time.Duration) (*CircuitBreaker, *testingclock.FakeClock) {
	clk := testingclock.NewFakeClock(time.Date(2025, 6, 7, 12, 0, 0, 0, time.UTC))
	b := NewCircuitBreaker(infra.NewMemoryStore(infra.WithClock(clk)), threshold, timeout)
	b.Clock = clk
	return b, clk
}

func succeed(context.Context) error { return nil }
func fail(context.Context) error    { return errDownstream }

func trip(t *testing.T, b *CircuitBreaker, key domain.Key, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := b.Call(context.Background(), key, fail)
		require.ErrorIs(t, err, errDownstream)
	}
}

func requireState(t *testing.T, b *CircuitBreaker, key domain.Key, want domain.CircuitState, wantFailures int64) {
	t.Helper()
	state, err := b.CurrentState(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, want, state)
	n, err := b.CurrentFailureCount(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, wantFailures, n)
}

func TestCircuitBreaker_ClosedRunsFnAndPropagatesError(t *testing.T) {
	b, _ := newMemoryBreaker(3, 30*time.Second)
	ctx := context.Background()

	calls := 0
	err := b.Call(ctx, "svc", func(context.Context) error { calls++; return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	err = b.Call(ctx, "svc", fail)
	assert.Same(t, errDownstream, err, "original error must propagate unchanged")
	requireState(t, b, "svc", domain.CircuitClosed, 1)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newMemoryBreaker(3, 30*time.Second)

	trip(t, b, "svc", 2)
	requireState(t, b, "svc", domain.CircuitClosed, 2)

	require.NoError(t, b.Call(context.Background(), "svc", succeed))
	requireState(t, b, "svc", domain.CircuitClosed, 0)
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	b, clk := newMemoryBreaker(3, 30*time.Second)
	ctx := context.Background()

	trip(t, b, "svc", 3)
	requireState(t, b, "svc", domain.CircuitOpen, 3)

	openedAt, ok, err := b.OpenedAt(ctx, "svc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, clk.Now().UnixMilli(), openedAt.UnixMilli())
}

func TestCircuitBreaker_OpenShortCircuits(t *testing.T) {
	b, clk := newMemoryBreaker(3, 30*time.Second)
	ctx := context.Background()
	trip(t, b, "svc", 3)

	var calls atomic.Int32
	for i := 0; i < 5; i++ {
		clk.Step(5 * time.Second)
		err := b.Call(ctx, "svc", func(context.Context) error { calls.Add(1); return nil })
		require.ErrorIs(t, err, domain.ErrCircuitOpen)

		var openErr *domain.OpenError
		require.ErrorAs(t, err, &openErr)
		assert.Equal(t, domain.Key("svc"), openErr.Key)
	}
	assert.Zero(t, calls.Load(), "wrapped unit of work must never run while open")
}

func TestCircuitBreaker_HalfOpenProbeSuccessCloses(t *testing.T) {
	b, clk := newMemoryBreaker(3, 30*time.Second)
	ctx := context.Background()
	trip(t, b, "svc", 3)

	clk.Step(31 * time.Second)

	var sawState domain.CircuitState
	err := b.Call(ctx, "svc", func(ctx context.Context) error {
		sawState, _ = b.CurrentState(ctx, "svc")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CircuitHalfOpen, sawState)
	requireState(t, b, "svc", domain.CircuitClosed, 0)

	_, ok, err := b.OpenedAt(ctx, "svc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCircuitBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	b, clk := newMemoryBreaker(3, 30*time.Second)
	ctx := context.Background()
	trip(t, b, "svc", 3)
	first, _, _ := b.OpenedAt(ctx, "svc")

	clk.Step(31 * time.Second)
	err := b.Call(ctx, "svc", fail)
	require.ErrorIs(t, err, errDownstream)

	state, err := b.CurrentState(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, domain.CircuitOpen, state)

	second, ok, err := b.OpenedAt(ctx, "svc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, second.After(first), "opened_at must be refreshed")

	err = b.Call(ctx, "svc", succeed)
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
}

func TestCircuitBreaker_ProbeFailureReopensEvenAfterCounterExpired(t *testing.T) {
	b, clk := newMemoryBreaker(3, 30*time.Second)
	ctx := context.Background()
	trip(t, b, "svc", 3)

	// contador de falhas expira em 2x timeout; a sonda que falha ainda reabre
	clk.Step(61 * time.Second)
	require.ErrorIs(t, b.Call(ctx, "svc", fail), errDownstream)

	state, err := b.CurrentState(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, domain.CircuitOpen, state)
}

func TestCircuitBreaker_ExactlyTimeoutStillOpen(t *testing.T) {
	b, clk := newMemoryBreaker(1, 30*time.Second)
	trip(t, b, "svc", 1)

	clk.Step(30 * time.Second)
	assert.ErrorIs(t, b.Call(context.Background(), "svc", succeed), domain.ErrCircuitOpen)
}

func TestCircuitBreaker_ResetRestoresDefaults(t *testing.T) {
	b, _ := newMemoryBreaker(2, 30*time.Second)
	ctx := context.Background()
	trip(t, b, "svc", 2)
	requireState(t, b, "svc", domain.CircuitOpen, 2)

	require.NoError(t, b.Reset(ctx, "svc"))
	requireState(t, b, "svc", domain.CircuitClosed, 0)
	_, ok, err := b.OpenedAt(ctx, "svc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Call(ctx, "svc", succeed))
}

func TestCircuitBreaker_KeysAreIndependent(t *testing.T) {
	b, _ := newMemoryBreaker(2, 30*time.Second)
	ctx := context.Background()
	trip(t, b, "salesforce", 2)

	requireState(t, b, "salesforce", domain.CircuitOpen, 2)
	requireState(t, b, "hubspot", domain.CircuitClosed, 0)
	assert.NoError(t, b.Call(ctx, "hubspot", succeed))
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	b := &CircuitBreaker{}
	assert.Equal(t, DefaultFailureThreshold, b.threshold())
	assert.Equal(t, DefaultBreakerTimeout, b.timeout())
}

// Sondas concorrentes no HalfOpen não são mutuamente exclusivas.
func TestCircuitBreaker_ConcurrentProbesAllowed(t *testing.T) {
	b, clk := newMemoryBreaker(1, 30*time.Second)
	ctx := context.Background()
	trip(t, b, "svc", 1)
	clk.Step(31 * time.Second)

	var probes atomic.Int32
	gate := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Call(ctx, "svc", func(context.Context) error {
				probes.Add(1)
				<-gate
				return nil
			})
		}()
	}
	require.Eventually(t, func() bool { return probes.Load() >= 1 }, time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()

	assert.GreaterOrEqual(t, probes.Load(), int32(1))
	requireState(t, b, "svc", domain.CircuitClosed, 0)
}

func TestCircuitBreaker_Redis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clk := testingclock.NewFakeClock(time.Now())
	b := NewCircuitBreaker(infra.NewRedisStore(rdb), 3, 30*time.Second)
	b.Clock = clk

	trip(t, b, "salesforce", 3)
	requireState(t, b, "salesforce", domain.CircuitOpen, 3)
	assert.Equal(t, 60*time.Second, mr.TTL("circuit_breaker:{salesforce}:failures"))

	calls := 0
	err := b.Call(ctx, "salesforce", func(context.Context) error { calls++; return nil })
	require.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.Zero(t, calls)

	clk.Step(31 * time.Second)
	require.NoError(t, b.Call(ctx, "salesforce", succeed))
	requireState(t, b, "salesforce", domain.CircuitClosed, 0)

	require.NoError(t, b.Reset(ctx, "salesforce"))
	assert.False(t, mr.Exists("circuit_breaker:{salesforce}:state"))
}
