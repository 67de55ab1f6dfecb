package application

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"crm-sync-gateway/resilience/domain"

	"k8s.io/utils/clock"
)

const (
	DefaultFailureThreshold = 5
	DefaultBreakerTimeout   = 30 * time.Second
)

// CircuitBreaker isola falhas por chave com a máquina de estados
// Closed -> Open -> HalfOpen -> Closed|Open, guardada no Store compartilhado.
//
// Limitação conhecida: não existe exclusão mútua no HalfOpen. Dois workers
// que leem Open ao mesmo tempo depois do timeout podem ambos sondar o downstream.
type CircuitBreaker struct {
	Store            domain.Store
	FailureThreshold int
	Timeout          time.Duration
	Clock            clock.PassiveClock
}

func NewCircuitBreaker(store domain.Store, threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{Store: store, FailureThreshold: threshold, Timeout: timeout}
}

// Call executa fn protegido pelo breaker da chave.
//
// Com o circuito aberto e dentro do timeout, retorna *domain.OpenError sem chamar fn.
// Erros de fn são sempre devolvidos sem alteração, mesmo quando abrem o circuito.
func (b *CircuitBreaker) Call(ctx context.Context, key domain.Key, fn func(context.Context) error) error {
	state, err := b.CurrentState(ctx, key)
	if err != nil {
		return err
	}

	if state == domain.CircuitOpen {
		openedAt, ok, err := b.OpenedAt(ctx, key)
		if err != nil {
			return err
		}
		// sem opened_at (expirou) a sonda é liberada; senão o circuito ficaria aberto para sempre
		if ok && b.now().Sub(openedAt) <= b.timeout() {
			return &domain.OpenError{Key: key, OpenedAt: openedAt}
		}
		if err := b.Store.Set(ctx, stateKey(key), domain.CircuitHalfOpen.String(), 0); err != nil {
			return fmt.Errorf("circuit %s: %w", key, err)
		}
		state = domain.CircuitHalfOpen
	}

	if err := fn(ctx); err != nil {
		if ferr := b.onFailure(ctx, key, state == domain.CircuitHalfOpen); ferr != nil {
			return fmt.Errorf("%w (circuit %s: %v)", err, key, ferr)
		}
		return err
	}
	return b.onSuccess(ctx, key)
}

func (b *CircuitBreaker) CurrentState(ctx context.Context, key domain.Key) (domain.CircuitState, error) {
	v, err := domain.GetOr(ctx, b.Store, stateKey(key), domain.CircuitClosed.String())
	if err != nil {
		return domain.CircuitClosed, fmt.Errorf("circuit %s: %w", key, err)
	}
	return domain.ParseCircuitState(v), nil
}

func (b *CircuitBreaker) CurrentFailureCount(ctx context.Context, key domain.Key) (int64, error) {
	v, err := domain.GetOr(ctx, b.Store, failuresKey(key), "0")
	if err != nil {
		return 0, fmt.Errorf("circuit %s: %w", key, err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// OpenedAt retorna quando o circuito abriu pela última vez, se ainda registrado.
func (b *CircuitBreaker) OpenedAt(ctx context.Context, key domain.Key) (time.Time, bool, error) {
	v, ok, err := b.Store.Get(ctx, openedAtKey(key))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("circuit %s: %w", key, err)
	}
	if !ok {
		return time.Time{}, false, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// Reset volta a chave para Closed, contagem 0 e sem opened_at.
func (b *CircuitBreaker) Reset(ctx context.Context, key domain.Key) error {
	return b.Store.Atomic(ctx, func(batch domain.Batch) {
		batch.Del(failuresKey(key), stateKey(key), openedAtKey(key))
	})
}

func (b *CircuitBreaker) onSuccess(ctx context.Context, key domain.Key) error {
	err := b.Store.Atomic(ctx, func(batch domain.Batch) {
		batch.Del(failuresKey(key), openedAtKey(key))
		batch.Set(stateKey(key), domain.CircuitClosed.String(), 0)
	})
	if err != nil {
		return fmt.Errorf("circuit %s: %w", key, err)
	}
	return nil
}

func (b *CircuitBreaker) onFailure(ctx context.Context, key domain.Key, probing bool) error {
	ttl := 2 * b.timeout()
	failures, err := b.Store.IncrWithExpiry(ctx, failuresKey(key), ttl)
	if err != nil {
		return err
	}
	if failures < int64(b.threshold()) && !probing {
		return nil
	}

	now := strconv.FormatInt(b.now().UnixMilli(), 10)
	return b.Store.Atomic(ctx, func(batch domain.Batch) {
		batch.Set(stateKey(key), domain.CircuitOpen.String(), 0)
		batch.Set(openedAtKey(key), now, ttl)
	})
}

func (b *CircuitBreaker) threshold() int {
	if b.FailureThreshold <= 0 {
		return DefaultFailureThreshold
	}
	return b.FailureThreshold
}

func (b *CircuitBreaker) timeout() time.Duration {
	if b.Timeout <= 0 {
		return DefaultBreakerTimeout
	}
	return b.Timeout
}

func (b *CircuitBreaker) now() time.Time {
	if b.Clock == nil {
		return time.Now()
	}
	return b.Clock.Now()
}

func stateKey(key domain.Key) string    { return "circuit_breaker:{" + string(key) + "}:state" }
func failuresKey(key domain.Key) string { return "circuit_breaker:{" + string(key) + "}:failures" }
func openedAtKey(key domain.Key) string { return "circuit_breaker:{" + string(key) + "}:opened_at" }
