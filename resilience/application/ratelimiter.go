package application

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"crm-sync-gateway/resilience/domain"

	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

const (
	DefaultRateLimit  = 60
	DefaultRateWindow = 60 * time.Second
)

// RateLimiter é um limitador de janela deslizante sobre o Store compartilhado.
//
// Cada tentativa grava uma entrada (timestamp + nonce) no sorted set da chave,
// inclusive as negadas: uma requisição negada também "gasta" uma vaga da janela.
// Sob sobrecarga contínua isso mantém a chave bloqueada até o tráfego cair.
type RateLimiter struct {
	Store domain.Store
	// DefaultLimit vale para chaves sem SetLimit. Se 0, usa DefaultRateLimit.
	DefaultLimit int
	// Window é o tamanho da janela. Se 0, usa DefaultRateWindow.
	Window     time.Duration
	RetryAfter time.Duration
	Clock      clock.PassiveClock

	mu     sync.RWMutex
	limits map[domain.Key]int
}

func NewRateLimiter(store domain.Store, defaultLimit int, window time.Duration) *RateLimiter {
	return &RateLimiter{Store: store, DefaultLimit: defaultLimit, Window: window}
}

// SetLimit sobrescreve o limite de uma chave. n <= 0 remove o override.
func (l *RateLimiter) SetLimit(key domain.Key, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 {
		delete(l.limits, key)
		return
	}
	if l.limits == nil {
		l.limits = make(map[domain.Key]int)
	}
	l.limits[key] = n
}

// Limit retorna o limite efetivo da chave.
func (l *RateLimiter) Limit(key domain.Key) int {
	l.mu.RLock()
	n, ok := l.limits[key]
	l.mu.RUnlock()
	if ok {
		return n
	}
	if l.DefaultLimit > 0 {
		return l.DefaultLimit
	}
	return DefaultRateLimit
}

func (l *RateLimiter) Allow(ctx context.Context, key domain.Key) (bool, error) {
	dec, err := l.Decide(ctx, key)
	if err != nil {
		return false, err
	}
	return dec.Allowed, nil
}

// Decide executa podar-contar-gravar-expirar em um único batch atômico e
// permite a requisição se o uso contado antes dela for menor que o limite.
func (l *RateLimiter) Decide(ctx context.Context, key domain.Key) (domain.Decision, error) {
	if l.Store == nil {
		return domain.Decision{Allowed: true}, nil
	}
	window := l.window()
	now := l.now()
	windowStart := now.Add(-window)
	limit := l.Limit(key)
	k := rateKey(key)

	var usage domain.IntResult
	err := l.Store.Atomic(ctx, func(b domain.Batch) {
		b.ZRemRangeByScoreBelow(k, score(windowStart))
		usage = b.ZCard(k)
		b.ZAdd(k, score(now), nonce(now))
		b.Expire(k, 2*window)
	})
	if err != nil {
		return domain.Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	dec := domain.Decision{Usage: usage.Val(), Limit: limit}
	if dec.Usage < int64(limit) {
		dec.Allowed = true
		return dec, nil
	}
	dec.RetryAfter = l.RetryAfter
	return dec, nil
}

// CurrentUsage conta as entradas dentro de [now-window, now].
func (l *RateLimiter) CurrentUsage(ctx context.Context, key domain.Key) (int64, error) {
	now := l.now()
	n, err := l.Store.ZCount(ctx, rateKey(key), score(now.Add(-l.window())), score(now))
	if err != nil {
		return 0, fmt.Errorf("rate usage %s: %w", key, err)
	}
	return n, nil
}

func (l *RateLimiter) Reset(ctx context.Context, key domain.Key) error {
	return l.Store.Del(ctx, rateKey(key))
}

func (l *RateLimiter) window() time.Duration {
	if l.Window <= 0 {
		return DefaultRateWindow
	}
	return l.Window
}

func (l *RateLimiter) now() time.Time {
	if l.Clock == nil {
		return time.Now()
	}
	return l.Clock.Now()
}

// rateKey usa hash tag para que a chave caia sempre no mesmo slot do Redis Cluster.
func rateKey(key domain.Key) string { return "rate_limit:{" + string(key) + "}" }

func score(t time.Time) float64 { return float64(t.UnixMilli()) }

// nonce evita colisão de membros com o mesmo timestamp.
func nonce(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10) + "-" + uuid.NewString()
}
