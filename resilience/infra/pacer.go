package infra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"
)

const (
	DefaultPacerIdleTTL      = 15 * time.Minute
	DefaultPacerCleanupEvery = 2 * time.Minute
)

// Pacer controla quantos jobs por segundo este processo retira de cada fila.
// Cada fila tem seu próprio token bucket (x/time/rate), criado no primeiro uso
// e descartado pelo janitor depois de idleTTL sem uso.
//
// Não substitui o RateLimiter compartilhado; rps <= 0 desliga o pacing.
type Pacer struct {
	rps   rate.Limit
	burst int
	clock clock.WithTicker

	idleTTL      time.Duration
	cleanupEvery time.Duration

	mu     sync.Mutex
	queues map[string]*pacedQueue
}

type pacedQueue struct {
	bucket   *rate.Limiter
	lastUsed time.Time
}

type PacerOption func(*Pacer)

func WithIdleTTL(d time.Duration) PacerOption {
	return func(p *Pacer) { p.idleTTL = d }
}

// WithCleanupEvery <= 0 desliga o janitor.
func WithCleanupEvery(d time.Duration) PacerOption {
	return func(p *Pacer) { p.cleanupEvery = d }
}

func WithPacerClock(c clock.WithTicker) PacerOption {
	return func(p *Pacer) { p.clock = c }
}

func NewPacer(rps float64, burst int, opts ...PacerOption) *Pacer {
	p := &Pacer{
		rps:          rate.Limit(rps),
		burst:        max(burst, 1),
		clock:        clock.RealClock{},
		idleTTL:      DefaultPacerIdleTTL,
		cleanupEvery: DefaultPacerCleanupEvery,
		queues:       make(map[string]*pacedQueue),
	}
	if rps <= 0 {
		p.rps = rate.Inf
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wait reserva um token da fila e espera, pelo clock do Pacer, até ele valer.
// Se ctx encerrar antes, a reserva é devolvida.
func (p *Pacer) Wait(ctx context.Context, queue string) error {
	now := p.clock.Now()
	res := p.bucket(queue, now).ReserveN(now, 1)
	if !res.OK() {
		return fmt.Errorf("pacer %s: burst %d too small", queue, p.burst)
	}

	delay := res.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	select {
	case <-p.clock.After(delay):
		return nil
	case <-ctx.Done():
		res.CancelAt(p.clock.Now())
		return ctx.Err()
	}
}

func (p *Pacer) bucket(queue string, now time.Time) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.queues[queue]
	if !ok {
		q = &pacedQueue{bucket: rate.NewLimiter(p.rps, p.burst)}
		p.queues[queue] = q
	}
	q.lastUsed = now
	return q.bucket
}

// Cleanup descarta os buckets sem uso há mais de idleTTL.
func (p *Pacer) Cleanup() int {
	cutoff := p.clock.Now().Add(-p.idleTTL)

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for name, q := range p.queues {
		if q.lastUsed.Before(cutoff) {
			delete(p.queues, name)
			removed++
		}
	}
	return removed
}

// StartJanitor roda Cleanup a cada cleanupEvery até ctx encerrar.
func (p *Pacer) StartJanitor(ctx context.Context) {
	if p.cleanupEvery <= 0 {
		return
	}

	ticker := p.clock.NewTicker(p.cleanupEvery)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				p.Cleanup()
			}
		}
	}()
}
