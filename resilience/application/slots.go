package application

import (
	"context"
	"sync"
	"time"

	"crm-sync-gateway/resilience/domain"
)

// Slots limita quantos jobs o processo executa ao mesmo tempo.
// A vaga é reservada com Acquire e ocupada pelo Run até fn terminar.
type Slots struct {
	Pool domain.SlotPool
	// AcquireTimeout <= 0 espera até ctx cancelar.
	AcquireTimeout time.Duration

	wg sync.WaitGroup
}

// Acquire reserva uma vaga sem executar nada. O chamador deve passar release
// para Run ou chamá-lo diretamente.
func (s *Slots) Acquire(ctx context.Context) (release func(), ok bool) {
	if s.Pool == nil {
		return func() {}, true
	}
	if s.AcquireTimeout <= 0 {
		return s.Pool.Acquire(ctx)
	}
	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}

// Run executa fn em uma goroutine segurando a vaga já reservada por Acquire.
func (s *Slots) Run(release func(), fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		fn()
	}()
}

// Wait bloqueia até todas as goroutines iniciadas por Run terminarem.
func (s *Slots) Wait() { s.wg.Wait() }
