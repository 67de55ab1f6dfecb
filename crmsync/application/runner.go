package application

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"crm-sync-gateway/crmsync/domain"
	logutil "crm-sync-gateway/internal/logging"
	rapp "crm-sync-gateway/resilience/application"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

const (
	DefaultMaxRetries   = 3
	DefaultPollInterval = time.Second
	DefaultPromoteEvery = time.Second
)

// Pacer limita a taxa local de retirada por fila (ver resilience/infra.Pacer).
type Pacer interface {
	Wait(ctx context.Context, queue string) error
}

// Runner consome as filas de prioridade e aplica a política de retry.
//
// Falha comum: Attempt++ e Retry com backoff até MaxRetries; depois Bury.
// Erro permanente: Bury direto. Adiamentos do Worker retornam nil e só dão Ack.
type Runner struct {
	Queue   domain.JobQueue
	Handler domain.Handler
	// Queues em ordem de prioridade; vazio usa domain.QueueNames().
	Queues []string

	Slots *rapp.Slots
	Pacer Pacer

	MaxRetries   int
	Backoff      func(attempt int) time.Duration
	PollInterval time.Duration
	PromoteEvery time.Duration

	Stats  domain.StatsStore
	Logger logr.Logger
	Clock  clock.Clock

	lastPromote time.Time
}

// Run processa jobs até ctx encerrar. Jobs em andamento terminam antes do retorno.
func (r *Runner) Run(ctx context.Context) error {
	logger := r.Logger.WithValues("queues", r.queues())
	logger.Info("runner started")
	defer logger.Info("runner stopped")

	// jobs já retirados terminam mesmo com shutdown
	workCtx := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			r.wait()
			return nil
		}

		// a vaga é reservada antes do Dequeue: nenhuma entrega fica sem executor
		release, ok := r.reserve(ctx)
		if !ok {
			continue
		}
		r.promote(ctx)

		d, err := r.Queue.Dequeue(ctx, r.queues())
		if errors.Is(err, domain.ErrQueueEmpty) {
			release()
			r.sleep(ctx)
			continue
		}
		if err != nil {
			release()
			if ctx.Err() == nil {
				logger.Error(err, "dequeue failed")
			}
			r.sleep(ctx)
			continue
		}

		if r.Pacer != nil {
			if err := r.Pacer.Wait(ctx, d.Queue); err != nil {
				release()
				r.requeue(workCtx, logger, d)
				r.wait()
				return nil
			}
		}

		if r.Slots == nil {
			r.Process(workCtx, d)
			continue
		}
		r.Slots.Run(release, func() { r.Process(workCtx, d) })
	}
}

func (r *Runner) reserve(ctx context.Context) (func(), bool) {
	if r.Slots == nil {
		return func() {}, true
	}
	release, ok := r.Slots.Acquire(ctx)
	if !ok && ctx.Err() == nil {
		r.Logger.V(logutil.DEBUG).Info("no slot acquired, waiting for in-flight jobs")
	}
	return release, ok
}

// requeue devolve à fila uma entrega retirada que não vai ser executada.
func (r *Runner) requeue(ctx context.Context, logger logr.Logger, d *domain.Delivery) {
	job := d.Job
	job.Queue = d.Queue
	if err := r.Queue.EnqueueIn(ctx, 0, job); err != nil {
		logger.Error(err, "requeue failed, delivery left for recovery", "job", job.ID)
		return
	}
	if err := r.Queue.Ack(ctx, d); err != nil {
		logger.Error(err, "ack after requeue failed", "job", job.ID)
	}
}

// Process executa uma entrega e decide entre Ack, Retry e Bury.
func (r *Runner) Process(ctx context.Context, d *domain.Delivery) {
	logger := r.Logger.WithValues("job", d.Job.ID, "target", d.Job.Target, "operation", d.Job.Operation, "queue", d.Queue)
	ctx = logutil.IntoContext(ctx, logger)

	err := r.Handler.Perform(ctx, d.Job)
	if err == nil {
		if ackErr := r.Queue.Ack(ctx, d); ackErr != nil {
			logger.Error(ackErr, "ack failed")
		}
		return
	}

	job := d.Job
	job.Attempt++
	job.LastError = err.Error()
	d.Job = job

	if domain.IsPermanent(err) || job.Attempt > r.maxRetries() {
		r.bury(ctx, logger, d, err)
		return
	}

	at := r.now().Add(r.backoff(job.Attempt))
	if retryErr := r.Queue.Retry(ctx, d, at); retryErr != nil {
		logger.Error(retryErr, "retry schedule failed")
		return
	}
	logger.V(logutil.VERBOSE).Info("job scheduled for retry", "attempt", job.Attempt, "at", at)
}

func (r *Runner) bury(ctx context.Context, logger logr.Logger, d *domain.Delivery, cause error) {
	if err := r.Queue.Bury(ctx, d); err != nil {
		logger.Error(err, "bury failed")
		return
	}
	logger.Error(cause, "job moved to dead set", "attempt", d.Job.Attempt, "permanent", domain.IsPermanent(cause))
	if r.Stats == nil {
		return
	}
	err := r.Stats.Record(ctx, domain.StatsEvent{
		Target:    d.Job.Target,
		Operation: d.Job.Operation,
		Outcome:   domain.OutcomeDead,
		At:        r.now(),
	})
	if err != nil {
		logger.V(logutil.DEBUG).Info("stats record failed", "err", err.Error())
	}
}

func (r *Runner) promote(ctx context.Context) {
	now := r.now()
	if !r.lastPromote.IsZero() && now.Sub(r.lastPromote) < r.promoteEvery() {
		return
	}
	r.lastPromote = now

	n, err := r.Queue.PromoteDue(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.Logger.Error(err, "promote scheduled jobs failed")
		}
		return
	}
	if n > 0 {
		r.Logger.V(logutil.DEBUG).Info("scheduled jobs promoted", "count", n)
	}
}

func (r *Runner) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-r.clock().After(r.pollInterval()):
	}
}

func (r *Runner) wait() {
	if r.Slots != nil {
		r.Slots.Wait()
	}
}

func (r *Runner) queues() []string {
	if len(r.Queues) == 0 {
		return domain.QueueNames()
	}
	return r.Queues
}

func (r *Runner) maxRetries() int {
	if r.MaxRetries < 0 {
		return 0
	}
	if r.MaxRetries == 0 {
		return DefaultMaxRetries
	}
	return r.MaxRetries
}

func (r *Runner) backoff(attempt int) time.Duration {
	if r.Backoff == nil {
		return DefaultBackoff(attempt)
	}
	return r.Backoff(attempt)
}

func (r *Runner) pollInterval() time.Duration {
	if r.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return r.PollInterval
}

func (r *Runner) promoteEvery() time.Duration {
	if r.PromoteEvery <= 0 {
		return DefaultPromoteEvery
	}
	return r.PromoteEvery
}

func (r *Runner) clock() clock.Clock {
	if r.Clock == nil {
		return clock.RealClock{}
	}
	return r.Clock
}

func (r *Runner) now() time.Time { return r.clock().Now() }

// DefaultBackoff é polinomial com jitter: attempt^4 + 15s + rand(10)*(attempt+1) s.
func DefaultBackoff(attempt int) time.Duration {
	a := int64(attempt)
	secs := a*a*a*a + 15 + rand.Int64N(10)*(a+1)
	return time.Duration(secs) * time.Second
}
