package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-sync-gateway/crmsync/domain"
	logutil "crm-sync-gateway/internal/logging"
	rdomain "crm-sync-gateway/resilience/domain"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

const (
	DefaultRateLimitDelay   = 30 * time.Second
	DefaultCircuitOpenDelay = 60 * time.Second
)

// Breaker protege uma unidade de trabalho por chave (ver resilience/application.CircuitBreaker).
type Breaker interface {
	Call(ctx context.Context, key rdomain.Key, fn func(context.Context) error) error
}

// Worker é o lado de execução do dispatcher.
//
// Rate limit negado e circuito aberto não são falhas: o job é reagendado com
// EnqueueIn e Perform retorna nil, sem consumir o orçamento de retry da fila.
type Worker struct {
	Limiter    rdomain.Limiter
	Breaker    Breaker
	Clients    map[string]domain.CRMClient
	Transforms map[string]Transform
	Contacts   domain.ContactSource
	Queue      domain.JobQueue
	Stats      domain.StatsStore

	RateLimitDelay   time.Duration
	CircuitOpenDelay time.Duration

	Logger logr.Logger
	Clock  clock.PassiveClock
}

func (w *Worker) Perform(ctx context.Context, job domain.Job) error {
	logger := w.logger(ctx, job)

	client, ok := w.Clients[job.Target]
	if !ok {
		return domain.UnknownTargetError(job.Target)
	}
	switch job.Operation {
	case domain.OpCreate, domain.OpUpdate, domain.OpDelete:
	default:
		return domain.Permanent(fmt.Errorf("unsupported operation %q", job.Operation))
	}

	var contact domain.Contact
	var transform Transform
	// delete só precisa do id: o contato normalmente já não existe no store
	if job.Operation != domain.OpDelete {
		transform, ok = w.Transforms[job.Target]
		if !ok {
			return domain.UnknownTargetError(job.Target)
		}
		c, err := w.Contacts.Contact(ctx, job.EntityID)
		if errors.Is(err, domain.ErrEntityNotFound) {
			return domain.Permanent(fmt.Errorf("contact %d: %w", job.EntityID, err))
		}
		if err != nil {
			return fmt.Errorf("load contact %d: %w", job.EntityID, err)
		}
		contact = c
	}

	key := rdomain.Key(job.Target)
	dec, err := w.Limiter.Decide(ctx, key)
	if err != nil {
		return err
	}
	if !dec.Allowed {
		delay := dec.RetryAfter
		if delay <= 0 {
			delay = w.rateLimitDelay()
		}
		logger.V(logutil.VERBOSE).Info("rate limited, rescheduling", "usage", dec.Usage, "limit", dec.Limit, "delay", delay)
		return w.reschedule(ctx, job, delay, domain.OutcomeRateLimited)
	}

	var res domain.Result
	err = w.Breaker.Call(ctx, key, func(ctx context.Context) error {
		var callErr error
		res, callErr = w.sync(ctx, client, transform, contact, job)
		return callErr
	})
	switch {
	case errors.Is(err, rdomain.ErrCircuitOpen):
		// logr não tem nível warn; severity permite filtrar estes avisos
		logger.Info("circuit breaker open, rescheduling", "severity", "warning", "reason", err.Error(), "delay", w.circuitOpenDelay())
		return w.reschedule(ctx, job, w.circuitOpenDelay(), domain.OutcomeCircuitOpen)
	case err != nil:
		logger.Error(err, "sync failed", "attempt", job.Attempt)
		w.record(ctx, job, domain.OutcomeFailed)
		return err
	}

	logger.Info("successfully synced contact", "externalID", res.ExternalID)
	w.record(ctx, job, domain.OutcomeSynced)
	return nil
}

// logger usa o logger anexado pelo Runner (já com job, target e operation) quando existe.
func (w *Worker) logger(ctx context.Context, job domain.Job) logr.Logger {
	if logger, ok := logutil.FromContext(ctx); ok {
		return logger.WithValues("contact", job.EntityID)
	}
	return w.Logger.WithValues("job", job.ID, "contact", job.EntityID, "target", job.Target, "operation", job.Operation)
}

func (w *Worker) sync(ctx context.Context, client domain.CRMClient, transform Transform, contact domain.Contact, job domain.Job) (domain.Result, error) {
	id := fmt.Sprint(job.EntityID)
	switch job.Operation {
	case domain.OpCreate:
		return client.Create(ctx, transform(contact))
	case domain.OpUpdate:
		return client.Update(ctx, id, transform(contact))
	default:
		return client.Delete(ctx, id)
	}
}

// reschedule reenfileira o mesmo job com atraso, contando um adiamento (não um retry).
func (w *Worker) reschedule(ctx context.Context, job domain.Job, delay time.Duration, outcome domain.Outcome) error {
	job.Deferrals++
	if err := w.Queue.EnqueueIn(ctx, delay, job); err != nil {
		return fmt.Errorf("reschedule job %s: %w", job.ID, err)
	}
	w.record(ctx, job, outcome)
	return nil
}

func (w *Worker) record(ctx context.Context, job domain.Job, outcome domain.Outcome) {
	if w.Stats == nil {
		return
	}
	err := w.Stats.Record(ctx, domain.StatsEvent{
		Target:    job.Target,
		Operation: job.Operation,
		Outcome:   outcome,
		At:        w.now(),
	})
	if err != nil {
		w.Logger.V(logutil.DEBUG).Info("stats record failed", "err", err.Error())
	}
}

func (w *Worker) rateLimitDelay() time.Duration {
	if w.RateLimitDelay <= 0 {
		return DefaultRateLimitDelay
	}
	return w.RateLimitDelay
}

func (w *Worker) circuitOpenDelay() time.Duration {
	if w.CircuitOpenDelay <= 0 {
		return DefaultCircuitOpenDelay
	}
	return w.CircuitOpenDelay
}

func (w *Worker) now() time.Time {
	if w.Clock == nil {
		return time.Now()
	}
	return w.Clock.Now()
}
