package application

import (
	"context"
	"fmt"
	"time"

	"crm-sync-gateway/crmsync/domain"
	logutil "crm-sync-gateway/internal/logging"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

// Router decide quais destinos se aplicam ao snapshot.
type Router interface {
	ApplicableTargets(contact domain.Contact, op domain.Operation) []string
}

// Evaluator é o lado de avaliação do dispatcher. Ele nunca espera a execução.
type Evaluator struct {
	Rules  Router
	Queue  domain.JobQueue
	Logger logr.Logger
	Clock  clock.PassiveClock
}

// OnChange enfileira um job por destino aplicável, na fila da prioridade da operação.
// Retorna os jobs enfileirados; em erro, os anteriores já estão na fila.
func (e Evaluator) OnChange(ctx context.Context, contact domain.Contact, op domain.Operation) ([]domain.Job, error) {
	targets := e.Rules.ApplicableTargets(contact, op)
	if len(targets) == 0 {
		e.Logger.V(logutil.VERBOSE).Info("no applicable targets", "contact", contact.ID, "operation", op)
		return nil, nil
	}

	queue := domain.PriorityOf(op).Queue()
	jobs := make([]domain.Job, 0, len(targets))
	for _, target := range targets {
		job := domain.Job{
			ID:         uuid.NewString(),
			EntityID:   contact.ID,
			Operation:  op,
			Target:     target,
			Queue:      queue,
			EnqueuedAt: e.now(),
		}
		if err := e.Queue.Enqueue(ctx, queue, job); err != nil {
			return jobs, fmt.Errorf("enqueue %s for contact %d: %w", target, contact.ID, err)
		}
		jobs = append(jobs, job)
	}
	e.Logger.V(logutil.VERBOSE).Info("sync jobs enqueued", "contact", contact.ID, "operation", op, "queue", queue, "targets", targets)
	return jobs, nil
}

func (e Evaluator) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock.Now()
}
