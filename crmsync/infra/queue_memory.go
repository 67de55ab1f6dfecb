package infra

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"crm-sync-gateway/crmsync/domain"

	"k8s.io/utils/clock"
)

const DefaultDeadCap = 10000

var errUnknownDelivery = errors.New("delivery not in flight")

// ScheduledJob é um job esperando o horário de ser promovido.
type ScheduledJob struct {
	Job domain.Job
	At  time.Time
}

// MemoryQueue implementa domain.JobQueue em memória, para testes e execução em um processo.
type MemoryQueue struct {
	mu        sync.Mutex
	clock     clock.PassiveClock
	queues    map[string][]domain.Job
	scheduled []ScheduledJob
	inflight  map[string]domain.Job
	dead      []domain.Job
	deadCap   int
}

type MemoryQueueOption func(*MemoryQueue)

func WithQueueClock(c clock.PassiveClock) MemoryQueueOption {
	return func(q *MemoryQueue) { q.clock = c }
}

func WithMemoryDeadCap(n int) MemoryQueueOption {
	return func(q *MemoryQueue) { q.deadCap = n }
}

func NewMemoryQueue(opts ...MemoryQueueOption) *MemoryQueue {
	q := &MemoryQueue{
		clock:    clock.RealClock{},
		queues:   make(map[string][]domain.Job),
		inflight: make(map[string]domain.Job),
		deadCap:  DefaultDeadCap,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *MemoryQueue) Enqueue(_ context.Context, queue string, job domain.Job) error {
	if queue == "" {
		queue = queueOf(job)
	}
	job.Queue = queue

	q.mu.Lock()
	defer q.mu.Unlock()
	q.queues[queue] = append(q.queues[queue], job)
	return nil
}

func (q *MemoryQueue) EnqueueIn(_ context.Context, delay time.Duration, job domain.Job) error {
	job.Queue = queueOf(job)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.scheduleLocked(job, q.clock.Now().Add(delay))
	return nil
}

func (q *MemoryQueue) Dequeue(_ context.Context, queues []string) (*domain.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, name := range queues {
		jobs := q.queues[name]
		if len(jobs) == 0 {
			continue
		}
		job := jobs[0]
		q.queues[name] = jobs[1:]
		q.inflight[job.ID] = job
		return &domain.Delivery{Job: job, Queue: name, Raw: job.ID}, nil
	}
	return nil, domain.ErrQueueEmpty
}

func (q *MemoryQueue) Ack(_ context.Context, d *domain.Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.takeLocked(d)
}

func (q *MemoryQueue) Retry(_ context.Context, d *domain.Delivery, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.takeLocked(d); err != nil {
		return err
	}
	q.scheduleLocked(d.Job, at)
	return nil
}

func (q *MemoryQueue) Bury(_ context.Context, d *domain.Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.takeLocked(d); err != nil {
		return err
	}
	q.dead = append(q.dead, d.Job)
	if q.deadCap > 0 && len(q.dead) > q.deadCap {
		q.dead = q.dead[len(q.dead)-q.deadCap:]
	}
	return nil
}

func (q *MemoryQueue) PromoteDue(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	n := 0
	for n < len(q.scheduled) && !q.scheduled[n].At.After(now) {
		job := q.scheduled[n].Job
		q.queues[job.Queue] = append(q.queues[job.Queue], job)
		n++
	}
	q.scheduled = q.scheduled[n:]
	return n, nil
}

// Len é o número de jobs prontos na fila.
func (q *MemoryQueue) Len(queue string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[queue])
}

func (q *MemoryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// Scheduled devolve uma cópia dos jobs agendados, do mais próximo ao mais distante.
func (q *MemoryQueue) Scheduled() []ScheduledJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]ScheduledJob(nil), q.scheduled...)
}

func (q *MemoryQueue) Dead() []domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.Job(nil), q.dead...)
}

func (q *MemoryQueue) scheduleLocked(job domain.Job, at time.Time) {
	i := sort.Search(len(q.scheduled), func(i int) bool { return q.scheduled[i].At.After(at) })
	q.scheduled = append(q.scheduled, ScheduledJob{})
	copy(q.scheduled[i+1:], q.scheduled[i:])
	q.scheduled[i] = ScheduledJob{Job: job, At: at}
}

func (q *MemoryQueue) takeLocked(d *domain.Delivery) error {
	if _, ok := q.inflight[d.Raw]; !ok {
		return errUnknownDelivery
	}
	delete(q.inflight, d.Raw)
	return nil
}

// queueOf usa a fila gravada no job ou, na falta dela, a fila da prioridade da operação.
func queueOf(job domain.Job) string {
	if job.Queue != "" {
		return job.Queue
	}
	return domain.PriorityOf(job.Operation).Queue()
}
