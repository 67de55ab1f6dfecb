package domain

import (
	"context"
	"time"
)

// Job é uma unidade de sincronização: um contato, uma operação, um destino.
//
// Attempt e Deferrals são orçamentos separados: Attempt conta falhas reais
// (consumidas pela política de retry da fila) e Deferrals conta adiamentos por
// rate limit ou circuito aberto, que nunca consomem retry.
type Job struct {
	ID        string    `json:"id"`
	EntityID  int64     `json:"entity_id"`
	Operation Operation `json:"operation"`
	Target    string    `json:"target"`
	Queue     string    `json:"queue"`

	Attempt    int       `json:"attempt,omitempty"`
	Deferrals  int       `json:"deferrals,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Delivery é um job entregue a um worker. Raw é o payload exatamente como
// saiu da fila, necessário para o ack.
type Delivery struct {
	Job   Job
	Queue string
	Raw   string
}

// JobQueue é o contrato da fila de jobs (entrega at-least-once).
//
// O consumidor precisa ser idempotente: duplicatas são aceitas, não deduplicadas.
type JobQueue interface {
	// Enqueue coloca o job na fila nomeada.
	Enqueue(ctx context.Context, queue string, job Job) error
	// EnqueueIn agenda o job para a fila job.Queue depois de delay (adiamento).
	EnqueueIn(ctx context.Context, delay time.Duration, job Job) error
	// Dequeue retira o próximo job, percorrendo queues em ordem.
	// Retorna ErrQueueEmpty quando nada está disponível.
	Dequeue(ctx context.Context, queues []string) (*Delivery, error)
	// Ack confirma o processamento da entrega.
	Ack(ctx context.Context, d *Delivery) error
	// Retry confirma a entrega e reagenda d.Job (já atualizado) para at.
	Retry(ctx context.Context, d *Delivery, at time.Time) error
	// Bury confirma a entrega e move d.Job para o conjunto de mortos (terminal).
	Bury(ctx context.Context, d *Delivery) error
	// PromoteDue move jobs agendados vencidos para as suas filas.
	PromoteDue(ctx context.Context) (int, error)
}

// Handler executa um job. Erros permanentes devem ser marcados com Permanent.
type Handler interface {
	Perform(ctx context.Context, job Job) error
}
