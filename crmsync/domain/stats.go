package domain

import (
	"context"
	"time"
)

// Outcome é o resultado observável de uma execução de job.
type Outcome string

const (
	OutcomeSynced      Outcome = "synced"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeCircuitOpen Outcome = "circuit_open"
	OutcomeFailed      Outcome = "failed"
	OutcomeDead        Outcome = "dead"
)

// StatsEvent representa um evento de execução de job.
//
// Observação: Target e Operation têm cardinalidade baixa (conjunto fixo de CRMs),
// então são seguros como labels/chaves no Redis e Prometheus.
type StatsEvent struct {
	Target    string
	Operation Operation
	Outcome   Outcome
	At        time.Time
}

// StatsStore é a estratégia de persistência das estatísticas.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// O worker trata erro como best-effort (não derruba o job).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
