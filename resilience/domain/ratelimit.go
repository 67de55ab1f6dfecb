package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de Redis.

import (
	"context"
	"time"
)

// Key identifica um destino (ex: "salesforce") cuja cota e saúde são
// acompanhadas de forma independente.
type Key string

// Limiter decide se uma chave pode emitir mais uma unidade de trabalho agora.
//
// Observação: negar não é erro. error só aparece quando o Store falha.
type Limiter interface {
	Allow(ctx context.Context, key Key) (bool, error)
	// Decide é Allow com uso, limite e atraso recomendado.
	Decide(ctx context.Context, key Key) (Decision, error)
}

type Decision struct {
	Allowed bool
	// Usage é o uso da janela contado antes desta requisição.
	Usage int64
	Limit int
	// RetryAfter é o atraso recomendado quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
