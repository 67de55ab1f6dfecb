package domain

import (
	"context"
	"time"
)

// Store é o estado compartilhado entre todos os workers (Redis em produção,
// memória nos testes). Rate limiter e circuit breaker nunca guardam estado
// autoritativo em campos do processo: toda decisão relê o Store.
//
// Operações fora de Atomic são independentes entre si. Qualquer sequência que
// precise ser indivisível (ler-podar-contar-gravar, incrementar-com-expiração)
// deve passar por Atomic.
type Store interface {
	// Get retorna o valor escalar e se a chave existe.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set grava um escalar. ttl <= 0 significa sem expiração.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// IncrWithExpiry incrementa o contador e renova a expiração na mesma unidade atômica.
	IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// ZCount conta membros do sorted set com score em [min, max].
	ZCount(ctx context.Context, key string, min, max float64) (int64, error)
	// Atomic executa as operações enfileiradas em fn como uma unidade indivisível.
	// Os resultados (IntResult) só são válidos depois que Atomic retorna sem erro.
	Atomic(ctx context.Context, fn func(Batch)) error
}

// Batch acumula operações para execução atômica.
type Batch interface {
	Set(key, value string, ttl time.Duration)
	Del(keys ...string)
	Incr(key string) IntResult
	Expire(key string, ttl time.Duration)
	ZAdd(key string, score float64, member string)
	// ZRemRangeByScoreBelow remove membros com score estritamente menor que max.
	ZRemRangeByScoreBelow(key string, max float64)
	ZCard(key string) IntResult
}

// IntResult é o resultado futuro de uma operação inteira dentro de um Batch.
type IntResult interface {
	Val() int64
}

// GetOr é o acessor "ler-ou-padrão": chaves ausentes retornam def.
func GetOr(ctx context.Context, s Store, key, def string) (string, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}
