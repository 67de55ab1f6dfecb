// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryStore / RedisStore: estado compartilhado (escalares, sorted sets, batch atômico)
//   - Pacer: token bucket local por fila usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência
package infra
