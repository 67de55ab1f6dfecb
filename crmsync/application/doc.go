// Package application contém os casos de uso da sincronização:
//
//   - Evaluator: transforma um evento de mudança em jobs priorizados (um por destino)
//   - Worker: executa um job sob rate limit e circuit breaker, adiando em vez de falhar
//   - Runner: laço de consumo da fila com orçamento de retry separado dos adiamentos
//
// Ele depende apenas dos pacotes domain e não conhece Redis.
package application
