// Package application contém os casos de uso de resiliência: rate limit por
// janela deslizante, circuit breaker e aquisição de vagas de concorrência.
//
// Ele depende apenas do pacote domain e não conhece Redis nem a fila de jobs.
// Ex.: RateLimiter.Decide(ctx, key) retorna uma Decision (allow/deny + uso da janela)
// e CircuitBreaker.Call(ctx, key, fn) curto-circuita fn enquanto o destino está doente.
package application
