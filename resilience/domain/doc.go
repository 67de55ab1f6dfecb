// Package domain define contratos e tipos de domínio para rate limit (janela deslizante),
// circuit breaker e limite de concorrência.
//
// Este pacote não depende de Redis nem de implementações concretas.
// O estado compartilhado (janelas e estado do breaker) é acessado apenas pelo
// contrato Store, para que vários workers/processos enxerguem o mesmo estado.
package domain
