// Package crmsync faz o wiring do sync de contatos com CRMs externos.
//
// Visão geral (camadas):
//
//   - domain: contatos, operações, jobs, contratos de fila/cliente/stats
//   - rules: tabela declarativa destino x operação -> condição (YAML)
//   - application: Evaluator (enfileira), Worker (executa) e Runner (consome as filas)
//   - infra: filas em memória e Redis, cliente CRM simulado, stores de stats
//   - crmsync (este pacote): Options com padrões e o Dispatcher pronto para uso
//
// Fluxo de um job:
//
//  1. OnChange avalia as regras e enfileira um job por destino, na fila da prioridade
//  2. o Runner retira o job e chama o Worker
//  3. o Worker consulta o rate limit do destino; negado, reagenda em 30s
//  4. a chamada ao CRM passa pelo circuit breaker; aberto, reagenda em 60s
//  5. falhas comuns voltam para a fila com backoff até o limite de retries
//
// O binário cmd/worker lê a configuração de variáveis de ambiente, como
// REDIS_ADDR, RULES_FILE, WORKER_CONCURRENCY e BREAKER_THRESHOLD.
package crmsync
