// Package infra traz os adaptadores concretos do sync de CRM.
//
//   - MemoryQueue / RedisQueue: filas de prioridade com agendamento e dead set
//   - MockCRMClient: destino simulado com latência e taxa de falha
//   - MemoryContacts: diretório de contatos em memória
//   - stats: memória, Redis (buckets por minuto), Prometheus e TeeStats
package infra
