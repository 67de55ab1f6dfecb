// Package domain define os tipos da sincronização de contatos com CRMs:
// snapshot do contato, operação, prioridade, job, contratos da fila, do
// cliente downstream e das estatísticas.
//
// Este pacote não depende de Redis nem de implementações concretas.
package domain
