package infra

import (
	"context"
	"sync"

	"crm-sync-gateway/crmsync/domain"
)

// Counters conta eventos por resultado.
type Counters map[domain.Outcome]int64

func (c Counters) clone() Counters {
	out := make(Counters, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e para as ferramentas de linha de comando.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byTarget map[string]Counters
	byOp     map[domain.Operation]Counters
}

func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{
		total:    make(Counters),
		byTarget: make(map[string]Counters),
		byOp:     make(map[domain.Operation]Counters),
	}
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total[ev.Outcome]++

	t := s.byTarget[ev.Target]
	if t == nil {
		t = make(Counters)
		s.byTarget[ev.Target] = t
	}
	t[ev.Outcome]++

	o := s.byOp[ev.Operation]
	if o == nil {
		o = make(Counters)
		s.byOp[ev.Operation] = o
	}
	o[ev.Outcome]++
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total.clone()
}

func (s *MemoryStatsStore) ByTarget() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byTarget))
	for k, v := range s.byTarget {
		out[k] = v.clone()
	}
	return out
}

func (s *MemoryStatsStore) ByOperation() map[domain.Operation]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Operation]Counters, len(s.byOp))
	for k, v := range s.byOp {
		out[k] = v.clone()
	}
	return out
}
