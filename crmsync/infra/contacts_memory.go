package infra

import (
	"context"
	"sync"

	"crm-sync-gateway/crmsync/domain"
)

// MemoryContacts é um diretório de contatos em memória (testes e ferramentas).
type MemoryContacts struct {
	mu     sync.RWMutex
	byID   map[int64]domain.Contact
	nextID int64
}

func NewMemoryContacts(contacts ...domain.Contact) *MemoryContacts {
	m := &MemoryContacts{byID: make(map[int64]domain.Contact)}
	for _, c := range contacts {
		m.Put(c)
	}
	return m
}

// Put grava o contato. ID zero recebe o próximo id livre.
func (m *MemoryContacts) Put(c domain.Contact) domain.Contact {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		m.nextID++
		c.ID = m.nextID
	}
	if c.ID > m.nextID {
		m.nextID = c.ID
	}
	m.byID[c.ID] = c
	return c
}

func (m *MemoryContacts) Delete(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

func (m *MemoryContacts) Contact(_ context.Context, id int64) (domain.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byID[id]
	if !ok {
		return domain.Contact{}, domain.ErrEntityNotFound
	}
	return c, nil
}
