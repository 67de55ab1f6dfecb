package rules

import (
	"sort"

	"crm-sync-gateway/crmsync/domain"
)

// Table mapeia destino -> operação -> condição. Cada par tem no máximo uma condição.
type Table map[string]map[domain.Operation]Condition

// Engine avalia a Table. É imutável depois de criado e seguro para uso concorrente.
type Engine struct {
	table   Table
	targets []string
}

func NewEngine(t Table) *Engine {
	cp := make(Table, len(t))
	targets := make([]string, 0, len(t))
	for target, ops := range t {
		inner := make(map[domain.Operation]Condition, len(ops))
		for op, c := range ops {
			inner[op] = c
		}
		cp[target] = inner
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return &Engine{table: cp, targets: targets}
}

// ApplicableTargets devolve todos os destinos cuja regra para op vale para o contato.
//
// A ordem só é estável para facilitar leitura de logs; quem chama não deve depender dela.
func (e *Engine) ApplicableTargets(contact domain.Contact, op domain.Operation) []string {
	out := make([]string, 0, len(e.targets))
	for _, target := range e.targets {
		if e.ShouldSync(contact, op, target) {
			out = append(out, target)
		}
	}
	return out
}

func (e *Engine) ShouldSync(contact domain.Contact, op domain.Operation, target string) bool {
	c, ok := e.Rule(target, op)
	if !ok {
		return false
	}
	return Holds(c, contact)
}

func (e *Engine) Rule(target string, op domain.Operation) (Condition, bool) {
	c, ok := e.table[target][op]
	return c, ok
}

func (e *Engine) Targets() []string {
	return append([]string(nil), e.targets...)
}
