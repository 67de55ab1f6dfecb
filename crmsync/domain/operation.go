package domain

import "strings"

// Operation é a mudança que originou o evento.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

func ParseOperation(v string) Operation {
	return Operation(strings.ToUpper(strings.TrimSpace(v)))
}

// Priority é a classe de prioridade do job, derivada da operação.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Priorities em ordem de consumo (a mais urgente primeiro).
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

// PriorityOf: create=critical, update=high, delete=normal, resto=low.
func PriorityOf(op Operation) Priority {
	switch op {
	case OpCreate:
		return PriorityCritical
	case OpUpdate:
		return PriorityHigh
	case OpDelete:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// Queue é o nome da fila da prioridade (ex: "sync_critical").
func (p Priority) Queue() string { return "sync_" + string(p) }

// QueueNames devolve todas as filas em ordem de prioridade.
func QueueNames() []string {
	out := make([]string, 0, len(Priorities))
	for _, p := range Priorities {
		out = append(out, p.Queue())
	}
	return out
}
