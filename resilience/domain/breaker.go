package domain

import (
	"errors"
	"fmt"
	"time"
)

// CircuitState é o estado do circuit breaker de uma chave.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// ParseCircuitState converte o valor gravado no Store.
// Valores ausentes ou desconhecidos viram Closed.
func ParseCircuitState(v string) CircuitState {
	switch v {
	case "open":
		return CircuitOpen
	case "half_open":
		return CircuitHalfOpen
	default:
		return CircuitClosed
	}
}

// ErrCircuitOpen é o sinal distinto de "circuito aberto". Nunca é uma falha do downstream.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// OpenError é retornado por CircuitBreaker.Call quando a unidade de trabalho
// não foi executada porque o circuito está aberto.
type OpenError struct {
	Key      Key
	OpenedAt time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker is open for %s", e.Key)
}

func (e *OpenError) Is(target error) bool { return target == ErrCircuitOpen }
