package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTarget é erro de configuração: não existe cliente/transformação para o destino.
	ErrUnknownTarget = errors.New("unknown target")
	// ErrEntityNotFound: o contato referenciado não existe mais no momento da execução.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrQueueEmpty: Dequeue não encontrou jobs.
	ErrQueueEmpty = errors.New("queue empty")
)

// PermanentError marca um erro que não deve ser retentado pela fila.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent embrulha err como não retentável. nil continua nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

func UnknownTargetError(target string) error {
	return Permanent(fmt.Errorf("%w: %s", ErrUnknownTarget, target))
}
