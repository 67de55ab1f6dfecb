// Package logging concentra a criação de loggers (logr com backend zap) e os
// níveis de verbosidade usados pelo projeto.
package logging

import (
	"context"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Níveis de verbosidade para logger.V(n).
const (
	DEFAULT = 0
	VERBOSE = 3
	DEBUG   = 4
	TRACE   = 5
)

// NewLogger cria um logger zap com a verbosidade dada (0 = só Info/Error).
// dev=true usa saída legível em console; senão JSON.
func NewLogger(verbosity int, dev bool) (logr.Logger, error) {
	cfg := uberzap.NewProductionConfig()
	if dev {
		cfg = uberzap.NewDevelopmentConfig()
	}
	// logr.V(n) mapeia para o nível zap -n
	cfg.Level = uberzap.NewAtomicLevelAt(zapcore.Level(-1 * verbosity))

	zl, err := cfg.Build(uberzap.AddCaller())
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zl), nil
}

// NewTestLogger cria um logger zap em modo dev que registra até TRACE.
func NewTestLogger() logr.Logger {
	logger, err := NewLogger(TRACE, true)
	if err != nil {
		return logr.Discard()
	}
	return logger
}

// IntoContext anexa logger ao ctx para as camadas de baixo (Runner -> Worker).
func IntoContext(ctx context.Context, logger logr.Logger) context.Context {
	return logr.NewContext(ctx, logger)
}

// FromContext retorna o logger anexado por IntoContext, se houver.
func FromContext(ctx context.Context) (logr.Logger, bool) {
	logger, err := logr.FromContext(ctx)
	return logger, err == nil
}

// Fatal chama logger.Error seguido de os.Exit(1).
//
// Só deve ser usado nos binários em cmd/.
func Fatal(logger logr.Logger, err error, msg string, keysAndValues ...any) {
	logger.Error(err, msg, keysAndValues...)
	os.Exit(1)
}
