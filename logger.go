package hypertable

import "go.uber.org/zap"

// LogFunc is the printf-style logging hook threaded through every
// component of this module, mirroring the teacher's own LogFunc type
// (package.go). NewZapLogFunc adapts it onto zap, the structured logger
// used across the example corpus (erigon, matrixone) in place of the
// teacher's bare log.Logger, so this module's ambient logging stack
// follows the pack's convention rather than the teacher's literal one.
type LogFunc func(format string, v ...interface{})

// NewZapLogFunc wraps a *zap.SugaredLogger as a LogFunc.
func NewZapLogFunc(l *zap.SugaredLogger) LogFunc {
	return func(format string, v ...interface{}) {
		l.Infof(format, v...)
	}
}

// NewProductionLogFunc builds a default zap production logger and
// returns it both as a LogFunc and as the underlying *zap.Logger (so
// callers can Sync() it on shutdown).
func NewProductionLogFunc() (LogFunc, *zap.Logger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, nil, err
	}
	return NewZapLogFunc(l.Sugar()), l, nil
}
