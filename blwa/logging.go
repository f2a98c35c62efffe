package blwa

import (
	"github.com/advdv/broute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger configured from the environment.
// Uses JSON encoding suitable for CloudWatch.
// BW_LOG_LEVEL controls the level (debug, info, warn, error).
func NewLogger(env Environment) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(env.base().LogLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

type zapLogger struct{ *zap.Logger }

func (l zapLogger) LogUnhandledError(requestID string, err error) {
	l.Logger.Error("unhandled routing error", zap.String("request_id", requestID), zap.Error(err))
}

func (l zapLogger) LogAbandonedHandler(route *broute.Route, err error) {
	l.Logger.Warn("handler finished after its timeout",
		zap.String("method", route.Method()),
		zap.String("path", route.Path()),
		zap.String("operation_id", route.OperationID()),
		zap.Error(err))
}

func newZapRouterLogger(l *zap.Logger) broute.Logger {
	return zapLogger{l.Named("broute").Named("blwa")}
}
