// Package zaplog adapts hub.Logger and rules.Logger to a zap logger.
package zaplog

import (
	hub "github.com/goliatone/go-hub"
	"github.com/goliatone/go-hub/rules"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes hub and rule evaluation events to zap. Successful operations
// are logged at SuccessLevel, failures at Warn.
type Logger struct {
	log          *zap.Logger
	SuccessLevel zapcore.Level
}

var (
	_ hub.Logger   = (*Logger)(nil)
	_ rules.Logger = (*Logger)(nil)
)

// New wraps log. A nil log is replaced by zap.NewNop.
func New(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{log: log, SuccessLevel: zapcore.DebugLevel}
}

// LogHub implements hub.Logger.
func (l *Logger) LogHub(event hub.LogEvent) {
	fields := []zap.Field{
		zap.String("operation", event.Operation),
		zap.Duration("duration", event.Duration),
	}
	if event.Depth > 0 {
		fields = append(fields, zap.Int("depth", event.Depth))
	}
	if event.Err != nil {
		l.log.Warn("hub operation failed", append(fields, zap.Error(event.Err))...)
		return
	}
	if ce := l.log.Check(l.SuccessLevel, "hub operation"); ce != nil {
		ce.Write(fields...)
	}
}

// LogEvaluation implements rules.Logger.
func (l *Logger) LogEvaluation(event rules.LogEvent) {
	fields := []zap.Field{
		zap.String("engine", event.Engine),
		zap.String("rule", event.Rule),
		zap.String("expr", event.Expr),
		zap.Bool("matched", event.Matched),
		zap.Duration("duration", event.Duration),
	}
	if event.Err != nil {
		l.log.Warn("rule evaluation failed", append(fields, zap.Error(event.Err))...)
		return
	}
	if ce := l.log.Check(l.SuccessLevel, "rule evaluated"); ce != nil {
		ce.Write(fields...)
	}
}

// Named returns a logger writing under a child zap logger.
func (l *Logger) Named(name string) *Logger {
	return &Logger{log: l.log.Named(name), SuccessLevel: l.SuccessLevel}
}
