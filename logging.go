package hub

import "time"

// LogEvent describes a hub operation worth recording. Err is set when the
// operation failed and the failure was absorbed instead of returned.
type LogEvent struct {
	Operation string
	Depth     int
	Duration  time.Duration
	Err       error
}

// Logger records hub events. Implementations must not panic.
type Logger interface {
	LogHub(LogEvent)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(LogEvent)

// LogHub implements Logger.
func (f LoggerFunc) LogHub(event LogEvent) {
	if f != nil {
		f(event)
	}
}

type noopLogger struct{}

func (noopLogger) LogHub(LogEvent) {}

func loggerOrNoop(logger Logger) Logger {
	if logger == nil {
		return noopLogger{}
	}
	return logger
}

// logAbsorbed reports an absorbed failure without letting a misbehaving
// logger escape into the caller.
func logAbsorbed(logger Logger, operation string, depth int, err error) {
	if err == nil {
		return
	}
	defer func() { _ = recover() }()
	loggerOrNoop(logger).LogHub(LogEvent{
		Operation: operation,
		Depth:     depth,
		Err:       err,
	})
}
