package observability

import (
	"fmt"
	"runtime/debug"
)

// PanicError carries a recovered panic value and the stack at the point of recovery
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// NewPanicError wraps a value returned by recover(). It must be called from the
// deferred function so the captured stack includes the panicking frame.
func NewPanicError(value interface{}) *PanicError {
	return &PanicError{Value: value, Stack: debug.Stack()}
}

// LogPanic logs a recovered panic at error level. where names the goroutine,
// handler or task that panicked.
//
//	defer func() {
//	    if r := recover(); r != nil {
//	        observability.LogPanic(logger, "seed watcher", observability.NewPanicError(r))
//	    }
//	}()
func LogPanic(logger *Logger, where string, p *PanicError) {
	logger.WithFields(map[string]interface{}{
		"panic":   fmt.Sprint(p.Value),
		"stack":   string(p.Stack),
		"context": where,
	}).Error("PANIC recovered")
}
