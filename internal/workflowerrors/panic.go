package workflowerrors

import "fmt"

// PanicError is recorded when activity code panics. It carries the stack of the panicking goroutine.
type PanicError struct {
	message    string
	stacktrace string
}

func (pe *PanicError) Error() string {
	return pe.message
}

func (pe *PanicError) Stack() string {
	return pe.stacktrace
}

// NewPanicError captures the stack of the caller. Call it from the deferred recover handler.
func NewPanicError(msg string) *PanicError {
	return &PanicError{
		message:    msg,
		stacktrace: stack(1),
	}
}

// FromPanic converts a recovered value into a PanicError.
func FromPanic(r any) *PanicError {
	return &PanicError{
		message:    fmt.Sprintf("panic: %v", r),
		stacktrace: stack(1),
	}
}
