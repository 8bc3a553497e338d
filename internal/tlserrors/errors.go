// Package tlserrors provides standardized error reporting for tlsregion.
package tlserrors

import (
	"errors"
	"fmt"
	"runtime"
)

// Kind classifies the reason a tlsregion operation failed.
type Kind string

const (
	InvalidArgument  Kind = "INVALID_ARGUMENT"
	AlreadyExists    Kind = "ALREADY_EXISTS"
	NotFound         Kind = "NOT_FOUND"
	OutOfBounds      Kind = "OUT_OF_BOUNDS"
	AllocationFailed Kind = "ALLOCATION_FAILED"
)

// Error is the standard error shape returned by every tlsregion operation.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Context map[string]any
	Caller  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Kind, e.Op, e.Message, e.Caller)
}

// New builds an Error, recording the immediate caller for diagnostics.
func New(kind Kind, op, message string, context map[string]any) *Error {
	caller := "unknown"
	if pc, _, _, ok := runtime.Caller(1); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Context: context,
		Caller:  caller,
	}
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}

	return false
}

// Common constructors used throughout the core.

func ErrInvalidSize(size int) *Error {
	return New(InvalidArgument, "Create", fmt.Sprintf("region size must be > 0, got %d", size),
		map[string]any{"size": size})
}

func ErrAlreadyExists(op string, threadID uint64) *Error {
	return New(AlreadyExists, op, fmt.Sprintf("thread %d already owns a region", threadID),
		map[string]any{"thread_id": threadID})
}

func ErrNotFound(op string, threadID uint64) *Error {
	return New(NotFound, op, fmt.Sprintf("thread %d has no region", threadID),
		map[string]any{"thread_id": threadID})
}

func ErrOutOfBounds(op string, offset, length, size int) *Error {
	return New(OutOfBounds, op, fmt.Sprintf("range [%d,%d) exceeds region size %d", offset, offset+length, size),
		map[string]any{"offset": offset, "length": length, "size": size})
}

func ErrAllocationFailed(op string, cause error) *Error {
	return New(AllocationFailed, op, fmt.Sprintf("page reservation failed: %v", cause),
		map[string]any{"cause": fmt.Sprint(cause)})
}
