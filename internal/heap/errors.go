package heap

import (
	"errors"
	"fmt"
)

// Sentinel errors for the heap error taxonomy.
var (
	// ErrInvalidSize is returned when an allocation asks for size <= 0.
	ErrInvalidSize = errors.New("invalid size")

	// ErrHeapExhausted is returned when every slot has been issued.
	ErrHeapExhausted = errors.New("heap exhausted")

	// ErrInvalidHandle is returned for handles outside [0, Len()).
	ErrInvalidHandle = errors.New("invalid handle")
)

// Error kind names, as used by scripts and shim trace details.
const (
	KindInvalidSize   = "InvalidSize"
	KindHeapExhausted = "HeapExhausted"
	KindInvalidHandle = "InvalidHandle"
)

// OpError records the operation and arguments that were rejected.
type OpError struct {
	Op     Op
	Handle Handle // requested handle; -1 for allocations
	Size   int    // requested size; 0 for read/write
	Err    error
}

func (e *OpError) Error() string {
	switch e.Op {
	case OpAlloc:
		return fmt.Sprintf("%s size=%d: %v", e.Op, e.Size, e.Err)
	default:
		return fmt.Sprintf("%s heap[%d]: %v", e.Op, e.Handle, e.Err)
	}
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// KindOf returns the taxonomy name for err, or "" if err is not a heap error.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSize):
		return KindInvalidSize
	case errors.Is(err, ErrHeapExhausted):
		return KindHeapExhausted
	case errors.Is(err, ErrInvalidHandle):
		return KindInvalidHandle
	}
	return ""
}

// IsKind reports whether name is a known error kind.
func IsKind(name string) bool {
	switch name {
	case KindInvalidSize, KindHeapExhausted, KindInvalidHandle:
		return true
	}
	return false
}
