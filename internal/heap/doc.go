// Package heap implements the handle-indexed heap used by sloth programs.
//
// A Heap is a fixed-capacity arena of scalar cells. Callers never see cell
// addresses: Allocate hands out a small integer Handle and every later Read
// or Write goes through that handle. Handles are issued densely from 0 and
// are never recycled; there is no free operation.
//
// Every successful operation emits one diagnostic line of the form
//
//	MEMALLOC: heap[0] = 4
//	ASSREF: heap[0] = 42
//	DREF: heap[0] = 42
//
// to the heap's output writer (stdout by default). For MEMALLOC the value is
// the requested size. Rejected operations return an *OpError wrapping one of
// ErrInvalidSize, ErrHeapExhausted or ErrInvalidHandle and leave the heap
// untouched.
//
// Allocate is serialized internally. Read and Write are lock-free and safe to
// call concurrently with each other and with Allocate.
package heap
