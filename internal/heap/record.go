package heap

import (
	"fmt"
	"io"
)

// Op names a heap operation. The string form is the diagnostic prefix.
type Op string

const (
	OpAlloc Op = "MEMALLOC"
	OpRead  Op = "DREF"
	OpWrite Op = "ASSREF"

	// OpStat labels Stat errors. It never appears in a Record.
	OpStat Op = "STAT"
)

// Record is one diagnostic emitted by a successful operation.
// For OpAlloc, Value holds the requested size.
type Record struct {
	Op     Op
	Handle Handle
	Value  int64
}

// String formats the record as "<OP>: heap[<handle>] = <value>".
func (r Record) String() string {
	return fmt.Sprintf("%s: heap[%d] = %d", r.Op, r.Handle, r.Value)
}

// Observer receives every record the heap emits.
type Observer func(Record)

func writeRecord(w io.Writer, r Record) {
	if w == nil {
		return
	}
	// diagnostics are a side channel; a failed write never fails the operation
	_, _ = fmt.Fprintln(w, r.String())
}
