package heap

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	glog "github.com/zboralski/sloth/internal/log"
)

// DefaultCapacity is the number of cells a sloth program gets by default.
const DefaultCapacity = 100000

// MaxCapacity bounds the cells a heap preallocates.
const MaxCapacity = 1 << 24

// Handle identifies one cell. Valid handles are in [0, Len()).
type Handle int

// Cell is a copy of one cell's state.
type Cell struct {
	Handle Handle
	Size   int // bytes requested at allocation; informational only
	Value  int64
}

type slot struct {
	size  int
	value atomic.Int64
}

// Heap is a fixed-capacity arena of scalar cells addressed by handle.
type Heap struct {
	allocMu sync.Mutex
	slots   []slot
	issued  atomic.Int64

	out      io.Writer
	observer Observer
	log      *glog.Logger
}

// Option configures a Heap.
type Option func(*Heap)

// WithOutput sets the writer that receives diagnostic lines.
// Pass io.Discard to silence them.
func WithOutput(w io.Writer) Option {
	return func(h *Heap) {
		h.out = w
	}
}

// WithObserver registers a callback for every diagnostic record.
func WithObserver(fn Observer) Option {
	return func(h *Heap) {
		h.observer = fn
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l *glog.Logger) Option {
	return func(h *Heap) {
		h.log = l
	}
}

func clampCapacity(n int) int {
	return min(max(n, 0), MaxCapacity)
}

// New creates a heap with room for capacity cells.
// A non-positive capacity yields a heap on which every Allocate fails;
// capacities above MaxCapacity are clamped to it.
func New(capacity int, opts ...Option) *Heap {
	h := &Heap{
		slots: make([]slot, clampCapacity(capacity)),
		out:   os.Stdout,
		log:   glog.Get(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Cap returns the fixed capacity.
func (h *Heap) Cap() int {
	return len(h.slots)
}

// Len returns the number of issued handles.
func (h *Heap) Len() int {
	return int(h.issued.Load())
}

// Allocate reserves the next cell and returns its handle.
// The cell starts at 0; size is recorded but does not change what it holds.
func (h *Heap) Allocate(size int) (Handle, error) {
	if size <= 0 {
		return -1, h.reject(&OpError{Op: OpAlloc, Handle: -1, Size: size, Err: ErrInvalidSize})
	}

	h.allocMu.Lock()
	n := h.issued.Load()
	if n >= int64(len(h.slots)) {
		h.allocMu.Unlock()
		return -1, h.reject(&OpError{Op: OpAlloc, Handle: -1, Size: size, Err: ErrHeapExhausted})
	}
	s := &h.slots[n]
	s.size = size
	s.value.Store(0)
	// publish only after the slot is initialized
	h.issued.Store(n + 1)
	h.allocMu.Unlock()

	handle := Handle(n)
	h.emit(Record{Op: OpAlloc, Handle: handle, Value: int64(size)})
	return handle, nil
}

// Read returns the value stored at handle.
func (h *Heap) Read(handle Handle) (int64, error) {
	s, err := h.lookup(OpRead, handle)
	if err != nil {
		return 0, err
	}
	v := s.value.Load()
	h.emit(Record{Op: OpRead, Handle: handle, Value: v})
	return v, nil
}

// Write stores value at handle.
func (h *Heap) Write(handle Handle, value int64) error {
	s, err := h.lookup(OpWrite, handle)
	if err != nil {
		return err
	}
	s.value.Store(value)
	h.emit(Record{Op: OpWrite, Handle: handle, Value: value})
	return nil
}

// Stat returns the cell at handle without emitting a diagnostic.
func (h *Heap) Stat(handle Handle) (Cell, error) {
	if !h.valid(handle) {
		return Cell{}, &OpError{Op: OpStat, Handle: handle, Err: ErrInvalidHandle}
	}
	s := &h.slots[handle]
	return Cell{Handle: handle, Size: s.size, Value: s.value.Load()}, nil
}

// Snapshot copies every issued cell in handle order.
func (h *Heap) Snapshot() []Cell {
	n := h.Len()
	cells := make([]Cell, n)
	for i := 0; i < n; i++ {
		s := &h.slots[i]
		cells[i] = Cell{Handle: Handle(i), Size: s.size, Value: s.value.Load()}
	}
	return cells
}

func (h *Heap) valid(handle Handle) bool {
	return handle >= 0 && int64(handle) < h.issued.Load()
}

func (h *Heap) lookup(op Op, handle Handle) (*slot, error) {
	if !h.valid(handle) {
		return nil, h.reject(&OpError{Op: op, Handle: handle, Err: ErrInvalidHandle})
	}
	return &h.slots[handle], nil
}

func (h *Heap) reject(err *OpError) error {
	if h.log != nil {
		h.log.HeapError(string(err.Op), int(err.Handle), err)
	}
	return err
}

func (h *Heap) emit(r Record) {
	writeRecord(h.out, r)
	if h.observer != nil {
		h.observer(r)
	}
	if h.log != nil {
		h.log.HeapOp(string(r.Op), int(r.Handle), r.Value)
	}
}
