// Package script replays heap operations described in YAML against a heap,
// so allocator behavior can be exercised without compiled native code.
//
//	capacity: 3
//	steps:
//	  - {op: alloc, size: 4, expect: 0}
//	  - {op: write, handle: 0, value: 42}
//	  - {op: read, handle: 0, expect: 42}
//	  - {op: alloc, size: 4, error: HeapExhausted}
package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zboralski/sloth/internal/heap"
)

// Step operations.
const (
	OpAlloc = "alloc"
	OpRead  = "read"
	OpWrite = "write"
)

// ErrEmpty is returned when a script has no steps.
var ErrEmpty = errors.New("script has no steps")

// Script is a parsed heap script.
type Script struct {
	// Capacity of the heap to replay against. 0 means the configured default.
	Capacity int    `yaml:"capacity,omitempty"`
	Steps    []Step `yaml:"steps"`
}

// Step is one heap operation with optional expectations.
type Step struct {
	Op     string `yaml:"op"`
	Size   int    `yaml:"size,omitempty"`
	Handle int    `yaml:"handle,omitempty"`
	Value  int64  `yaml:"value,omitempty"`

	// Expect is the handle for alloc and the value for read.
	Expect *int64 `yaml:"expect,omitempty"`
	// Error is the expected error kind, e.g. "InvalidHandle".
	Error string `yaml:"error,omitempty"`
}

func (s Step) String() string {
	switch s.Op {
	case OpAlloc:
		return fmt.Sprintf("alloc(%d)", s.Size)
	case OpRead:
		return fmt.Sprintf("read(%d)", s.Handle)
	case OpWrite:
		return fmt.Sprintf("write(%d, %d)", s.Handle, s.Value)
	}
	return s.Op
}

// Parse decodes and validates a script.
func Parse(data []byte) (*Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Script
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("decode script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and parses the script at path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks ops, error kinds and capacity.
func (s *Script) Validate() error {
	if len(s.Steps) == 0 {
		return ErrEmpty
	}
	if s.Capacity < 0 || s.Capacity > heap.MaxCapacity {
		return fmt.Errorf("capacity %d: not in 0..%d", s.Capacity, heap.MaxCapacity)
	}
	for i, st := range s.Steps {
		switch st.Op {
		case OpAlloc, OpRead, OpWrite:
		default:
			return fmt.Errorf("step %d: unknown op %q", i, st.Op)
		}
		if st.Error != "" && !heap.IsKind(st.Error) {
			return fmt.Errorf("step %d: unknown error kind %q", i, st.Error)
		}
		if st.Error != "" && st.Expect != nil {
			return fmt.Errorf("step %d: expect and error are exclusive", i)
		}
	}
	return nil
}

// HeapCapacity returns the script capacity, or def when the script leaves it unset.
func (s *Script) HeapCapacity(def int) int {
	if s.Capacity > 0 {
		return s.Capacity
	}
	return def
}

// Result is the outcome of one step.
type Result struct {
	Index  int
	Step   Step
	Handle heap.Handle
	Value  int64
	Err    error
}

// Failure is a step whose outcome did not match its expectation.
type Failure struct {
	Index   int
	Step    Step
	Message string
}

func (f Failure) String() string {
	return fmt.Sprintf("step %d %s: %s", f.Index, f.Step, f.Message)
}

// Report collects the results of a replay.
type Report struct {
	Results  []Result
	Failures []Failure
}

// OK reports whether every expectation held.
func (r *Report) OK() bool {
	return len(r.Failures) == 0
}

// Run executes every step of s against h. Heap errors are results, not
// failures, unless the step did not expect them.
func Run(h *heap.Heap, s *Script) (*Report, error) {
	if h == nil {
		return nil, errors.New("nil heap")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	rep := &Report{Results: make([]Result, 0, len(s.Steps))}
	for i, st := range s.Steps {
		res := Result{Index: i, Step: st, Handle: heap.Handle(st.Handle)}

		switch st.Op {
		case OpAlloc:
			res.Handle, res.Err = h.Allocate(st.Size)
			res.Value = int64(res.Handle)
		case OpRead:
			res.Value, res.Err = h.Read(res.Handle)
		case OpWrite:
			res.Err = h.Write(res.Handle, st.Value)
			res.Value = st.Value
		}

		rep.Results = append(rep.Results, res)
		if msg := check(st, res); msg != "" {
			rep.Failures = append(rep.Failures, Failure{Index: i, Step: st, Message: msg})
		}
	}
	return rep, nil
}

func check(st Step, res Result) string {
	got := heap.KindOf(res.Err)
	if st.Error != "" {
		if got != st.Error {
			return fmt.Sprintf("want error %s, got %s", st.Error, orOK(got))
		}
		return ""
	}
	if res.Err != nil {
		return fmt.Sprintf("unexpected error: %v", res.Err)
	}
	if st.Expect != nil && st.Op != OpWrite && res.Value != *st.Expect {
		return fmt.Sprintf("want %d, got %d", *st.Expect, res.Value)
	}
	return ""
}

func orOK(kind string) string {
	if kind == "" {
		return "ok"
	}
	return kind
}
