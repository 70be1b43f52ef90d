// Package trace provides types for trace event collection and analysis.
package trace

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zboralski/sloth/internal/heap"
)

// Tag represents a trace event category.
// Tags are stored without # prefix; the prefix is added on rendering.
type Tag string

// Standard tags for trace events.
const (
	Heap     Tag = "heap"
	Alloc    Tag = "alloc"
	Deref    Tag = "deref"
	Assign   Tag = "assign"
	Stdio    Tag = "stdio"
	Libc     Tag = "libc"
	Fallback Tag = "fallback"
	Error    Tag = "error"
)

// Tags is a collection of tags with helper methods.
type Tags []Tag

// Has returns true if the tag collection contains the given tag.
func (t Tags) Has(tag Tag) bool {
	for _, x := range t {
		if x == tag {
			return true
		}
	}
	return false
}

// Add adds a tag if not already present.
func (t *Tags) Add(tag Tag) {
	if !t.Has(tag) {
		*t = append(*t, tag)
	}
}

// Strings returns tags as strings with # prefix for display.
func (t Tags) Strings() []string {
	out := make([]string, len(t))
	for i, tag := range t {
		out[i] = "#" + string(tag)
	}
	return out
}

// Primary returns the first tag or empty string if none.
func (t Tags) Primary() Tag {
	if len(t) > 0 {
		return t[0]
	}
	return ""
}

// Annotations holds key-value metadata for trace events.
type Annotations map[string]string

// Event represents a trace event with rich metadata.
type Event struct {
	Session     uuid.UUID   // Run the event belongs to
	PC          uint64      // Return address of the shim call, 0 outside emulation
	Tags        Tags        // First tag is primary
	Name        string      // Function or operation name (e.g., "memalloc", "DREF")
	Detail      string      // Additional detail (e.g., "size=4")
	Annotations Annotations // Key-value metadata
	Timestamp   time.Time
}

// NewEvent creates a new trace event with the given parameters.
func NewEvent(pc uint64, category, name, detail string) *Event {
	return &Event{
		PC:          pc,
		Tags:        Tags{Tag(category)},
		Name:        name,
		Detail:      detail,
		Annotations: make(Annotations),
		Timestamp:   time.Now(),
	}
}

// FromRecord converts a heap diagnostic into an event.
func FromRecord(r heap.Record) *Event {
	e := NewEvent(0, string(Heap), string(r.Op), r.String())
	e.Annotate("handle", strconv.Itoa(int(r.Handle)))
	if r.Op == heap.OpAlloc {
		e.Annotate("size", strconv.FormatInt(r.Value, 10))
	} else {
		e.Annotate("value", strconv.FormatInt(r.Value, 10))
	}
	return e
}

// AddTag adds a tag to the event.
func (e *Event) AddTag(tag Tag) {
	e.Tags.Add(tag)
}

// Annotate sets an annotation on the event.
func (e *Event) Annotate(k, v string) {
	if e.Annotations == nil {
		e.Annotations = make(Annotations)
	}
	e.Annotations[k] = v
}

// PrimaryTag returns the primary (first) tag with # prefix.
func (e *Event) PrimaryTag() string {
	if len(e.Tags) > 0 {
		return "#" + string(e.Tags[0])
	}
	return ""
}

// Session groups the events of one run under a random identifier.
type Session struct {
	ID uuid.UUID
}

// NewSession creates a session with a fresh UUID.
func NewSession() *Session {
	return &Session{ID: uuid.New()}
}

// Event creates an event stamped with the session id.
func (s *Session) Event(pc uint64, category, name, detail string) *Event {
	e := NewEvent(pc, category, name, detail)
	e.Session = s.ID
	return e
}

// Record converts a heap record into an event stamped with the session id.
func (s *Session) Record(r heap.Record) *Event {
	e := FromRecord(r)
	e.Session = s.ID
	return e
}

// Enricher enriches trace events based on category and name.
type Enricher func(e *Event)

// DefaultEnricher adds additional tags based on category and name.
func DefaultEnricher(e *Event) {
	if len(e.Tags) == 0 {
		return
	}

	switch e.Tags[0] {
	case Heap:
		switch heap.Op(e.Name) {
		case heap.OpAlloc:
			e.AddTag(Alloc)
		case heap.OpRead:
			e.AddTag(Deref)
		case heap.OpWrite:
			e.AddTag(Assign)
		}

	case "stdmem":
		e.AddTag(Heap)
		switch e.Name {
		case "memalloc":
			e.AddTag(Alloc)
		case "drefi":
			e.AddTag(Deref)
		case "assignrefi":
			e.AddTag(Assign)
		}

	case "stdio":
		e.AddTag(Stdio)

	case "libc":
		e.AddTag(Libc)
	}

	if hasErrDetail(e.Detail) {
		e.AddTag(Error)
	}
}

func hasErrDetail(detail string) bool {
	return strings.HasPrefix(detail, "err=") || strings.Contains(detail, " err=")
}
