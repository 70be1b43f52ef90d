package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/arch/arm64/arm64asm"

	"github.com/zboralski/sloth/internal/trace"
	"github.com/zboralski/sloth/internal/ui/colorize"
)

type traceCollector struct {
	mu     sync.Mutex
	events []*trace.Event
}

func (tc *traceCollector) Add(e *trace.Event) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.events = append(tc.events, e)
}

func (tc *traceCollector) GetAndClear() []*trace.Event {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	events := tc.events
	tc.events = nil
	return events
}

// outputWriter serializes trace lines, heap diagnostics and program output
// onto one buffered stream so they keep their relative order.
type outputWriter struct {
	ch     chan string
	done   chan struct{}
	writer *bufio.Writer
}

func newOutputWriter(w io.Writer) *outputWriter {
	ow := &outputWriter{
		ch:     make(chan string, 2048),
		done:   make(chan struct{}),
		writer: bufio.NewWriterSize(w, 64*1024),
	}
	go ow.run()
	return ow
}

func (w *outputWriter) run() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case s, ok := <-w.ch:
			if !ok {
				w.writer.Flush()
				close(w.done)
				return
			}
			w.writer.WriteString(s)
		case <-ticker.C:
			w.writer.Flush()
		}
	}
}

// Line queues one line.
func (w *outputWriter) Line(line string) {
	w.ch <- line + "\n"
}

// Write implements io.Writer for heap diagnostics and program output.
func (w *outputWriter) Write(p []byte) (int, error) {
	w.ch <- string(p)
	return len(p), nil
}

func (w *outputWriter) Close() {
	close(w.ch)
	<-w.done
}

func instructionTags(dis string) []string {
	fields := strings.Fields(strings.ToUpper(dis))
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "BL":
		return []string{"#call"}
	case "BLR":
		return []string{"#call", "#br"}
	case "BR":
		return []string{"#br"}
	case "RET":
		return []string{"#ret"}
	case "SVC":
		return []string{"#syscall"}
	case "LDR", "LDUR", "LDP":
		return []string{"#load"}
	case "STR", "STUR", "STP":
		return []string{"#store"}
	}
	return nil
}

func isBlockEnd(dis string) bool {
	fields := strings.Fields(strings.ToUpper(dis))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "RET", "BR", "B", "ERET":
		return true
	}
	if strings.HasPrefix(fields[0], "B.") {
		return true
	}
	for _, p := range []string{"CBZ", "CBNZ", "TBZ", "TBNZ"} {
		if fields[0] == p {
			return true
		}
	}
	return false
}

func formatLine(addr uint64, code []byte, dis string, funcName string, events []*trace.Event) string {
	var b strings.Builder
	b.Grow(256)

	visibleLen := 0

	b.WriteString(colorize.Address(addr))
	b.WriteString("  ")
	visibleLen += 8 + 2

	if len(code) >= 4 {
		hexBytes := fmt.Sprintf("%02X%02X%02X%02X", code[3], code[2], code[1], code[0])
		b.WriteString(colorize.HexBytes(hexBytes))
		b.WriteString("  ")
		visibleLen += 8 + 2
	}

	b.WriteString(colorize.Instruction(dis))
	visibleLen += len(dis)

	const insnCol = 50
	for visibleLen < insnCol {
		b.WriteByte(' ')
		visibleLen++
	}

	tags := instructionTags(dis)
	var details []string
	for _, e := range events {
		tags = append(tags, e.Tags.Strings()...)
		if e.Detail != "" {
			details = append(details, e.Detail)
		}
	}

	if len(tags) > 0 || len(details) > 0 {
		b.WriteString(colorize.Border(";"))
		for _, t := range tags {
			b.WriteByte(' ')
			b.WriteString(colorize.Tag(t))
		}
		for _, d := range details {
			b.WriteByte(' ')
			if strings.Contains(d, "err=") {
				b.WriteString(colorize.Error(d))
			} else {
				b.WriteString(colorize.Detail(d))
			}
		}
		b.WriteString("  ")
	}

	if funcName != "" {
		b.WriteString(colorize.FuncName(funcName))
	}
	for _, e := range events {
		if e.Name != "" && e.Name != funcName {
			b.WriteByte(' ')
			b.WriteString(colorize.FuncName(e.Name))
		}
	}

	return strings.TrimRight(b.String(), " ")
}

func disasm(code []byte) string {
	if len(code) < 4 {
		return "???"
	}
	inst, err := arm64asm.Decode(code)
	if err != nil {
		return fmt.Sprintf(".word 0x%08x", uint32(code[0])|uint32(code[1])<<8|uint32(code[2])<<16|uint32(code[3])<<24)
	}
	return inst.String()
}
