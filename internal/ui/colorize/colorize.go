package colorize

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

var disabled atomic.Bool

var (
	addressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(IDALabel))
	tagStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB4C8"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#B4B4B4"))
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#505050"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#569CD6")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(IDANumber))
	handleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(IDARegister))
	hexStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(IDAHexBytes))
)

// getAssemblyLexer returns an appropriate assembly lexer with fallbacks
func getAssemblyLexer() chroma.Lexer {
	candidates := []string{"nasm", "armasm", "gas", "GAS"}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getDisasmStyle returns the disassembly style with fallbacks
func getDisasmStyle() *chroma.Style {
	candidates := []string{"disasm-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// SetEnabled turns colors on or off for the whole process.
// The environment can still disable them.
func SetEnabled(on bool) {
	disabled.Store(!on)
}

// IsDisabled returns true if colors are disabled via SetEnabled or environment
func IsDisabled() bool {
	return disabled.Load() || os.Getenv("SLOTH_NO_COLOR") != "" || os.Getenv("NO_COLOR") != ""
}

func render(s lipgloss.Style, text string) string {
	if IsDisabled() {
		return text
	}
	return s.Render(text)
}

// Instruction colorizes an assembly instruction using Chroma
func Instruction(insn string) string {
	if IsDisabled() {
		return insn
	}

	lexer := getAssemblyLexer()
	if lexer == nil {
		return insn
	}

	iterator, err := lexer.Tokenise(nil, insn)
	if err != nil {
		return insn
	}

	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return insn
	}

	return strings.TrimSuffix(buf.String(), "\n")
}

// Address formats an address in yellow
func Address(addr uint64) string {
	return render(addressStyle, fmt.Sprintf("%08X", addr))
}

// Tag formats a hashtag in light pink
func Tag(tag string) string {
	return render(tagStyle, tag)
}

// FuncName formats a function name in yellow (IDA style labels)
func FuncName(name string) string {
	return render(addressStyle, name)
}

// Detail formats detail text in light gray
func Detail(detail string) string {
	return render(detailStyle, detail)
}

// Border formats border characters in dark gray
func Border(s string) string {
	return render(borderStyle, s)
}

// Header formats header text in bold blue
func Header(s string) string {
	return render(headerStyle, s)
}

// HexBytes formats hex opcode bytes in dark gray
func HexBytes(s string) string {
	return render(hexStyle, s)
}

// Error formats error messages in pink
func Error(s string) string {
	return render(errorStyle, s)
}

// Handle formats a heap reference as heap[h].
func Handle(h int) string {
	return render(handleStyle, fmt.Sprintf("heap[%d]", h))
}
