// Package colorize provides syntax highlighting for disassembly and trace output.
package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// IDA-style theme colors
const (
	IDAAddress  = "#808080" // Gray for addresses
	IDAMnemonic = "#FFFFFF" // White for mnemonics
	IDARegister = "#87CEEB" // Light blue for registers and handles
	IDANumber   = "#FF80C0" // Light pink for numbers
	IDALabel    = "#FFC800" // Yellow for labels/function names
	IDAComment  = "#FF8000" // Orange for comments
	IDAString   = "#00FF00" // Green for strings
	IDAHexBytes = "#646464" // Dark gray for hex bytes
)

// DisasmDark is the disassembly style, registered as "disasm-dark".
var DisasmDark = styles.Register(chroma.MustNewStyle("disasm-dark", chroma.StyleEntries{
	chroma.Text:           IDAMnemonic,
	chroma.Background:     "bg:#000000",
	chroma.Comment:        IDAComment,
	chroma.CommentPreproc: IDAComment,

	chroma.Keyword:       IDAMnemonic,
	chroma.KeywordPseudo: IDAMnemonic,
	chroma.Name:          IDARegister,
	chroma.NameBuiltin:   IDARegister, // sp, lr
	chroma.NameVariable:  IDARegister,

	chroma.LiteralNumber:        IDANumber,
	chroma.LiteralNumberHex:     IDANumber,
	chroma.LiteralNumberBin:     IDANumber,
	chroma.LiteralNumberOct:     IDANumber,
	chroma.LiteralNumberInteger: IDANumber,
	chroma.LiteralNumberFloat:   IDANumber,

	chroma.NameLabel:    IDALabel,
	chroma.NameFunction: IDAMnemonic,

	chroma.Operator:    IDAMnemonic,
	chroma.Punctuation: IDAMnemonic,

	chroma.String: IDAString,
}))
