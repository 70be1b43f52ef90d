// Package libc provides the libc-level shims sloth programs call:
// process lifetime (exit, abort, atexit), sleeping (wait, nanosleep),
// random numbers (rand, randGen) and conversions (parse_int, as_int).
// Import this package to register them with the default registry.
package libc

const category = "libc"

// AbortCode is the exit status recorded by abort, matching a SIGABRT death.
const AbortCode = 134

// Names lists the shims this package registers.
var Names = []string{
	"exit", "_exit", "_Exit", "abort", "atexit",
	"wait", "nanosleep", "usleep", "sleep",
	"rand", "randGen",
	"parse_int", "as_int",
}
