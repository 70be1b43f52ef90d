// Package all imports all shim packages to ensure they register via init().
// Import this package in session setup to enable all shims.
//
// Example:
//
//	import _ "github.com/zboralski/sloth/internal/stubs/all"
package all

import (
	// Import all shim packages for side effects (init registration)
	_ "github.com/zboralski/sloth/internal/stubs/libc"
	_ "github.com/zboralski/sloth/internal/stubs/stdio"
	_ "github.com/zboralski/sloth/internal/stubs/stdmem"
)
