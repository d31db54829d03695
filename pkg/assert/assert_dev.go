//go:build !release

package assert

import "fmt"

// That panics with the formatted message when cond is false. Invariant checks compile to a no-op
// in release builds, so they must never guard behavior callers depend on.
func That(cond bool, format string, args ...any) { //nolint:goprintffuncname // it's ok
	if !cond {
		panic(fmt.Sprintf("invariant violated: "+format, args...))
	}
}
