package core

import "fmt"

// DebugAssert panics with the formatted message when cond is false and the
// module is built with the vecsegdebug tag. Release builds treat the
// violation as a no-op and let the caller degrade gracefully.
func DebugAssert(cond bool, format string, args ...any) {
	if Debug && !cond {
		panic(fmt.Sprintf("invariant violated: "+format, args...))
	}
}
