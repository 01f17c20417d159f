//go:build vecsegdebug

package core

// Debug reports whether invariant assertions are enabled.
const Debug = true
