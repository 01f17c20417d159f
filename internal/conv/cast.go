package conv

import (
	"fmt"
	"math"
)

// IntToUint32 converts int to uint32, failing on negative or oversized input.
func IntToUint32(v int) (uint32, error) {
	if v < 0 || uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("integer overflow: %d does not fit uint32", v)
	}
	return uint32(v), nil
}

// Uint64ToInt converts uint64 to int, failing when v exceeds math.MaxInt.
func Uint64ToInt(v uint64) (int, error) {
	if v > uint64(math.MaxInt) {
		return 0, fmt.Errorf("integer overflow: %d does not fit int", v)
	}
	return int(v), nil
}

// MulInt multiplies two non-negative ints, failing on overflow.
// Used for size computations such as count * dim * elemSize.
func MulInt(a, b int) (int, error) {
	if a < 0 || b < 0 {
		return 0, fmt.Errorf("integer overflow: negative operand %d * %d", a, b)
	}
	if a != 0 && b > math.MaxInt/a {
		return 0, fmt.Errorf("integer overflow: %d * %d", a, b)
	}
	return a * b, nil
}

// CeilDiv returns ceil(a / b) for positive b.
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}
