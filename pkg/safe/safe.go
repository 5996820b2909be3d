// Package safe provides overflow-checked int64 arithmetic.
// Every helper panics on overflow: an overflow in accounting code is an
// invariant violation, not a recoverable input error.
package safe

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

// SafeAdd returns a + b. Panics on overflow.
func SafeAdd(a, b int64) int64 {
	c := a + b
	if (c > a) != (b > 0) {
		panic(fmt.Sprintf("INT64_OVERFLOW: %d + %d", a, b))
	}
	return c
}

// SafeSub returns a - b. Panics on overflow.
func SafeSub(a, b int64) int64 {
	c := a - b
	if (c < a) != (b > 0) {
		panic(fmt.Sprintf("INT64_OVERFLOW: %d - %d", a, b))
	}
	return c
}

// SafeMul returns a * b. Panics on overflow.
func SafeMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	c := a * b
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) || c/b != a {
		panic(fmt.Sprintf("INT64_OVERFLOW: %d * %d", a, b))
	}
	return c
}

// SafeDiv returns a / b. Panics on division by zero.
func SafeDiv(a, b int64) int64 {
	if b == 0 {
		panic(fmt.Sprintf("DIVISION_BY_ZERO: %d / 0", a))
	}
	if a == math.MinInt64 && b == -1 {
		panic(fmt.Sprintf("INT64_OVERFLOW: %d / %d", a, b))
	}
	return a / b
}

// MulDiv returns floor(a * b / d) using a 256-bit intermediate product, so
// a*b may exceed int64 as long as the quotient fits.
// Operands must be non-negative and d must be positive.
func MulDiv(a, b, d int64) int64 {
	if a < 0 || b < 0 {
		panic(fmt.Sprintf("MULDIV_NEGATIVE_OPERAND: %d * %d", a, b))
	}
	if d <= 0 {
		panic(fmt.Sprintf("DIVISION_BY_ZERO: %d * %d / %d", a, b, d))
	}

	x := uint256.NewInt(uint64(a))
	y := uint256.NewInt(uint64(b))
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, uint256.NewInt(uint64(d)))
	if overflow || !z.IsUint64() || z.Uint64() > math.MaxInt64 {
		panic(fmt.Sprintf("INT64_OVERFLOW: %d * %d / %d", a, b, d))
	}
	return int64(z.Uint64())
}
