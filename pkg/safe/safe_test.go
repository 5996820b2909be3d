package safe

import (
	"math"
	"testing"
)

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("%s: expected panic, got none", name)
		}
	}()
	fn()
}

func TestSafeArithmetic(t *testing.T) {
	if got := SafeAdd(2, 3); got != 5 {
		t.Errorf("Expected 5, got %d", got)
	}
	if got := SafeSub(2, 3); got != -1 {
		t.Errorf("Expected -1, got %d", got)
	}
	if got := SafeMul(-4, 3); got != -12 {
		t.Errorf("Expected -12, got %d", got)
	}
	if got := SafeDiv(7, 2); got != 3 {
		t.Errorf("Expected 3, got %d", got)
	}

	expectPanic(t, "add overflow", func() { SafeAdd(math.MaxInt64, 1) })
	expectPanic(t, "sub overflow", func() { SafeSub(math.MinInt64, 1) })
	expectPanic(t, "mul overflow", func() { SafeMul(math.MaxInt64, 2) })
	expectPanic(t, "div by zero", func() { SafeDiv(1, 0) })
}

func TestMulDiv(t *testing.T) {
	t.Run("floors the quotient", func(t *testing.T) {
		if got := MulDiv(10, 10, 3); got != 33 {
			t.Errorf("Expected 33, got %d", got)
		}
	})

	t.Run("intermediate product wider than int64", func(t *testing.T) {
		// 1e15 * 1e12 overflows int64, the quotient does not.
		got := MulDiv(1_000_000_000_000_000, 1_000_000_000_000, 1_000_000_000_000_000)
		if got != 1_000_000_000_000 {
			t.Errorf("Expected 1e12, got %d", got)
		}
	})

	t.Run("quotient overflow panics", func(t *testing.T) {
		expectPanic(t, "quotient", func() { MulDiv(math.MaxInt64, 2, 1) })
	})

	t.Run("zero divisor panics", func(t *testing.T) {
		expectPanic(t, "divisor", func() { MulDiv(1, 1, 0) })
	})

	t.Run("negative operand panics", func(t *testing.T) {
		expectPanic(t, "negative", func() { MulDiv(-1, 1, 1) })
	})
}
