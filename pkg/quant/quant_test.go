package quant

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseUnits(t *testing.T) {
	t.Run("whole units", func(t *testing.T) {
		got, err := ParseUnits(decimal.NewFromInt(500), 6)
		if err != nil {
			t.Fatalf("ParseUnits failed: %v", err)
		}
		if got != 500_000000 {
			t.Errorf("Expected 500000000, got %d", got)
		}
	})

	t.Run("fractional units", func(t *testing.T) {
		got, err := ParseUnits(decimal.RequireFromString("0.25"), 6)
		if err != nil {
			t.Fatalf("ParseUnits failed: %v", err)
		}
		if got != 250000 {
			t.Errorf("Expected 250000, got %d", got)
		}
	})

	t.Run("too many decimals", func(t *testing.T) {
		if _, err := ParseUnits(decimal.RequireFromString("0.0000001"), 6); err == nil {
			t.Error("Expected error for sub-unit precision")
		}
	})

	t.Run("negative", func(t *testing.T) {
		if _, err := ParseUnits(decimal.NewFromInt(-1), 6); err == nil {
			t.Error("Expected error for negative amount")
		}
	})
}

func TestFormatting(t *testing.T) {
	if got := FormatUnits(1_500_000, 6); got != "1.500000" {
		t.Errorf("Expected 1.500000, got %s", got)
	}
	if got := FormatPrice(PriceScale + PriceScale/2); got != "1.500000" {
		t.Errorf("Expected 1.500000, got %s", got)
	}
	if got := FormatBps(2000); got != "20.00%" {
		t.Errorf("Expected 20.00%%, got %s", got)
	}
}

func TestBpsOf(t *testing.T) {
	if got := BpsOf(1000, 2000); got != 200 {
		t.Errorf("Expected 200, got %d", got)
	}
	if got := BpsOf(999, 1); got != 0 {
		t.Errorf("Expected floor to 0, got %d", got)
	}
}

func TestNextSeq(t *testing.T) {
	var counter uint64
	if NextSeq(&counter) != 1 || NextSeq(&counter) != 2 {
		t.Error("Expected sequential ids starting at 1")
	}
}
