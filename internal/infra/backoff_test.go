package infra

import (
	"log/slog"
	"testing"
)

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		retryCount int
		minDelay   int64 // milliseconds
		maxDelay   int64 // milliseconds
	}{
		{0, 1000, 1000},     // 1s
		{1, 2000, 2000},     // 2s
		{2, 4000, 4000},     // 4s
		{3, 8000, 8000},     // 8s
		{10, 60000, 60000},  // max 60s
		{100, 60000, 60000}, // still max 60s
	}

	for _, tt := range tests {
		delay := CalculateBackoff(tt.retryCount)
		delayMs := delay.Milliseconds()
		if delayMs < tt.minDelay || delayMs > tt.maxDelay {
			t.Errorf("CalculateBackoff(%d) = %dms, want between %d and %d",
				tt.retryCount, delayMs, tt.minDelay, tt.maxDelay)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for name, want := range tests {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}
