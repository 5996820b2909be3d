package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestNetworkError(t *testing.T) {
	baseErr := errors.New("connection refused")

	t.Run("retriable error", func(t *testing.T) {
		err := NewNetworkError("connect", baseErr)

		if !err.IsRetriable() {
			t.Error("Expected error to be retriable")
		}

		if err.Error() != "connect: connection refused" {
			t.Errorf("Error message = %q, want %q", err.Error(), "connect: connection refused")
		}

		if !errors.Is(err, baseErr) {
			t.Error("Expected error to wrap baseErr")
		}
	})

	t.Run("IsRetriable helper", func(t *testing.T) {
		retriable := NewNetworkError("dial", baseErr)
		fatal := NewFatalNetworkError("auth", baseErr)
		plain := errors.New("plain error")

		if !IsRetriable(retriable) {
			t.Error("IsRetriable should return true for retriable error")
		}
		if IsRetriable(fatal) {
			t.Error("IsRetriable should return false for fatal error")
		}
		if IsRetriable(plain) {
			t.Error("IsRetriable should return false for plain error")
		}
	})
}

func TestConfigError(t *testing.T) {
	baseErr := errors.New("missing value")
	err := &ConfigError{Field: "fund.manager", Err: baseErr}

	if err.IsRetriable() {
		t.Error("ConfigError should never be retriable")
	}

	expected := "config error [fund.manager]: missing value"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
}

func TestCode(t *testing.T) {
	t.Run("nil is OK", func(t *testing.T) {
		if Code(nil) != "OK" {
			t.Errorf("Expected OK, got %s", Code(nil))
		}
	})

	t.Run("wrapped fund error keeps its code", func(t *testing.T) {
		err := fmt.Errorf("deposit: %w", ErrCapReached)
		if Code(err) != "CAP_REACHED" {
			t.Errorf("Expected CAP_REACHED, got %s", Code(err))
		}
		if !errors.Is(err, ErrCapReached) {
			t.Error("Expected errors.Is to match the sentinel")
		}
	})

	t.Run("foreign error is INTERNAL", func(t *testing.T) {
		if Code(errors.New("boom")) != "INTERNAL" {
			t.Errorf("Expected INTERNAL, got %s", Code(errors.New("boom")))
		}
	})
}
