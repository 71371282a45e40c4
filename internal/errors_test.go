package internal

import (
	"errors"
	"fmt"
	"testing"
)

func TestTransientError_WrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := &TransientError{Op: "league_by_puuid", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("expected the cause to be reachable through the chain")
	}
	if err.Error() != "league_by_puuid: connection refused" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"direct transient", transientf("op", "boom"), true},
		{"wrapped transient", fmt.Errorf("outer: %w", transientf("op", "boom")), true},
		{"not found", ErrNotFound, false},
		{"no ranked data", ErrNoRankedData, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.expected {
				t.Errorf("IsTransient(%v): expected %v, got %v", tt.err, tt.expected, got)
			}
		})
	}
}

func TestErrorClassesAreDistinct(t *testing.T) {
	if errors.Is(ErrNoRankedData, ErrNotFound) {
		t.Error("unranked must not be conflated with not-found")
	}
	if IsTransient(ErrNotFound) || IsTransient(ErrNoRankedData) {
		t.Error("terminal conditions must not look transient")
	}
}
