package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	base := New(CodePlayerNotMaster, "start requires the master")
	wrapped := fmt.Errorf("dispatch start_game: %w", base)

	if !errors.Is(wrapped, New(CodePlayerNotMaster, "other message")) {
		t.Fatal("expected code match through wrapping")
	}
	if errors.Is(wrapped, New(CodeGameNotFound, "nope")) {
		t.Fatal("expected mismatch for different code")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(New(CodeGamePaused, "paused")); got != CodeGamePaused {
		t.Fatalf("expected CodeGamePaused, got %s", got)
	}
	if got := GetCode(errors.New("plain")); got != CodeUnknown {
		t.Fatalf("expected CodeUnknown for plain error, got %s", got)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("rand failed")
	err := Wrap(CodeCodeSpaceExhausted, "generate code", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected unwrap to reach cause")
	}
}

func TestTransportCodeMapping(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{CodeGameNotFound, "NOT_FOUND"},
		{CodePlayerNotFound, "NOT_FOUND"},
		{CodePlayerNotMaster, "FORBIDDEN"},
		{CodeVoteInvalidToken, "INVALID_INPUT"},
		{CodeGameEmptyTaskList, "INVALID_INPUT"},
		{CodeRevoteNotReady, "FAILED_PRECONDITION"},
		{CodeUnknown, "INTERNAL"},
	}
	for _, tt := range tests {
		if got := tt.code.TransportCode(); got != tt.want {
			t.Fatalf("%s: expected %s, got %s", tt.code, tt.want, got)
		}
	}
}
