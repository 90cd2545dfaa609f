package host

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorCode_WrapPreservesCode(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapCodedError(ErrorCodeHostUnavailable, cause, "host down")
	if !IsErrorCode(err, ErrorCodeHostUnavailable) {
		t.Fatalf("expected host unavailable code, got %q", ErrorCodeOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to survive errors.Is")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected cause in message, got %v", err)
	}
}

func TestErrorCode_SurvivesOuterWrapping(t *testing.T) {
	inner := NewCodedError(ErrorCodeThreadBusy, "thread t1 busy")
	outer := fmt.Errorf("start turn: %w", inner)
	if !IsErrorCode(outer, ErrorCodeThreadBusy) {
		t.Fatalf("expected thread busy code through %%w, got %q", ErrorCodeOf(outer))
	}
}

func TestErrorCode_PlainErrorHasNoCode(t *testing.T) {
	if got := ErrorCodeOf(errors.New("plain")); got != "" {
		t.Fatalf("expected empty code, got %q", got)
	}
	if ErrorCodeOf(nil) != "" {
		t.Fatal("expected empty code for nil error")
	}
}
