package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrStorage, "write failed").
		WithCause(root).
		WithRetryable(true)

	if GetErrorCode(err) != ErrStorage {
		t.Fatalf("expected code %s, got %s", ErrStorage, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_CodeSurvivesWrapping(t *testing.T) {
	t.Parallel()

	base := NewError(ErrDuplicate, "knowledge exists")
	wrapped := fmt.Errorf("create knowledge: %w", base)

	if !IsErrorCode(wrapped, ErrDuplicate) {
		t.Fatalf("expected duplicate code through fmt wrapping")
	}
	if IsErrorCode(errors.New("plain"), ErrDuplicate) {
		t.Fatalf("plain error must not carry a code")
	}
	if WrapError(nil, ErrStorage, "x") != nil {
		t.Fatalf("wrapping nil must yield nil")
	}
}
