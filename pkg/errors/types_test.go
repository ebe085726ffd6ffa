package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeEntryNotFound, "entry abc not found")

	if err == nil {
		t.Fatal("New should return non-nil error")
	}

	if err.Code != ErrCodeEntryNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeEntryNotFound)
	}

	if err.Message != "entry abc not found" {
		t.Errorf("Message = %v, want 'entry abc not found'", err.Message)
	}

	if err.Underlying != nil {
		t.Error("Underlying should be nil for New error")
	}

	if len(err.Stack) == 0 {
		t.Error("Stack should be captured")
	}

	if err.Retryable {
		t.Error("Retryable should default to false")
	}
}

func TestWrap(t *testing.T) {
	underlying := errors.New("original error")
	err := Wrap(underlying, ErrCodeStorageRead, "failed to read snapshot")

	if err == nil {
		t.Fatal("Wrap should return non-nil error")
	}

	if err.Underlying != underlying {
		t.Error("Underlying should be preserved")
	}

	if err.Code != ErrCodeStorageRead {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeStorageRead)
	}

	if !strings.Contains(err.Error(), "original error") {
		t.Error("Error string should include underlying error")
	}
}

func TestWrap_Nil(t *testing.T) {
	err := Wrap(nil, ErrCodeInternal, "test")

	if err != nil {
		t.Error("Wrap of nil should return nil")
	}
}

func TestWithContext(t *testing.T) {
	err := New(ErrCodeProviderUnavailable, "embedding request failed")
	err.WithContext("model", "text-embedding-3-small")
	err.WithContext("status_code", 503)

	if err.Context["model"] != "text-embedding-3-small" {
		t.Error("Context should contain 'model' key")
	}

	if err.Context["status_code"] != 503 {
		t.Error("Context should contain 'status_code' key")
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "model") || !strings.Contains(errStr, "text-embedding-3-small") {
		t.Error("Error string should include context")
	}
}

func TestWithRetryable(t *testing.T) {
	err := New(ErrCodeProviderTimeout, "request timed out")
	err.WithRetryable(true)

	if !err.Retryable {
		t.Error("WithRetryable should set Retryable to true")
	}

	if !err.IsRetryable() {
		t.Error("IsRetryable should return true")
	}
}

func TestError_String(t *testing.T) {
	err := New(ErrCodeConfigInvalid, "invalid config value")
	errStr := err.Error()

	if !strings.Contains(errStr, string(ErrCodeConfigInvalid)) {
		t.Error("Error string should contain error code")
	}

	if !strings.Contains(errStr, "invalid config value") {
		t.Error("Error string should contain message")
	}
}

func TestUnwrap(t *testing.T) {
	underlying := errors.New("underlying")
	err := Wrap(underlying, ErrCodeInternal, "wrapped")

	if err.Unwrap() != underlying {
		t.Error("Unwrap should return underlying error")
	}

	if !errors.Is(err, underlying) {
		t.Error("errors.Is should find underlying through Unwrap")
	}
}

func TestIsCode(t *testing.T) {
	err := New(ErrCodeProviderUnavailable, "provider down")

	if !IsCode(err, ErrCodeProviderUnavailable) {
		t.Error("IsCode should return true for matching code")
	}

	if IsCode(err, ErrCodeProviderTimeout) {
		t.Error("IsCode should return false for non-matching code")
	}

	if IsCode(nil, ErrCodeProviderUnavailable) {
		t.Error("IsCode should return false for nil error")
	}

	stdErr := errors.New("standard error")
	if IsCode(stdErr, ErrCodeInternal) {
		t.Error("IsCode should return false for unstructured errors")
	}
}

func TestIsCode_WrappedChain(t *testing.T) {
	inner := New(ErrCodeStorageWrite, "write failed")
	outer := fmt.Errorf("saving snapshot: %w", inner)

	if !IsCode(outer, ErrCodeStorageWrite) {
		t.Error("IsCode should find code through fmt.Errorf wrapping")
	}

	if GetCode(outer) != ErrCodeStorageWrite {
		t.Errorf("GetCode through wrap = %v, want %v", GetCode(outer), ErrCodeStorageWrite)
	}
}

func TestGetCode(t *testing.T) {
	err := New(ErrCodeProviderTimeout, "timeout")

	if GetCode(err) != ErrCodeProviderTimeout {
		t.Errorf("GetCode = %v, want %v", GetCode(err), ErrCodeProviderTimeout)
	}

	if GetCode(nil) != "" {
		t.Error("GetCode should return empty string for nil")
	}

	stdErr := errors.New("standard")
	if GetCode(stdErr) != ErrCodeInternal {
		t.Error("GetCode should return ErrCodeInternal for unstructured errors")
	}
}

func TestIsRetryable_Function(t *testing.T) {
	retryable := New(ErrCodeProviderRateLimit, "rate limited").WithRetryable(true)
	notRetryable := New(ErrCodeConfigInvalid, "bad config")

	if !IsRetryable(retryable) {
		t.Error("IsRetryable should return true for retryable error")
	}

	if IsRetryable(notRetryable) {
		t.Error("IsRetryable should return false for non-retryable error")
	}

	if IsRetryable(nil) {
		t.Error("IsRetryable should return false for nil")
	}
}

func TestStackTrace(t *testing.T) {
	err := New(ErrCodeInternal, "test error")

	trace := err.StackTrace()

	if trace == "" {
		t.Error("StackTrace should return non-empty string")
	}

	if !strings.Contains(trace, "Stack trace:") {
		t.Error("StackTrace should contain header")
	}

	if len(err.Stack) == 0 {
		t.Error("Stack should have frames")
	}
}

func TestChaining(t *testing.T) {
	err := New(ErrCodeProviderUnavailable, "API failed").
		WithContext("endpoint", "/v1/embeddings").
		WithContext("status_code", 429).
		WithRetryable(true)

	if err.Code != ErrCodeProviderUnavailable {
		t.Error("Chaining should preserve code")
	}

	if len(err.Context) != 2 {
		t.Error("Chaining should add all context")
	}

	if !err.Retryable {
		t.Error("Chaining should set retryable")
	}
}

func TestErrorCodes_Defined(t *testing.T) {
	codes := []ErrorCode{
		ErrCodeConfigLoad,
		ErrCodeConfigParse,
		ErrCodeConfigInvalid,
		ErrCodeProviderUnavailable,
		ErrCodeProviderTimeout,
		ErrCodeProviderRateLimit,
		ErrCodeStorageRead,
		ErrCodeStorageWrite,
		ErrCodeStorageCorrupt,
		ErrCodeEntryNotFound,
		ErrCodeInternal,
		ErrCodeInvalidInput,
	}

	for _, code := range codes {
		if code == "" {
			t.Error("Error code should not be empty")
		}
	}
}
