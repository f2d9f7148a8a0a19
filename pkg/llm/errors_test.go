package llm

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error_WithStatusCode(t *testing.T) {
	err := &Error{
		Type:       ErrorTypeEndpoint,
		Message:    "server error",
		StatusCode: 503,
	}

	result := err.Error()
	if !strings.Contains(result, "HTTP 503") {
		t.Errorf("expected error message to contain 'HTTP 503', got: %s", result)
	}
	if !strings.Contains(result, "server error") {
		t.Errorf("expected error message to contain 'server error', got: %s", result)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := NewError(ErrorTypeEndpoint, "wrapper", true, cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestClassifyError_Auth(t *testing.T) {
	err := ClassifyError(fmt.Errorf("request failed: 401 unauthorized"))
	if err.Type != ErrorTypeAuth {
		t.Errorf("expected auth error, got %s", err.Type)
	}
	if err.Retryable {
		t.Error("auth errors must not be retryable")
	}
}

func TestClassifyError_RateLimited(t *testing.T) {
	err := ClassifyError(fmt.Errorf("anthropic api error: 429 rate limit exceeded"))
	if !err.Retryable {
		t.Error("rate limit errors must be retryable")
	}
	if err.StatusCode != 429 {
		t.Errorf("expected status 429, got %d", err.StatusCode)
	}
}

func TestClassifyError_Overloaded(t *testing.T) {
	err := ClassifyError(fmt.Errorf("api error: 529 overloaded_error"))
	if !err.Retryable {
		t.Error("overloaded errors must be retryable")
	}
}

func TestClassifyError_ModelNotFound(t *testing.T) {
	err := ClassifyError(fmt.Errorf("model gpt-5o does not exist"))
	if err.Type != ErrorTypeModel {
		t.Errorf("expected model error, got %s", err.Type)
	}
	if err.Retryable {
		t.Error("model errors must not be retryable")
	}
}

func TestClassifyError_PassesThroughStructured(t *testing.T) {
	orig := NewError(ErrorTypeAuth, "bad key", false, nil)
	classified := ClassifyError(fmt.Errorf("wrapped: %w", orig))
	if classified != orig {
		t.Error("expected structured error to pass through classification")
	}
}

func TestClassifyError_Nil(t *testing.T) {
	if ClassifyError(nil) != nil {
		t.Error("expected nil for nil input")
	}
}
