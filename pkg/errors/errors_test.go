package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWithDetailCopies(t *testing.T) {
	detailed := ErrInvalidParam.WithDetail("action must not be empty")
	if detailed == ErrInvalidParam {
		t.Fatalf("WithDetail must return a copy, not mutate the shared variable")
	}
	if detailed.Detail != "action must not be empty" {
		t.Fatalf("Detail = %q", detailed.Detail)
	}
	if ErrInvalidParam.Detail != "" {
		t.Fatalf("predeclared error was mutated: %q", ErrInvalidParam.Detail)
	}
	if detailed.Code != CodeInvalidParam || detailed.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("copy lost code or status: %+v", detailed)
	}
}

func TestWithErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := ErrServiceUnavailable.WithError(cause)
	if !errors.Is(wrapped, cause) {
		t.Fatalf("wrapped error should unwrap to its cause")
	}
	if ErrServiceUnavailable.Err != nil {
		t.Fatalf("predeclared error was mutated")
	}
}

func TestErrorString(t *testing.T) {
	e := New(CodeNotFound, "resource not found")
	if got := e.Error(); got != "[1004] resource not found" {
		t.Fatalf("Error() = %q", got)
	}
	withCause := e.WithError(errors.New("row missing"))
	if got := withCause.Error(); got != "[1004] resource not found: row missing" {
		t.Fatalf("Error() with cause = %q", got)
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("load playthrough: %w", ErrPlaythroughNotFound)
	if !IsCode(err, CodePlaythroughNotFound) {
		t.Fatalf("IsCode should see through fmt.Errorf wrapping")
	}
	if IsCode(err, CodeStoryNotFound) {
		t.Fatalf("IsCode matched the wrong code")
	}
	if IsCode(errors.New("plain"), CodePlaythroughNotFound) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestAsAppError(t *testing.T) {
	appErr := AsAppError(fmt.Errorf("wrapped: %w", ErrConflict))
	if appErr.Code != CodeConflict {
		t.Fatalf("AsAppError lost the code: %+v", appErr)
	}

	fallback := AsAppError(errors.New("mystery"))
	if fallback.Code != CodeUnknown {
		t.Fatalf("non-app errors should map to unknown, got %+v", fallback)
	}
}

func TestMissingEntity(t *testing.T) {
	err := MissingEntity("scene", "pt-1")
	if err.Code != CodeMissingEntity || err.Detail != "pt-1" {
		t.Fatalf("MissingEntity = %+v", err)
	}
	if err.HTTPStatus != http.StatusNotFound {
		t.Fatalf("missing entity should map to 404, got %d", err.HTTPStatus)
	}
}

func TestCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{CodeInvalidParam, http.StatusBadRequest},
		{CodeTokenExpired, http.StatusUnauthorized},
		{CodeGatewayTimeout, http.StatusGatewayTimeout},
		{CodeTooManyRequests, http.StatusTooManyRequests},
		{CodeRegenerationExhausted, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := New(tt.code, "x").HTTPStatus; got != tt.want {
			t.Fatalf("status for %s = %d, want %d", tt.code, got, tt.want)
		}
	}
}
