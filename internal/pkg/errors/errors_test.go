package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New(CodeValidation, "invalid input"),
			want: "VALIDATION_ERROR: invalid input",
		},
		{
			name: "with wrapped error",
			err:  Wrap(CodeInternal, "something failed", errors.New("underlying")),
			want: "INTERNAL_ERROR: something failed: underlying",
		},
		{
			name: "connection error",
			err:  ConnectionError("ping database", errors.New("dial tcp: refused")),
			want: "CONNECTION_ERROR: ping database: dial tcp: refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodeInternal, "wrapped", underlying)

	if unwrapped := err.Unwrap(); unwrapped != underlying {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, underlying)
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is() should find the underlying error")
	}
}

func TestAppError_Fatal(t *testing.T) {
	tests := []struct {
		err  *AppError
		want bool
	}{
		{ParseError("bad json", nil), false},
		{SinkError("insert failed", nil), true},
		{QueryError("bad sql", nil), true},
		{ConnectionError("unreachable", nil), true},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if got := tt.err.Fatal(); got != tt.want {
				t.Errorf("Fatal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_WithDetail(t *testing.T) {
	err := SinkError("insert failed", nil).
		WithDetail("processed", "3").
		WithDetail("total", "10")

	if err.Details["processed"] != "3" {
		t.Errorf("Details[processed] = %q, want %q", err.Details["processed"], "3")
	}
	if err.Details["total"] != "10" {
		t.Errorf("Details[total] = %q, want %q", err.Details["total"], "10")
	}

	err = err.WithDetails(map[string]string{"id": "NCT001"})
	if len(err.Details) != 1 {
		t.Errorf("WithDetails() should replace details, got %v", err.Details)
	}
}

func TestIsCode(t *testing.T) {
	wrapped := fmt.Errorf("fetch batch 2: %w", QueryError("rejected", errors.New("syntax")))

	if !IsCode(wrapped, CodeQuery) {
		t.Error("IsCode() should find QUERY_ERROR through fmt wrapping")
	}
	if IsCode(wrapped, CodeConnection) {
		t.Error("IsCode() matched the wrong code")
	}
	if IsCode(nil, CodeQuery) {
		t.Error("IsCode(nil) should be false")
	}
	if IsCode(errors.New("plain"), CodeQuery) {
		t.Error("IsCode() should be false for non-AppError")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(NotFoundError("topic 7")); got != CodeNotFound {
		t.Errorf("CodeOf() = %q, want %q", got, CodeNotFound)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("CodeOf() = %q, want empty", got)
	}
}

func TestPredicates(t *testing.T) {
	if !IsNotFound(NotFoundError("x")) {
		t.Error("IsNotFound() = false, want true")
	}
	if !IsValidation(ValidationError("x")) {
		t.Error("IsValidation() = false, want true")
	}
	if IsValidation(NotFoundError("x")) {
		t.Error("IsValidation() = true for not found error")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code string
		msg  string
	}{
		{"timeout with op", TimeoutError("query"), CodeTimeout, "query timed out"},
		{"timeout without op", TimeoutError(""), CodeTimeout, "operation timed out"},
		{"unavailable with service", ServiceUnavailableError("lightrag"), CodeUnavailable, "lightrag is unavailable"},
		{"unavailable without service", ServiceUnavailableError(""), CodeUnavailable, "service unavailable"},
		{"not found", NotFoundError("column nct_id"), CodeNotFound, "column nct_id not found"},
		{"internal", InternalError("boom", nil), CodeInternal, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Message != tt.msg {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.msg)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantError  string
	}{
		{"validation", ValidationError("bad groups"), http.StatusBadRequest, CodeValidation, "bad groups"},
		{"sink", SinkError("query failed", errors.New("dial tcp")), http.StatusBadGateway, CodeSink, "query failed"},
		{"wrapped", fmt.Errorf("outer: %w", TimeoutError("query")), http.StatusGatewayTimeout, CodeTimeout, "query timed out"},
		{"plain", errors.New("secret detail"), http.StatusInternalServerError, CodeInternal, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Code != tt.wantCode || resp.Error != tt.wantError {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestRateLimitedError(t *testing.T) {
	err := RateLimitedError(2)
	if err.HTTPStatus() != http.StatusTooManyRequests || err.Details["retry_after"] != "2" {
		t.Errorf("RateLimitedError(2) = %+v", err)
	}
}
