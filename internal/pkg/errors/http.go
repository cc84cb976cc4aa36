package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
)

// HTTPStatus maps the error code to an HTTP status.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeParse:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeConnection, CodeSink:
		return http.StatusBadGateway
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the standard JSON error response structure.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON writes a JSON error response.
func WriteJSON(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteError writes err using its AppError code and status. Other errors
// are reported as internal without their message.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		WriteErrorWithStatus(w, appErr.HTTPStatus(), appErr)
		return
	}
	WriteErrorWithStatus(w, http.StatusInternalServerError, err)
}

// WriteErrorWithStatus writes err with an explicit status. Messages of
// non-AppError 5xx errors are hidden.
func WriteErrorWithStatus(w http.ResponseWriter, status int, err error) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		WriteJSON(w, status, ErrorResponse{
			Error:   appErr.Message,
			Code:    appErr.Code,
			Details: appErr.Details,
		})
		return
	}

	if status >= 400 && status < 500 {
		WriteJSON(w, status, ErrorResponse{Error: err.Error(), Code: CodeValidation})
		return
	}
	WriteJSON(w, status, ErrorResponse{Error: "internal server error", Code: CodeInternal})
}
