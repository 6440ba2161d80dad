// Package response provides helpers for writing consistent JSON HTTP responses.
//
// Every API response uses the same envelope so the page scripting can
// tell outcomes apart without looking at the status code:
//
//	{ "success": true,  "data": <payload or null> }
//	{ "success": false, "error": "<message>" }
//
// A validation failure is sent with status 200 and success=false: the
// page treats that as a form error the user can fix and retry, while
// non-2xx statuses are server or request errors.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/chirva-sf/example-php-js/internal/validation"
)

// Fixed client-facing messages.
const (
	MsgInvalidData       = "Invalid data format"
	MsgUserNotFound      = "User not found"
	MsgTokenMismatch     = "Token verification failed"
	MsgUnsupportedMethod = "Unsupported method"
)

// SuccessResponse is the envelope for successful calls.
// Data is always present, null when there is nothing to return.
type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorResponse is the envelope for every failure.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// WriteJSON writes a JSON-encoded response with the given HTTP status code.
//
// IMPORTANT ORDER: Header() → WriteHeader() → body writes.
// Once WriteHeader is called (or the first Write), headers are locked.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// Success wraps data (which may be nil) in the success envelope.
func Success(data any) SuccessResponse {
	return SuccessResponse{Success: true, Data: data}
}

// GeneralError wraps any Go error into the error envelope.
// Use this for unexpected errors (DB failures, decode errors, etc.)
func GeneralError(err error) ErrorResponse {
	return ErrorResponse{Success: false, Error: err.Error()}
}

// Message wraps one of the fixed messages into the error envelope.
func Message(msg string) ErrorResponse {
	return ErrorResponse{Success: false, Error: msg}
}

// ValidationError flattens every rule violation into one string, keeping
// the order in which the rules were checked.
//
// Example output:
//
//	{ "success": false, "error": "Required field \"Email\" is missing, Field \"Age\" must be between 5 and 120 years" }
func ValidationError(verr *validation.Error) ErrorResponse {
	return ErrorResponse{Success: false, Error: verr.Error()}
}
