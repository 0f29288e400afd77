// Package apierror maps failures onto the JSON error shape every endpoint
// returns: {"error": "...", "details": "..."}.
package apierror

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Error is an error that knows its HTTP status and client-facing message.
type Error struct {
	Status  int
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails returns a copy of e carrying a details string.
func (e *Error) WithDetails(details string) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func New(status int, msg string) *Error { return &Error{Status: status, Message: msg} }

func Wrap(status int, msg string, err error) *Error {
	return &Error{Status: status, Message: msg, Err: err}
}

func BadRequest(msg string) *Error       { return New(http.StatusBadRequest, msg) }
func Unauthorized() *Error               { return New(http.StatusUnauthorized, "unauthorized") }
func NotFound(msg string) *Error         { return New(http.StatusNotFound, msg) }
func Conflict(msg string) *Error         { return New(http.StatusConflict, msg) }
func UnsupportedMedia(msg string) *Error { return New(http.StatusUnsupportedMediaType, msg) }
func TooManyRequests(msg string) *Error  { return New(http.StatusTooManyRequests, msg) }

func BadGateway(msg string, err error) *Error { return Wrap(http.StatusBadGateway, msg, err) }
func Internal(msg string, err error) *Error   { return Wrap(http.StatusInternalServerError, msg, err) }

type body struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Write renders err as a JSON error response. Errors that are not *Error
// become a 500 with a generic message; 5xx responses are logged.
func Write(w http.ResponseWriter, log *slog.Logger, err error) {
	if log == nil {
		log = slog.Default()
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = Internal("internal error", err)
	}
	if apiErr.Status >= http.StatusInternalServerError {
		log.Error(apiErr.Message, "status", apiErr.Status, "error", apiErr.Err)
	}
	WriteJSON(w, apiErr.Status, body{Error: apiErr.Message, Details: apiErr.Details})
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
