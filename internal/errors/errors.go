// Package errors provides the structured error taxonomy used across the
// ingest core (spec §7): each AppError carries a Kind that decides how
// far it propagates — an HTTP response, or a row-level retry
// annotation that never reaches the request path.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Kind categorizes a failure per spec §7's error taxonomy table.
type Kind string

const (
	KindAuthRejected        Kind = "AUTH_REJECTED"
	KindIngestFault         Kind = "INGEST_FAULT"
	KindProjectionSoft      Kind = "PROJECTION_SOFT"
	KindProjectionTransient Kind = "PROJECTION_TRANSIENT"
	KindTickFatal           Kind = "TICK_FATAL"
)

// AppError is a structured application error.
type AppError struct {
	Kind          Kind                   `json:"kind"`
	Code          string                 `json:"code"`
	Message       string                 `json:"message"`
	Details       string                 `json:"details,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Cause         error                  `json:"-"`
	HTTPStatus    int                    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// New creates an AppError with the default HTTP status for its kind.
func New(kind Kind, code, message string) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		Timestamp:  time.Now().UTC(),
		HTTPStatus: defaultHTTPStatus(kind),
	}
}

// NewWithCause wraps an underlying error.
func NewWithCause(kind Kind, code, message string, cause error) *AppError {
	err := New(kind, code, message)
	err.Cause = cause
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

func (e *AppError) WithCorrelationID(id string) *AppError {
	e.CorrelationID = id
	return e
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func defaultHTTPStatus(kind Kind) int {
	switch kind {
	case KindAuthRejected:
		return http.StatusUnauthorized
	case KindIngestFault:
		return http.StatusInternalServerError
	default:
		// Projection-level and tick-level failures never reach HTTP;
		// this status only applies if one leaks through a generic
		// error-handling path.
		return http.StatusInternalServerError
	}
}

// NewAuthRejected builds the 401 case from spec §7.
func NewAuthRejected(message string) *AppError {
	return New(KindAuthRejected, "AUTH_REJECTED", message)
}

// NewIngestFault builds the 500 case for a failed raw insert.
func NewIngestFault(cause error) *AppError {
	return NewWithCause(KindIngestFault, "INGEST_FAULT", "failed to persist raw event", cause)
}

// NewProjectionSoft builds a terminal-success projection outcome: the
// row is marked processed with a descriptive last_error, never retried.
func NewProjectionSoft(reason string) *AppError {
	return New(KindProjectionSoft, "PROJECTION_SOFT", reason)
}

// NewProjectionTransient builds a retryable projection failure.
func NewProjectionTransient(cause error) *AppError {
	return NewWithCause(KindProjectionTransient, "PROJECTION_TRANSIENT", "transient projection failure", cause)
}

// NewTickFatal builds a transaction-scope worker failure.
func NewTickFatal(cause error) *AppError {
	return NewWithCause(KindTickFatal, "TICK_FATAL", "worker tick failed", cause)
}

// Is reports whether err is an *AppError of the given kind.
func Is(err error, kind Kind) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Kind == kind
	}
	return false
}
