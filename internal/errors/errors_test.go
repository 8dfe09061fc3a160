package errors

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKind_Values(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		expected string
	}{
		{"Auth rejected", KindAuthRejected, "AUTH_REJECTED"},
		{"Ingest fault", KindIngestFault, "INGEST_FAULT"},
		{"Projection soft", KindProjectionSoft, "PROJECTION_SOFT"},
		{"Projection transient", KindProjectionTransient, "PROJECTION_TRANSIENT"},
		{"Tick fatal", KindTickFatal, "TICK_FATAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.kind))
		})
	}
}

func TestNew(t *testing.T) {
	appErr := New(KindAuthRejected, "AUTH_REJECTED", "invalid secret")

	assert.Equal(t, KindAuthRejected, appErr.Kind)
	assert.Equal(t, "AUTH_REJECTED", appErr.Code)
	assert.Equal(t, "invalid secret", appErr.Message)
	assert.WithinDuration(t, time.Now(), appErr.Timestamp, time.Second)
	assert.Nil(t, appErr.Cause)
	assert.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
}

func TestNewWithCause(t *testing.T) {
	originalErr := errors.New("connection timeout")
	appErr := NewWithCause(KindIngestFault, "INGEST_FAULT", "failed to persist raw event", originalErr)

	assert.Equal(t, KindIngestFault, appErr.Kind)
	assert.Equal(t, "INGEST_FAULT", appErr.Code)
	assert.Equal(t, "failed to persist raw event", appErr.Message)
	assert.Equal(t, originalErr, appErr.Cause)
	assert.Equal(t, originalErr.Error(), appErr.Details)
	assert.WithinDuration(t, time.Now(), appErr.Timestamp, time.Second)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus)
}

func TestAppError_WithMethods(t *testing.T) {
	originalErr := errors.New("original error")
	correlationID := "test-correlation-id"

	appErr := NewWithCause(KindTickFatal, "TICK_FATAL", "worker tick failed", originalErr).
		WithCorrelationID(correlationID).
		WithMetadata("context", "test").
		WithDetails("additional details")

	assert.Equal(t, KindTickFatal, appErr.Kind)
	assert.Equal(t, "TICK_FATAL", appErr.Code)
	assert.Equal(t, correlationID, appErr.CorrelationID)
	assert.Equal(t, "test", appErr.Metadata["context"])
	assert.Equal(t, "additional details", appErr.Details)
	assert.WithinDuration(t, time.Now(), appErr.Timestamp, time.Second)
	assert.Equal(t, originalErr, appErr.Cause)
}

func TestAppError_Error(t *testing.T) {
	appErr := &AppError{
		Kind:      KindAuthRejected,
		Code:      "AUTH_REJECTED",
		Message:   "invalid secret",
		Timestamp: time.Now(),
	}

	assert.Equal(t, "AUTH_REJECTED: invalid secret", appErr.Error())
}

func TestAppError_Error_WithDetails(t *testing.T) {
	appErr := &AppError{
		Kind:      KindTickFatal,
		Code:      "TICK_FATAL",
		Message:   "worker tick failed",
		Details:   "deadlock detected",
		Timestamp: time.Now(),
	}

	assert.Equal(t, "TICK_FATAL: worker tick failed - deadlock detected", appErr.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	appErr := &AppError{Cause: originalErr}

	assert.Equal(t, originalErr, appErr.Unwrap())
}

func TestAppError_Unwrap_NoCause(t *testing.T) {
	appErr := &AppError{}
	assert.Nil(t, appErr.Unwrap())
}

func TestIs(t *testing.T) {
	appErr := New(KindProjectionSoft, "PROJECTION_SOFT", "Unrecognized payload")

	assert.True(t, Is(appErr, KindProjectionSoft))
	assert.False(t, Is(appErr, KindProjectionTransient))

	regularErr := errors.New("regular error")
	assert.False(t, Is(regularErr, KindProjectionSoft))
}

func TestDefaultHTTPStatus(t *testing.T) {
	tests := []struct {
		name         string
		kind         Kind
		expectedCode int
	}{
		{"Auth rejected", KindAuthRejected, http.StatusUnauthorized},
		{"Ingest fault", KindIngestFault, http.StatusInternalServerError},
		{"Projection soft never reaches HTTP", KindProjectionSoft, http.StatusInternalServerError},
		{"Projection transient never reaches HTTP", KindProjectionTransient, http.StatusInternalServerError},
		{"Tick fatal never reaches HTTP", KindTickFatal, http.StatusInternalServerError},
		{"Unknown kind", Kind("unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := New(tt.kind, "TEST", "test message")
			assert.Equal(t, tt.expectedCode, appErr.HTTPStatus)
		})
	}
}

func TestNewAuthRejected(t *testing.T) {
	err := NewAuthRejected("invalid secret")

	assert.Equal(t, KindAuthRejected, err.Kind)
	assert.Equal(t, "AUTH_REJECTED", err.Code)
	assert.Equal(t, "invalid secret", err.Message)
	assert.Equal(t, http.StatusUnauthorized, err.HTTPStatus)
	assert.NotZero(t, err.Timestamp)
}

func TestNewIngestFault(t *testing.T) {
	cause := errors.New("insert failed")
	err := NewIngestFault(cause)

	assert.Equal(t, KindIngestFault, err.Kind)
	assert.Equal(t, "INGEST_FAULT", err.Code)
	assert.Equal(t, "failed to persist raw event", err.Message)
	assert.Equal(t, cause, err.Cause)
	assert.NotZero(t, err.Timestamp)
}

func TestNewProjectionSoft(t *testing.T) {
	err := NewProjectionSoft("Recipient not found")

	assert.Equal(t, KindProjectionSoft, err.Kind)
	assert.Equal(t, "PROJECTION_SOFT", err.Code)
	assert.Equal(t, "Recipient not found", err.Message)
	assert.Nil(t, err.Cause)
	assert.NotZero(t, err.Timestamp)
}

func TestNewProjectionTransient(t *testing.T) {
	cause := errors.New("deadlock")
	err := NewProjectionTransient(cause)

	assert.Equal(t, KindProjectionTransient, err.Kind)
	assert.Equal(t, "PROJECTION_TRANSIENT", err.Code)
	assert.Equal(t, "transient projection failure", err.Message)
	assert.Equal(t, cause, err.Cause)
	assert.NotZero(t, err.Timestamp)
}

func TestNewTickFatal(t *testing.T) {
	cause := errors.New("connection lost")
	err := NewTickFatal(cause)

	assert.Equal(t, KindTickFatal, err.Kind)
	assert.Equal(t, "TICK_FATAL", err.Code)
	assert.Equal(t, "worker tick failed", err.Message)
	assert.Equal(t, cause, err.Cause)
	assert.NotZero(t, err.Timestamp)
}

func TestAppError_WithMetadata(t *testing.T) {
	appErr := NewProjectionSoft("Unrecognized payload")
	appErr = appErr.WithMetadata("field", "event_status").WithMetadata("value", "invalid")

	assert.Equal(t, "event_status", appErr.Metadata["field"])
	assert.Equal(t, "invalid", appErr.Metadata["value"])
}

func TestAppError_ChainedErrors(t *testing.T) {
	originalErr := errors.New("database connection failed")
	middleErr := NewProjectionTransient(originalErr)
	finalErr := NewWithCause(KindTickFatal, "TICK_FATAL", "worker tick failed", middleErr)

	assert.True(t, errors.Is(finalErr, originalErr))
	assert.True(t, errors.Is(finalErr, middleErr))

	unwrapped := errors.Unwrap(finalErr)
	assert.Equal(t, middleErr, unwrapped)

	assert.Equal(t, KindTickFatal, finalErr.Kind)
	assert.Equal(t, "TICK_FATAL", finalErr.Code)
	assert.Equal(t, "worker tick failed", finalErr.Message)
}

func TestAppError_JSONSerialization(t *testing.T) {
	appErr := NewProjectionSoft("Unrecognized payload").WithCorrelationID("test-correlation-id")
	appErr = appErr.WithMetadata("value", "invalid")

	data, err := appErr.ToJSON()
	assert.NoError(t, err)
	assert.Contains(t, string(data), "PROJECTION_SOFT")
	assert.Contains(t, string(data), "test-correlation-id")
}

func TestAppError_ConcurrentAccess(t *testing.T) {
	cause := errors.New("test error")
	appErr := NewProjectionTransient(cause)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			_ = appErr.Error()
			_ = appErr.HTTPStatus
			_ = appErr.Kind
			_ = appErr.Code
			_ = appErr.Message
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Equal(t, KindProjectionTransient, appErr.Kind)
	assert.Equal(t, "PROJECTION_TRANSIENT", appErr.Code)
	assert.Equal(t, "transient projection failure", appErr.Message)
}
