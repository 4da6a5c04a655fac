// Package errors provides the engine's Kind-tagged error taxonomy.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an EngineError for callers that branch on error category
// (the scheduler's retry policy, the outbox's dead-letter path, a resume
// API deciding whether an incident is retryable).
type Kind string

const (
	// KindNotFound marks a lookup against a repository that found nothing.
	KindNotFound Kind = "NOT_FOUND"
	// KindConflict marks a write that lost a uniqueness or version race
	// (duplicate subscription, stale scope version, concurrent cancel).
	KindConflict Kind = "CONFLICT"
	// KindExpressionSyntax marks a malformed `${...}` expression or path,
	// caught at deploy time or before an expression is first evaluated.
	KindExpressionSyntax Kind = "EXPRESSION_SYNTAX"
	// KindExpressionRuntime marks an expression that parsed but failed to
	// evaluate against the variable scope (missing variable, type mismatch).
	KindExpressionRuntime Kind = "EXPRESSION_RUNTIME"
	// KindBpmnError marks a structural violation of the process definition
	// (unreachable gateway, ambiguous cancel policy, missing default flow).
	KindBpmnError Kind = "BPMN_ERROR"
	// KindSubscriptionCreateFailed marks a failure to register an event
	// subscription (timer parse failure, repository write failure).
	KindSubscriptionCreateFailed Kind = "SUBSCRIPTION_CREATE_FAILED"
	// KindCompensationHandlerFailed marks a compensation handler that
	// returned an error mid LIFO unwind; compensation continues regardless.
	KindCompensationHandlerFailed Kind = "COMPENSATION_HANDLER_FAILED"
	// KindOutboxPublishFailed marks a failed publish attempt against the bus;
	// the row stays retryable until it exhausts OutboxConfig.MaxRetries.
	KindOutboxPublishFailed Kind = "OUTBOX_PUBLISH_FAILED"
	// KindInternal is the catch-all for anything that should never happen.
	KindInternal Kind = "INTERNAL"
)

// EngineError is a structured, Kind-tagged error carrying optional
// key/value details for diagnostics (never for control flow — callers
// branch on Kind, not on Details).
type EngineError struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Err     error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a diagnostic key/value pair and returns the receiver.
func (e *EngineError) WithDetails(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an EngineError with no wrapped cause.
func New(kind Kind, message string) *EngineError {
	return &EngineError{Kind: kind, Message: message}
}

// Wrap creates an EngineError around an existing cause.
func Wrap(kind Kind, message string, err error) *EngineError {
	return &EngineError{Kind: kind, Message: message, Err: err}
}

// NotFound reports a missing entity by repository-facing name and ID.
func NotFound(entity, id string) *EngineError {
	return New(KindNotFound, "not found").
		WithDetails("entity", entity).
		WithDetails("id", id)
}

// Conflict reports a uniqueness or version conflict.
func Conflict(message string) *EngineError {
	return New(KindConflict, message)
}

// ExpressionSyntax reports a malformed expression or path string.
func ExpressionSyntax(expression string, err error) *EngineError {
	return Wrap(KindExpressionSyntax, "malformed expression", err).
		WithDetails("expression", expression)
}

// ExpressionRuntime reports an expression that failed during evaluation.
func ExpressionRuntime(expression string, err error) *EngineError {
	return Wrap(KindExpressionRuntime, "expression evaluation failed", err).
		WithDetails("expression", expression)
}

// BpmnError reports a structural violation of a process definition.
func BpmnError(code, message string) *EngineError {
	return New(KindBpmnError, message).WithDetails("code", code)
}

// SubscriptionCreateFailed reports a failed event-subscription registration.
func SubscriptionCreateFailed(eventName string, err error) *EngineError {
	return Wrap(KindSubscriptionCreateFailed, "failed to create event subscription", err).
		WithDetails("eventName", eventName)
}

// CompensationHandlerFailed reports a compensation handler error mid-unwind.
func CompensationHandlerFailed(activityID string, err error) *EngineError {
	return Wrap(KindCompensationHandlerFailed, "compensation handler failed", err).
		WithDetails("activityId", activityID)
}

// OutboxPublishFailed reports a failed lifecycle-event publish attempt.
func OutboxPublishFailed(eventID string, err error) *EngineError {
	return Wrap(KindOutboxPublishFailed, "outbox publish failed", err).
		WithDetails("eventId", eventID)
}

// Internal wraps an unexpected error.
func Internal(message string, err error) *EngineError {
	return Wrap(KindInternal, message, err)
}

// IsEngineError reports whether err is (or wraps) an *EngineError.
func IsEngineError(err error) bool {
	var engineErr *EngineError
	return errors.As(err, &engineErr)
}

// As extracts an *EngineError from err's chain, if present.
func As(err error) *EngineError {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr
	}
	return nil
}

// Is reports whether err is (or wraps) an *EngineError of the given Kind.
func Is(err error, kind Kind) bool {
	if e := As(err); e != nil {
		return e.Kind == kind
	}
	return false
}
