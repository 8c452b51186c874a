// Package reconcile drives remote platform resources toward locally
// declared desired state: blueprints, the ingestion webhook, and the
// integration's resource-mapping configuration.
package reconcile

import (
	"errors"
	"fmt"
)

// ErrorClass partitions failures by how the run reacts to them.
type ErrorClass string

const (
	// ClassAuth indicates the token exchange failed. Nothing has been
	// read or written remotely; the run aborts immediately.
	ClassAuth ErrorClass = "auth"

	// ClassTransport indicates an HTTP-layer failure: unexpected
	// status, network error, or timeout. Fatal at the integration
	// create/update step, isolated per item in the blueprint pass.
	ClassTransport ErrorClass = "transport"

	// ClassNotFound carries a 404 used as control flow. It routes
	// update to create and never fails a run by itself.
	ClassNotFound ErrorClass = "not_found"

	// ClassVerification indicates a write went through but the live
	// config still lacked resource mappings. Triggers escalation.
	ClassVerification ErrorClass = "verification"

	// ClassSetup indicates an unrecoverable operator-facing condition,
	// such as an unextractable webhook URL or a missing desired-state
	// file. Always carries a remediation hint.
	ClassSetup ErrorClass = "setup"
)

// Error is the classified error type carried across the engine.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Resource is the resource identifier involved, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error
	// occurred, e.g. "integration.update".
	Operation string `json:"operation,omitempty"`

	// Hint is an operator-facing remediation suggestion.
	Hint string `json:"hint,omitempty"`

	// Cause is the underlying error.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Resource != "" && e.Operation != "" {
		msg = fmt.Sprintf("%s (resource=%s, operation=%s)", msg, e.Resource, e.Operation)
	} else if e.Resource != "" {
		msg = fmt.Sprintf("%s (resource=%s)", msg, e.Resource)
	} else if e.Operation != "" {
		msg = fmt.Sprintf("%s (operation=%s)", msg, e.Operation)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Class, msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Class, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements error equality for errors.Is: two reconcile errors
// match when class and code agree.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewAuthError creates an auth-class error.
func NewAuthError(message string, cause error) *Error {
	return &Error{Class: ClassAuth, Message: message, Cause: cause}
}

// NewTransportError creates a transport-class error.
func NewTransportError(message string, cause error) *Error {
	return &Error{Class: ClassTransport, Message: message, Cause: cause}
}

// NewNotFoundError creates a not-found-class error.
func NewNotFoundError(message string, cause error) *Error {
	return &Error{Class: ClassNotFound, Message: message, Cause: cause}
}

// NewVerificationError creates a verification-class error.
func NewVerificationError(message string, cause error) *Error {
	return &Error{Class: ClassVerification, Message: message, Cause: cause}
}

// NewSetupError creates a setup-class error.
func NewSetupError(message string, cause error) *Error {
	return &Error{Class: ClassSetup, Message: message, Cause: cause}
}

// WithResource adds resource context to the error.
func (e *Error) WithResource(resource string) *Error {
	e.Resource = resource
	return e
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithCode adds an error code to the error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithHint adds a remediation hint to the error.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// IsAuth returns true if the error is classified as an auth failure.
func IsAuth(err error) bool {
	return hasClass(err, ClassAuth)
}

// IsTransport returns true if the error is classified as a transport
// failure.
func IsTransport(err error) bool {
	return hasClass(err, ClassTransport)
}

// IsNotFound returns true if the error is classified as a not-found
// signal.
func IsNotFound(err error) bool {
	return hasClass(err, ClassNotFound)
}

// IsVerification returns true if the error is classified as a
// verification failure.
func IsVerification(err error) bool {
	return hasClass(err, ClassVerification)
}

// IsSetup returns true if the error is classified as a setup failure.
func IsSetup(err error) bool {
	return hasClass(err, ClassSetup)
}

func hasClass(err error, class ErrorClass) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// Common error codes.
const (
	ErrCodeTokenExchange        = "TOKEN_EXCHANGE_FAILED"
	ErrCodeWebhookUnextractable = "WEBHOOK_URL_UNEXTRACTABLE"
	ErrCodeWebhookCreate        = "WEBHOOK_CREATE_FAILED"
	ErrCodeBlueprintCreate      = "BLUEPRINT_CREATE_FAILED"
	ErrCodeIntegrationCreate    = "INTEGRATION_CREATE_FAILED"
	ErrCodeIntegrationUpdate    = "INTEGRATION_UPDATE_FAILED"
	ErrCodeIntegrationDelete    = "INTEGRATION_DELETE_FAILED"
	ErrCodeConfigUnverified     = "CONFIG_UNVERIFIED"
	ErrCodeDesiredState         = "DESIRED_STATE_INVALID"
	ErrCodePolicyDenied         = "POLICY_DENIED"
)
