package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidRole     = errors.New("invalid role")
	ErrHandleClosed    = errors.New("connection handle closed")
	ErrTerminal        = errors.New("state machine is terminally disconnected")
)

// ErrorClass groups failures by how they propagate. Negotiation errors are
// absorbed and logged; transport errors drive the backoff/restart policy;
// capture errors surface to the caller; analysis errors degrade to an empty
// detection set.
type ErrorClass string

const (
	ClassNegotiation ErrorClass = "negotiation"
	ClassTransport   ErrorClass = "transport"
	ClassCapture     ErrorClass = "capture"
	ClassAnalysis    ErrorClass = "analysis"
)

// ClassifiedError wraps a failure with its propagation class.
type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

func NewNegotiationError(err error) *ClassifiedError {
	return &ClassifiedError{Class: ClassNegotiation, Err: err}
}

func NewTransportError(err error) *ClassifiedError {
	return &ClassifiedError{Class: ClassTransport, Err: err}
}

// NewCaptureError carries actionable guidance for the operator; capture
// failures are not retried automatically.
func NewCaptureError(err error, guidance string) *ClassifiedError {
	return &ClassifiedError{Class: ClassCapture, Err: fmt.Errorf("%w (%s)", err, guidance)}
}

func NewAnalysisError(err error) *ClassifiedError {
	return &ClassifiedError{Class: ClassAnalysis, Err: err}
}

// ClassOf returns the propagation class of err, or empty when unclassified.
func ClassOf(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ""
}
