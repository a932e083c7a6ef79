package mindbody

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a source API call failed. The kind is set at
// the point of failure so callers never have to infer causes from message
// text.
type FailureKind string

const (
	KindTimeout   FailureKind = "timeout"
	KindRateLimit FailureKind = "rate_limit"
	KindAuth      FailureKind = "auth"
	KindServer    FailureKind = "server"
	KindRequest   FailureKind = "request"
)

// APIError carries the failure kind alongside the HTTP context of the call.
type APIError struct {
	Kind     FailureKind
	Endpoint string
	Status   int
	Body     string
	Err      error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("mindbody %s: %s", e.Endpoint, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying transport error, if any.
func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf extracts the failure kind from an error chain. The zero value is
// returned when the error did not originate from the source API client.
func KindOf(err error) FailureKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}
