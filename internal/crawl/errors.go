package crawl

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorClass buckets acquisition failures for retry and breaker decisions.
type ErrorClass string

// Failure classes, per the error-handling taxonomy.
const (
	// ErrClassTransient covers timeouts and connection-level failures that
	// are worth retrying inside the tier before escalating.
	ErrClassTransient ErrorClass = "transient"
	// ErrClassAuth covers expired or invalid session credentials. Never
	// retried; escalated immediately.
	ErrClassAuth ErrorClass = "auth"
	// ErrClassDetection covers block pages and CAPTCHA signatures. Not
	// retried within the tier and biases the chain toward the next tier.
	ErrClassDetection ErrorClass = "detection"
	// ErrClassParse covers single-record normalization failures. Logged and
	// skipped, never escalated to the safety breaker.
	ErrClassParse ErrorClass = "parse"
)

// AcquisitionError is the only error type a tier lets cross its boundary.
type AcquisitionError struct {
	Tier  TierName
	Class ErrorClass
	Err   error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("%s tier %s failure: %v", e.Tier, e.Class, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// NewAcquisitionError wraps err with its tier and class.
func NewAcquisitionError(tier TierName, class ErrorClass, err error) *AcquisitionError {
	return &AcquisitionError{Tier: tier, Class: class, Err: err}
}

// ClassifyError maps an arbitrary error to a failure class. Already
// classified errors keep their class; network timeouts and context
// deadlines become transient.
func ClassifyError(err error) ErrorClass {
	var acqErr *AcquisitionError
	if errors.As(err, &acqErr) {
		return acqErr.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrClassTransient
	}
	return ErrClassTransient
}

// IsRetryable reports whether an error may be retried within a tier.
// Authentication and detection failures are terminal for the attempt.
func IsRetryable(err error) bool {
	switch ClassifyError(err) {
	case ErrClassAuth, ErrClassDetection:
		return false
	}
	return !errors.Is(err, context.Canceled)
}
