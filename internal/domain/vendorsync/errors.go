package vendorsync

import (
	"errors"
	"fmt"
)

// Error taxonomy. Only ErrTransientTransport (and the raw network errors the
// retry policy recognises) is retried.
var (
	// ErrValidation indicates a malformed or incomplete vendor record
	ErrValidation = errors.New("vendorsync: validation failed")
	// ErrCapabilityUnsupported indicates the adapter cannot perform the operation
	ErrCapabilityUnsupported = errors.New("vendorsync: capability unsupported")
	// ErrSignatureInvalid indicates a webhook payload failed authenticity checks
	ErrSignatureInvalid = errors.New("vendorsync: signature invalid")
	// ErrTransientTransport indicates a network or timeout class failure
	ErrTransientTransport = errors.New("vendorsync: transient transport failure")
	// ErrConflictRequiresReview marks a deferred, operator-resolved conflict
	ErrConflictRequiresReview = errors.New("vendorsync: conflict requires review")
	// ErrBusinessRule indicates the vendor data violates a business rule
	ErrBusinessRule = errors.New("vendorsync: business rule violated")
	// ErrVendorAuthFailed indicates the vendor rejected our credentials
	ErrVendorAuthFailed = errors.New("vendorsync: vendor authentication failed")
	// ErrVendorRequestFailed indicates the vendor rejected the request
	ErrVendorRequestFailed = errors.New("vendorsync: vendor request failed")
	// ErrInvalidAdapterConfig indicates the adapter configuration is unusable
	ErrInvalidAdapterConfig = errors.New("vendorsync: invalid adapter config")
	// ErrAdapterNotConnected indicates an operation was issued before Connect
	ErrAdapterNotConnected = errors.New("vendorsync: adapter not connected")
	// ErrInvalidSyncType indicates an unknown sync type
	ErrInvalidSyncType = errors.New("vendorsync: invalid sync type")
	// ErrInvalidTransition indicates a forbidden job status change
	ErrInvalidTransition = errors.New("vendorsync: invalid job status transition")
	// ErrJobNotFound indicates the job id is unknown to the queue
	ErrJobNotFound = errors.New("vendorsync: job not found")
	// ErrVendorNotFound indicates the vendor id is unknown
	ErrVendorNotFound = errors.New("vendorsync: vendor not found")
	// ErrVendorInactive indicates the vendor is disabled
	ErrVendorInactive = errors.New("vendorsync: vendor inactive")
	// ErrDuplicateDelivery indicates a webhook delivery was already ingested
	ErrDuplicateDelivery = errors.New("vendorsync: duplicate webhook delivery")
)

// ValidationError describes why a single record was rejected
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a validation error for a field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrValidation) match
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// CapabilityUnsupportedError is returned by adapters asked to perform an
// operation they did not declare.
type CapabilityUnsupportedError struct {
	Adapter    AdapterKind
	Capability Capability
}

// NewCapabilityUnsupportedError creates a capability error
func NewCapabilityUnsupportedError(kind AdapterKind, c Capability) *CapabilityUnsupportedError {
	return &CapabilityUnsupportedError{Adapter: kind, Capability: c}
}

func (e *CapabilityUnsupportedError) Error() string {
	return fmt.Sprintf("%s adapter does not support %s", e.Adapter, e.Capability)
}

// Unwrap lets errors.Is(err, ErrCapabilityUnsupported) match
func (e *CapabilityUnsupportedError) Unwrap() error {
	return ErrCapabilityUnsupported
}

// TransportError wraps a failed vendor call. Transient transport errors
// unwrap to ErrTransientTransport as well as the underlying cause.
type TransportError struct {
	Op         string
	StatusCode int
	Transient  bool
	Err        error
}

// NewTransientError wraps err as a retryable transport failure
func NewTransientError(op string, err error) *TransportError {
	return &TransportError{Op: op, Transient: true, Err: err}
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	if e.Transient {
		return []error{ErrTransientTransport, e.Err}
	}
	return []error{e.Err}
}

// IsTerminalError reports whether err belongs to a class that must never be retried
func IsTerminalError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrCapabilityUnsupported) ||
		errors.Is(err, ErrSignatureInvalid) ||
		errors.Is(err, ErrBusinessRule) ||
		errors.Is(err, ErrVendorAuthFailed) ||
		errors.Is(err, ErrVendorRequestFailed) ||
		errors.Is(err, ErrInvalidAdapterConfig) ||
		errors.Is(err, ErrVendorNotFound) ||
		errors.Is(err, ErrVendorInactive)
}
