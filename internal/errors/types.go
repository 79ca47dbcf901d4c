package errors

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Kind classifies errors for retry and surfacing policy.
type Kind int

const (
	// KindTransient - retry-able provider/network failures.
	KindTransient Kind = iota
	// KindPermissionDenied - operator action required (revoked token, calendar ACL).
	KindPermissionDenied
	// KindSchemaViolation - malformed input; drop it and audit.
	KindSchemaViolation
	// KindInvariantViolation - internal consistency broken; abort the transaction.
	KindInvariantViolation
	// KindAmbiguousTarget - more than one candidate matched; ask the user.
	KindAmbiguousTarget
	// KindStaleRevision - command built against an outdated plan revision.
	KindStaleRevision
	// KindNotFound - referenced entity does not exist.
	KindNotFound
	// KindConfiguration - invalid configuration; fail fast at startup.
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient_provider"
	case KindPermissionDenied:
		return "permission_denied"
	case KindSchemaViolation:
		return "schema_violation"
	case KindInvariantViolation:
		return "invariant_violation"
	case KindAmbiguousTarget:
		return "ambiguous_target"
	case KindStaleRevision:
		return "stale_plan_revision"
	case KindNotFound:
		return "not_found"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// TransientError represents a provider or network failure that can be retried.
type TransientError struct {
	Err        error
	StatusCode int // HTTP status code if applicable
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermissionDeniedError represents a failure that needs operator action.
type PermissionDeniedError struct {
	Err      error
	Resource string
}

func (e *PermissionDeniedError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("permission denied on %s: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("permission denied: %v", e.Err)
}

func (e *PermissionDeniedError) Unwrap() error { return e.Err }

// SchemaViolationError marks input that failed shape validation. The input is
// dropped and audited; processing continues.
type SchemaViolationError struct {
	Err    error
	Detail string
}

func (e *SchemaViolationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("schema violation (%s): %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("schema violation: %v", e.Err)
}

func (e *SchemaViolationError) Unwrap() error { return e.Err }

// InvariantViolationError marks broken internal consistency. The enclosing
// transaction must abort.
type InvariantViolationError struct {
	Err error
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation: %v", e.Err)
}

func (e *InvariantViolationError) Unwrap() error { return e.Err }

// ConfigurationError marks invalid startup configuration.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error (%s): %v", e.Field, e.Err)
	}
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Sentinel errors for conditions that carry no extra payload.
var (
	ErrAmbiguousTarget = errors.New("ambiguous_target")
	ErrStaleRevision   = errors.New("stale_plan_revision")
	ErrNotFound        = errors.New("not_found")
)

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// PermissionDenied wraps err as requiring operator action.
func PermissionDenied(resource string, err error) error {
	return &PermissionDeniedError{Resource: resource, Err: err}
}

// IsTransient reports whether err should be retried. Unclassified network
// errors count as transient; everything explicitly typed does not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	var denied *PermissionDeniedError
	if errors.As(err, &denied) {
		return false
	}
	return isNetworkError(err)
}

// IsPermissionDenied reports whether err requires operator intervention.
func IsPermissionDenied(err error) bool {
	var denied *PermissionDeniedError
	return errors.As(err, &denied)
}

// IsNotFound reports whether err is the not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Classify maps err onto its taxonomy kind. Untyped errors default to
// invariant violation so callers abort rather than retry blindly.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindInvariantViolation
	case IsTransient(err):
		return KindTransient
	case IsPermissionDenied(err):
		return KindPermissionDenied
	case errors.Is(err, ErrAmbiguousTarget):
		return KindAmbiguousTarget
	case errors.Is(err, ErrStaleRevision):
		return KindStaleRevision
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	}
	var schema *SchemaViolationError
	if errors.As(err, &schema) {
		return KindSchemaViolation
	}
	var config *ConfigurationError
	if errors.As(err, &config) {
		return KindConfiguration
	}
	return KindInvariantViolation
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ETIMEDOUT):
		return true
	}
	return false
}
