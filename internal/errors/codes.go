package errors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for replica planning
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Caller errors
	ErrCodeInvalidArgument ErrorCode = 1000
	ErrCodeUnknownKeyspace ErrorCode = 1001

	// Configuration errors. These are never retried.
	ErrCodeUnsupportedConsistencyLevel ErrorCode = 2000
	ErrCodeEmptyReplicaSet             ErrorCode = 2001
	ErrCodeDuplicateEndpoint           ErrorCode = 2002
	ErrCodeReplicaOutOfScope           ErrorCode = 2003

	// Availability errors
	ErrCodeUnavailable ErrorCode = 3000

	ErrCodeInternal ErrorCode = 4000
)

// String returns the symbolic name of the code
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "OK"
	case ErrCodeInvalidArgument:
		return "INVALID_ARGUMENT"
	case ErrCodeUnknownKeyspace:
		return "UNKNOWN_KEYSPACE"
	case ErrCodeUnsupportedConsistencyLevel:
		return "UNSUPPORTED_CONSISTENCY_LEVEL"
	case ErrCodeEmptyReplicaSet:
		return "EMPTY_REPLICA_SET"
	case ErrCodeDuplicateEndpoint:
		return "DUPLICATE_ENDPOINT"
	case ErrCodeReplicaOutOfScope:
		return "REPLICA_OUT_OF_SCOPE"
	case ErrCodeUnavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

// PlanError represents a structured error with code and context
type PlanError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *PlanError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *PlanError) Unwrap() error {
	return e.Cause
}

// Is matches any PlanError carrying the same code, so sentinel comparisons
// like errors.Is(err, ErrEmptyReplicaSet) work on detailed instances.
func (e *PlanError) Is(target error) bool {
	t, ok := target.(*PlanError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ToGRPCStatus converts PlanError to gRPC status
func (e *PlanError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

// toGRPCCode maps internal error codes to gRPC codes
func (e *PlanError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument:
		return codes.InvalidArgument
	case ErrCodeUnknownKeyspace:
		return codes.NotFound
	case ErrCodeUnsupportedConsistencyLevel, ErrCodeEmptyReplicaSet:
		return codes.FailedPrecondition
	case ErrCodeUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// NewPlanError creates a new PlanError
func NewPlanError(code ErrorCode, message string, cause error) *PlanError {
	return &PlanError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *PlanError) WithDetail(key string, value interface{}) *PlanError {
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidArgument             = &PlanError{Code: ErrCodeInvalidArgument, Message: "invalid argument"}
	ErrUnsupportedConsistencyLevel = &PlanError{Code: ErrCodeUnsupportedConsistencyLevel, Message: "unsupported consistency level"}
	ErrEmptyReplicaSet             = &PlanError{Code: ErrCodeEmptyReplicaSet, Message: "empty replica set"}
	ErrDuplicateEndpoint           = &PlanError{Code: ErrCodeDuplicateEndpoint, Message: "duplicate endpoint"}
	ErrReplicaOutOfScope           = &PlanError{Code: ErrCodeReplicaOutOfScope, Message: "replica out of scope"}
	ErrUnavailable                 = &PlanError{Code: ErrCodeUnavailable, Message: "unavailable"}
	ErrUnknownKeyspace             = &PlanError{Code: ErrCodeUnknownKeyspace, Message: "unknown keyspace"}
)

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *PlanError {
	return NewPlanError(ErrCodeInvalidArgument, message, cause)
}

func UnknownKeyspace(keyspace string) *PlanError {
	return NewPlanError(ErrCodeUnknownKeyspace, fmt.Sprintf("unknown keyspace %q", keyspace), nil).
		WithDetail("keyspace", keyspace)
}

func UnsupportedConsistencyLevel(level, reason string) *PlanError {
	return NewPlanError(ErrCodeUnsupportedConsistencyLevel, fmt.Sprintf("consistency level %s is not supported: %s", level, reason), nil).
		WithDetail("consistency_level", level).
		WithDetail("reason", reason)
}

func EmptyReplicaSet(scope string) *PlanError {
	return NewPlanError(ErrCodeEmptyReplicaSet, fmt.Sprintf("no natural replicas for %s", scope), nil).
		WithDetail("scope", scope)
}

func DuplicateEndpoint(endpoint, scope string) *PlanError {
	return NewPlanError(ErrCodeDuplicateEndpoint, fmt.Sprintf("endpoint %s appears more than once in replicas for %s", endpoint, scope), nil).
		WithDetail("endpoint", endpoint).
		WithDetail("scope", scope)
}

func ReplicaOutOfScope(replica, scope string) *PlanError {
	return NewPlanError(ErrCodeReplicaOutOfScope, fmt.Sprintf("replica %s does not cover %s", replica, scope), nil).
		WithDetail("replica", replica).
		WithDetail("scope", scope)
}

// Unavailable reports that fewer live replicas exist than the level requires.
// perDatacenter is only set for per-datacenter levels and maps a datacenter to
// its own [required, alive] pair.
func Unavailable(level string, required, alive int, perDatacenter map[string][2]int) *PlanError {
	err := NewPlanError(ErrCodeUnavailable, fmt.Sprintf("cannot achieve consistency level %s: %d required, %d alive", level, required, alive), nil).
		WithDetail("consistency_level", level).
		WithDetail("required", required).
		WithDetail("alive", alive)
	if len(perDatacenter) > 0 {
		err.WithDetail("per_datacenter", perDatacenter)
	}
	return err
}

func InternalError(message string, cause error) *PlanError {
	return NewPlanError(ErrCodeInternal, message, cause)
}

// IsPlanError checks if an error is a PlanError
func IsPlanError(err error) bool {
	var pe *PlanError
	return errors.As(err, &pe)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var pe *PlanError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrCodeInternal
}

// IsRetryable reports whether a new plan attempt could succeed. Configuration
// errors stay fatal until topology or schema changes.
func IsRetryable(err error) bool {
	return GetCode(err) == ErrCodeUnavailable
}
