// Package errors provides the structured error type shared by the clock,
// replica, storage, transport and sync packages.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred
type ErrorCode string

const (
	ErrCodeNetworkFailure    ErrorCode = "NETWORK_FAILURE"
	ErrCodeStorageFailure    ErrorCode = "STORAGE_FAILURE"
	ErrCodeValidationFailure ErrorCode = "VALIDATION_FAILURE"
	ErrCodeClockFailure      ErrorCode = "CLOCK_FAILURE"
	ErrCodeUnknownTable      ErrorCode = "UNKNOWN_TABLE"
	ErrCodeSyncRejected      ErrorCode = "SYNC_REJECTED"
	ErrCodeSyncStalled       ErrorCode = "SYNC_STALLED"
)

// Operation represents the operation during which an error occurred
type Operation string

const (
	OpSync      Operation = "sync"
	OpRecord    Operation = "record"
	OpApply     Operation = "apply"
	OpReceive   Operation = "receive"
	OpRespond   Operation = "respond"
	OpStore     Operation = "store"
	OpLoad      Operation = "load"
	OpTransport Operation = "transport"
	OpClose     Operation = "close"
)

// Sentinels for the sync taxonomy. SyncError values built by the
// constructors below wrap them, so errors.Is works through any wrapping.
var (
	ErrUnknownTable = errors.New("unknown table")
	ErrSyncRejected = errors.New("sync rejected by remote")
	ErrSyncStalled  = errors.New("sync made no progress")
)

// SyncError represents an error that occurred while recording, applying or
// synchronizing mutations.
type SyncError struct {
	// Operation during which the error occurred
	Op Operation

	// Component that generated the error (e.g., "replica", "transport")
	Component string

	// Underlying error
	Err error

	// Whether the operation can be retried
	Retryable bool

	// Error code for the error type
	Code ErrorCode

	// Metadata for additional context
	Metadata map[string]interface{}
}

func (e *SyncError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}

	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}

	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new storage-related SyncError
func NewStorageError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeStorageFailure,
		Op:        op,
		Component: "store",
		Err:       cause,
		Retryable: true,
	}
}

// NewValidationError creates a new validation-related SyncError
func NewValidationError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeValidationFailure,
		Op:        op,
		Err:       cause,
		Retryable: false,
	}
}

// NewNetworkError creates a new network-related SyncError
func NewNetworkError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeNetworkFailure,
		Op:        op,
		Component: "transport",
		Err:       cause,
		Retryable: true,
	}
}

// NewClockError creates a SyncError for clock faults such as counter
// overflow, excessive drift or malformed timestamps.
func NewClockError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeClockFailure,
		Op:        op,
		Component: "clock",
		Err:       cause,
		Retryable: false,
	}
}

// NewUnknownTableError reports a mutation addressed to a table the replica
// does not recognize.
func NewUnknownTableError(table string) *SyncError {
	return &SyncError{
		Code:      ErrCodeUnknownTable,
		Op:        OpApply,
		Component: "replica",
		Err:       fmt.Errorf("%w: %q", ErrUnknownTable, table),
		Retryable: false,
		Metadata:  map[string]interface{}{"table": table},
	}
}

// NewSyncRejectedError reports a remote that answered with a failure status
// or could not be reached. cause may be nil.
func NewSyncRejectedError(reason string, cause error) *SyncError {
	err := fmt.Errorf("%w: %s", ErrSyncRejected, reason)
	if cause != nil {
		err = fmt.Errorf("%w: %s: %w", ErrSyncRejected, reason, cause)
	}
	return &SyncError{
		Code:      ErrCodeSyncRejected,
		Op:        OpSync,
		Component: "transport",
		Err:       err,
		Retryable: true,
		Metadata:  map[string]interface{}{"reason": reason},
	}
}

// NewSyncStalledError reports a reconciliation whose divergence bucket did
// not move between consecutive rounds.
func NewSyncStalledError(bucket int64, rounds int) *SyncError {
	return &SyncError{
		Code:      ErrCodeSyncStalled,
		Op:        OpSync,
		Component: "coordinator",
		Err:       fmt.Errorf("%w: divergence at %d after %d rounds", ErrSyncStalled, bucket, rounds),
		Retryable: false,
		Metadata:  map[string]interface{}{"bucket": bucket, "rounds": rounds},
	}
}

// NewWithComponent creates a new SyncError with component information
func NewWithComponent(op Operation, component string, err error) *SyncError {
	return &SyncError{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// NewRetryable creates a new retryable SyncError
func NewRetryable(op Operation, err error) *SyncError {
	return &SyncError{
		Op:        op,
		Err:       err,
		Retryable: true,
	}
}

// IsRetryable checks if an error is a retryable SyncError
func IsRetryable(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable
	}
	return false
}

// IsUnknownTable reports whether err stems from an unrecognized table.
func IsUnknownTable(err error) bool {
	return errors.Is(err, ErrUnknownTable)
}

// IsSyncRejected reports whether err is a remote rejection.
func IsSyncRejected(err error) bool {
	return errors.Is(err, ErrSyncRejected)
}

// IsSyncStalled reports whether err is a stalled reconciliation.
func IsSyncStalled(err error) bool {
	return errors.Is(err, ErrSyncStalled)
}

// RejectionReason returns the reason carried by a SyncRejected error.
func RejectionReason(err error) string {
	var syncErr *SyncError
	if errors.As(err, &syncErr) && syncErr.Code == ErrCodeSyncRejected {
		if reason, ok := syncErr.Metadata["reason"].(string); ok {
			return reason
		}
	}
	return ""
}
