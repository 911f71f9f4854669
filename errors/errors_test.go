package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSyncError_Error(t *testing.T) {
	tests := []struct {
		name      string
		op        Operation
		component string
		code      ErrorCode
		err       error
		want      string
	}{
		{
			name:      "with component and code",
			op:        OpSync,
			component: "store",
			code:      ErrCodeStorageFailure,
			err:       fmt.Errorf("failed to connect"),
			want:      "sync operation failed in store component [STORAGE_FAILURE]: failed to connect",
		},
		{
			name:      "with component no code",
			op:        OpApply,
			component: "replica",
			err:       fmt.Errorf("bad row"),
			want:      "apply operation failed in replica component: bad row",
		},
		{
			name: "without component with code",
			op:   OpTransport,
			code: ErrCodeNetworkFailure,
			err:  fmt.Errorf("network error"),
			want: "transport operation failed [NETWORK_FAILURE]: network error",
		},
		{
			name: "without component or code",
			op:   OpRecord,
			err:  fmt.Errorf("boom"),
			want: "record operation failed: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &SyncError{
				Op:        tt.op,
				Component: tt.component,
				Err:       tt.err,
				Code:      tt.code,
			}

			if got := e.Error(); got != tt.want {
				t.Errorf("SyncError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewNetworkError(t *testing.T) {
	cause := fmt.Errorf("network failure")
	syncErr := NewNetworkError(OpTransport, cause)

	if syncErr.Code != ErrCodeNetworkFailure {
		t.Errorf("NewNetworkError() Code = %v, want %v", syncErr.Code, ErrCodeNetworkFailure)
	}
	if syncErr.Component != "transport" {
		t.Errorf("NewNetworkError() Component = %v, want %v", syncErr.Component, "transport")
	}
	if syncErr.Err != cause {
		t.Errorf("NewNetworkError() Err = %v, want %v", syncErr.Err, cause)
	}
	if !syncErr.Retryable {
		t.Error("NewNetworkError() created non-retryable error")
	}
}

func TestNewStorageError(t *testing.T) {
	cause := fmt.Errorf("storage failure")
	syncErr := NewStorageError(OpStore, cause)

	if syncErr.Code != ErrCodeStorageFailure {
		t.Errorf("NewStorageError() Code = %v, want %v", syncErr.Code, ErrCodeStorageFailure)
	}
	if syncErr.Component != "store" {
		t.Errorf("NewStorageError() Component = %v, want %v", syncErr.Component, "store")
	}
	if !syncErr.Retryable {
		t.Error("NewStorageError() created non-retryable error")
	}
}

func TestNewUnknownTableError(t *testing.T) {
	err := NewUnknownTableError("todos")

	if err.Code != ErrCodeUnknownTable {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeUnknownTable)
	}
	if err.Retryable {
		t.Error("unknown table must not be retryable")
	}
	if !IsUnknownTable(err) {
		t.Error("IsUnknownTable() = false")
	}
	if !strings.Contains(err.Error(), `"todos"`) {
		t.Errorf("Error() = %q, want table name", err.Error())
	}

	wrapped := fmt.Errorf("record: %w", err)
	if !IsUnknownTable(wrapped) {
		t.Error("IsUnknownTable() must see through wrapping")
	}
}

func TestNewSyncRejectedError(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewSyncRejectedError("unreachable", cause)

	if !IsSyncRejected(err) {
		t.Error("IsSyncRejected() = false")
	}
	if !errors.Is(err, cause) {
		t.Error("cause must remain reachable")
	}
	if !IsRetryable(err) {
		t.Error("rejections are retryable by the caller")
	}
	if got := RejectionReason(err); got != "unreachable" {
		t.Errorf("RejectionReason() = %q, want %q", got, "unreachable")
	}

	noCause := NewSyncRejectedError("bad group", nil)
	if !IsSyncRejected(noCause) || RejectionReason(noCause) != "bad group" {
		t.Errorf("unexpected rejection without cause: %v", noCause)
	}
	if RejectionReason(fmt.Errorf("plain")) != "" {
		t.Error("plain errors carry no rejection reason")
	}
}

func TestNewSyncStalledError(t *testing.T) {
	err := NewSyncStalledError(1_699_999_980_000, 3)

	if !IsSyncStalled(err) {
		t.Error("IsSyncStalled() = false")
	}
	if IsRetryable(err) {
		t.Error("stalled sync must not be retryable")
	}
	if err.Metadata["bucket"] != int64(1_699_999_980_000) {
		t.Errorf("bucket metadata = %v", err.Metadata["bucket"])
	}
	if IsSyncRejected(err) || IsUnknownTable(err) {
		t.Error("taxonomy members must be distinct")
	}
}

func TestSyncError_Unwrap(t *testing.T) {
	originalErr := fmt.Errorf("original error")
	e := &SyncError{
		Op:  OpSync,
		Err: originalErr,
	}

	if unwrapped := e.Unwrap(); unwrapped != originalErr {
		t.Errorf("SyncError.Unwrap() = %v, want %v", unwrapped, originalErr)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "retryable", err: NewRetryable(OpSync, fmt.Errorf("x")), want: true},
		{name: "not retryable", err: NewWithComponent(OpSync, "coordinator", fmt.Errorf("x")), want: false},
		{name: "wrapped retryable", err: fmt.Errorf("ctx: %w", NewNetworkError(OpTransport, fmt.Errorf("x"))), want: true},
		{name: "plain error", err: fmt.Errorf("x"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapOpComponent(t *testing.T) {
	if WrapOpComponent(nil, OpStore, "storage/sqlite") != nil {
		t.Error("nil error must stay nil")
	}

	cause := fmt.Errorf("disk full")
	var syncErr *SyncError
	if !errors.As(WrapOpComponent(cause, OpStore, "storage/sqlite"), &syncErr) {
		t.Fatal("expected *SyncError")
	}
	if syncErr.Op != OpStore || syncErr.Component != "storage/sqlite" || syncErr.Err != cause {
		t.Errorf("unexpected wrap: %+v", syncErr)
	}

	if !IsRetryable(WrapStorage(cause, OpLoad, "storage/postgres")) {
		t.Error("storage failures are retryable")
	}
	if WrapStorage(nil, OpLoad, "storage/postgres") != nil {
		t.Error("nil error must stay nil")
	}

	var closeErr *SyncError
	if !errors.As(WrapStorage(cause, OpClose, "storage/sqlite"), &closeErr) || closeErr.Op != OpClose || closeErr.Component != "storage/sqlite" {
		t.Errorf("close failure not tagged: %+v", closeErr)
	}
}
