package registration

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIDFormat is returned when a candidate trader ID is not a non-empty digit string.
	ErrInvalidIDFormat = errors.New("registration: trader id must contain only digits")
	// ErrTraderIDClaimed is returned when duplicate claims are rejected and another user owns the ID.
	ErrTraderIDClaimed = errors.New("registration: trader id already claimed")

	// ErrStorageRead marks failures to read or decode persisted state.
	ErrStorageRead = errors.New("storage: read failed")
	// ErrStorageWrite marks failures to persist state.
	ErrStorageWrite = errors.New("storage: write failed")
)

// StorageError describes a failed load or save against a backend.
type StorageError struct {
	Op      string // "read" or "write"
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap exposes both the op sentinel and the underlying cause.
func (e *StorageError) Unwrap() []error {
	sentinel := ErrStorageWrite
	if e.Op == "read" {
		sentinel = ErrStorageRead
	}
	return []error{sentinel, e.Err}
}

// Code is picked up by the handler summary logger as err_code.
func (e *StorageError) Code() string {
	return "storage_" + e.Op
}

// ReadError wraps err as a storage read failure of backend.
func ReadError(backend string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: "read", Backend: backend, Err: err}
}

// WriteError wraps err as a storage write failure of backend.
func WriteError(backend string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: "write", Backend: backend, Err: err}
}

// IsStorage reports whether err originates from the store.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
