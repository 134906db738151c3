package core

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"countries/pkg/domain"
)

// Failure kinds. Every error returned by the manager matches one of these with
// errors.Is.
var (
	ErrUnsupportedEntityKind = errors.New("entity does not support lifecycle tracking")
	ErrCorruptTrackerState   = errors.New("tracker state is inconsistent after reconciliation")
	ErrCrossThreadUsage      = errors.New("manager used outside its owning unit of work")
	ErrValidationFailed      = errors.New("validation failed")
	ErrTransientStoreFailure = errors.New("transient store failure")
	ErrStoreFailure          = errors.New("store failure")
	ErrConcurrencyConflict   = errors.New("concurrency conflict")
)

// ValidationError aggregates every rule violated by the pending changes.
type ValidationError struct {
	Failures []domain.ValidationFailure
}

func (e *ValidationError) Error() string {
	lines := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		lines = append(lines, f.String())
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed, strings.Join(lines, "; "))
}

// Is matches ErrValidationFailed.
func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

// StoreError wraps a failure reported by the database. Transient failures were
// retried until the attempt limit ran out.
type StoreError struct {
	Op        string
	Transient bool
	Attempts  int
	Err       error
}

func (e *StoreError) Error() string {
	kind := ErrStoreFailure
	if e.Transient {
		kind = ErrTransientStoreFailure
	}
	return fmt.Sprintf("%s: %s failed after %d attempt(s): %v", kind, e.Op, e.Attempts, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is matches ErrTransientStoreFailure for transient failures and
// ErrStoreFailure otherwise.
func (e *StoreError) Is(target error) bool {
	if e.Transient {
		return target == ErrTransientStoreFailure
	}
	return target == ErrStoreFailure
}

// ConcurrencyError reports a write whose row was changed or removed since it
// was read. It is never retried.
type ConcurrencyError struct {
	Table string
	Key   any
	Err   error
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("%s: %s Id=%v: %v", ErrConcurrencyConflict, e.Table, e.Key, e.Err)
}

func (e *ConcurrencyError) Unwrap() error { return e.Err }

// Is matches ErrConcurrencyConflict.
func (e *ConcurrencyError) Is(target error) bool { return target == ErrConcurrencyConflict }
