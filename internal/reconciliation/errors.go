package reconciliation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrBatchNotFound is returned when the batch does not exist for the owner.
	ErrBatchNotFound = errors.New("reconciliation: batch not found")
	// ErrNotReady means the batch is not complete or already processed.
	ErrNotReady = errors.New("reconciliation: batch not ready for processing")
	// ErrInvalidPeriod means the target quarter precedes the current quarter.
	ErrInvalidPeriod = errors.New("reconciliation: target period before current quarter")
	// ErrStatementAlreadyLinked means another batch already references the statement.
	ErrStatementAlreadyLinked = errors.New("reconciliation: statement already linked to another batch")
	// ErrInvalidBatch wraps input validation failures.
	ErrInvalidBatch = errors.New("reconciliation: invalid batch")
)

// ErrorKind classifies ProcessError.
type ErrorKind string

const (
	KindNotReady      ErrorKind = "NotReady"
	KindInvalidPeriod ErrorKind = "InvalidPeriod"
)

// ProcessError reports a rejected processing request. It is never retried.
type ProcessError struct {
	Kind    ErrorKind
	BatchID uuid.UUID
	Err     error
}

func (e *ProcessError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("reconciliation: batch %s: %s", e.BatchID, e.Kind)
	}
	return fmt.Sprintf("batch %s: %v", e.BatchID, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error kind.
func (e *ProcessError) Is(target error) bool {
	switch e.Kind {
	case KindNotReady:
		return target == ErrNotReady
	case KindInvalidPeriod:
		return target == ErrInvalidPeriod
	}
	return false
}
