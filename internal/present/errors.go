package present

import (
	"errors"
	"fmt"
)

// CorrelationErrorCode categorizes correlation failures.
type CorrelationErrorCode string

const (
	// ErrCodeOrphanEvent indicates an event whose key resolved to no live
	// record. Common and expected under process filtering.
	ErrCodeOrphanEvent CorrelationErrorCode = "ORPHAN_EVENT"

	// ErrCodeLostEviction indicates ring-buffer displacement.
	ErrCodeLostEviction CorrelationErrorCode = "LOST_EVICTION"

	// ErrCodeLostReplacement indicates a new record took over a live key.
	ErrCodeLostReplacement CorrelationErrorCode = "LOST_REPLACEMENT"

	// ErrCodeClassification indicates contradictory state transitions.
	ErrCodeClassification CorrelationErrorCode = "CLASSIFICATION"

	// ErrCodeInvariantBreach indicates a handler observed state it could not
	// reconcile.
	ErrCodeInvariantBreach CorrelationErrorCode = "INVARIANT_BREACH"
)

// CorrelationError describes a non-fatal correlation failure. No correlation
// error terminates the engine; the affected record is marked and emitted and
// processing continues.
type CorrelationError struct {
	Code CorrelationErrorCode

	Message string

	// PID and RecordID identify the affected record, when one exists.
	PID      uint32
	RecordID uint64
}

// Error implements the error interface.
func (e *CorrelationError) Error() string {
	if e.RecordID != 0 {
		return fmt.Sprintf("%s: %s (pid=%d, record=%d)", e.Code, e.Message, e.PID, e.RecordID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsClassificationError reports whether err is a classification error.
// Uses errors.As to handle wrapped errors.
func IsClassificationError(err error) bool {
	var ce *CorrelationError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeClassification
	}
	return false
}
