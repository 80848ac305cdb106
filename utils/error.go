package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorInvalidInput covers missing/out-of-range required fields and
// part count/weight pairing violations. Wrap with fmt.Errorf("%w: ...").
var ErrorInvalidInput = errors.New("invalid input")

var ErrorInsufficientInventory = errors.New("insufficient inventory")

// ErrorLineageViolation means the source batch's bookkeeping is already wrong;
// callers should surface it prominently, not as a form error.
var ErrorLineageViolation = errors.New("lineage violation")

// ErrorConcurrencyConflict is retried internally by the engine before being
// surfaced. Once surfaced it is a transient failure the caller may retry.
var ErrorConcurrencyConflict = errors.New("concurrency conflict")

type InsufficientInventoryError struct {
	BatchId   int
	Source    string
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for batch %d (%s): requested %d, available %d",
		e.BatchId, e.Source, e.Requested, e.Available)
}

func (e *InsufficientInventoryError) Unwrap() error {
	return ErrorInsufficientInventory
}

type LineageViolationError struct {
	SourceBatchId int
	InitialCount  int
	AlreadyMoved  int
	Requested     int
}

func (e *LineageViolationError) Error() string {
	return fmt.Sprintf("lineage violation for batch %d: %d already processed out of %d, cannot move %d more",
		e.SourceBatchId, e.AlreadyMoved, e.InitialCount, e.Requested)
}

func (e *LineageViolationError) Unwrap() error {
	return ErrorLineageViolation
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
